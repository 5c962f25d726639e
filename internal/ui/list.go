package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

var (
	_ list.Item = entryItem{}
	_ list.Item = trackItem{}
)

// entryItem wraps [models.LibraryEntry] to implement [list.Item].
type entryItem struct {
	entry models.LibraryEntry
}

func (i entryItem) FilterValue() string { return i.entry.Name() }
func (i entryItem) Title() string       { return i.entry.Name() }
func (i entryItem) Description() string {
	parts := []string{badge(i.entry.Kind()), fmt.Sprintf("%d tracks", i.entry.TrackCount())}
	if at := i.entry.LastActivity(); !at.IsZero() {
		parts = append(parts, at.Local().Format("Jan 2 15:04"))
	}
	return strings.Join(parts, " • ")
}

func badge(kind models.EntryKind) string {
	switch kind {
	case models.EntryRemoteLinked:
		return styles.As("linked", colorOK)
	case models.EntryRemote:
		return styles.As("spotify", colorWarn)
	default:
		return styles.As("local", colorMuted)
	}
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.DurationMS > 0 {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.track.DurationMS))
	}
	if !i.track.HasProviderURI() {
		desc = fmt.Sprintf("%s • %s", desc, styles.As("not on spotify", colorMuted))
	}
	return desc
}

func entryItems(entries []models.LibraryEntry, showRemote bool) []list.Item {
	items := make([]list.Item, 0, len(entries))
	for _, e := range entries {
		if !showRemote && e.Kind() == models.EntryRemote {
			continue
		}
		items = append(items, entryItem{entry: e})
	}
	return items
}

func trackItems(tracks []models.Track) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
