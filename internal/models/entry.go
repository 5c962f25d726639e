package models

import (
	"sort"
	"strings"
	"time"
)

// EntryKind discriminates the [LibraryEntry] variants.
type EntryKind int

const (
	EntryLocal        EntryKind = iota // local playlist with no remote link
	EntryRemoteLinked                  // local playlist linked to a remote playlist
	EntryRemote                        // remote playlist not yet imported
)

func (k EntryKind) String() string {
	switch k {
	case EntryLocal:
		return "local"
	case EntryRemoteLinked:
		return "linked"
	case EntryRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// LibraryEntry is one row of the merged playlist list. The set of variants is closed:
// [LocalEntry], [LinkedEntry] and [RemoteEntry].
type LibraryEntry interface {
	Kind() EntryKind
	EntryID() string
	Name() string
	TrackCount() int
	LastActivity() time.Time

	sealed()
}

// LocalEntry wraps an unlinked local playlist.
type LocalEntry struct {
	Playlist *Playlist
}

func (e LocalEntry) Kind() EntryKind         { return EntryLocal }
func (e LocalEntry) EntryID() string         { return e.Playlist.ID }
func (e LocalEntry) Name() string            { return e.Playlist.Name }
func (e LocalEntry) TrackCount() int         { return e.Playlist.Summary().TrackCount }
func (e LocalEntry) LastActivity() time.Time { return e.Playlist.LastActivity() }
func (LocalEntry) sealed()                   {}

// LinkedEntry wraps a local playlist linked to a remote one. Remote is nil when the remote
// playlist was not part of the listing (e.g. it is owned by another account).
type LinkedEntry struct {
	Playlist *Playlist
	Remote   *RemotePlaylist
}

func (e LinkedEntry) Kind() EntryKind         { return EntryRemoteLinked }
func (e LinkedEntry) EntryID() string         { return e.Playlist.ID }
func (e LinkedEntry) Name() string            { return e.Playlist.Name }
func (e LinkedEntry) TrackCount() int         { return e.Playlist.Summary().TrackCount }
func (e LinkedEntry) LastActivity() time.Time { return e.Playlist.LastActivity() }
func (LinkedEntry) sealed()                   {}

// RemoteEntry wraps a provider playlist that no local playlist links to. Remote playlists carry no
// activity time, so they sort after every local entry.
type RemoteEntry struct {
	Remote RemotePlaylist
}

func (e RemoteEntry) Kind() EntryKind         { return EntryRemote }
func (e RemoteEntry) EntryID() string         { return e.Remote.ID }
func (e RemoteEntry) Name() string            { return e.Remote.Name }
func (e RemoteEntry) TrackCount() int         { return e.Remote.TrackCount }
func (e RemoteEntry) LastActivity() time.Time { return time.Time{} }
func (RemoteEntry) sealed()                   {}

// MergeEntries builds the display list from local playlists and the user's remote playlists.
//
// Remote playlists already linked by a local playlist are folded into its [LinkedEntry]. The result is
// ordered by last activity (most recent first), then case-insensitively by name.
func MergeEntries(local []*Playlist, remote []RemotePlaylist) []LibraryEntry {
	byRemoteID := make(map[string]*RemotePlaylist, len(remote))
	for i := range remote {
		byRemoteID[remote[i].ID] = &remote[i]
	}

	entries := make([]LibraryEntry, 0, len(local)+len(remote))
	linked := make(map[string]struct{})
	for _, p := range local {
		if !p.Linked() {
			entries = append(entries, LocalEntry{Playlist: p})
			continue
		}
		linked[p.RemoteID] = struct{}{}
		entries = append(entries, LinkedEntry{Playlist: p, Remote: byRemoteID[p.RemoteID]})
	}

	for _, r := range remote {
		if _, ok := linked[r.ID]; ok {
			continue
		}
		entries = append(entries, RemoteEntry{Remote: r})
	}

	SortEntries(entries)
	return entries
}

// SortEntries orders entries by last activity descending, then by name.
func SortEntries(entries []LibraryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastActivity(), entries[j].LastActivity()
		if !a.Equal(b) {
			return a.After(b)
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})
}

// EntryView is the JSON projection of a [LibraryEntry].
type EntryView struct {
	Kind         string     `json:"kind"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	TrackCount   int        `json:"track_count"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	RemoteID     string     `json:"remote_id,omitempty"`
}

// View projects e for display and serialization.
func View(e LibraryEntry) EntryView {
	v := EntryView{
		Kind:       e.Kind().String(),
		ID:         e.EntryID(),
		Name:       e.Name(),
		TrackCount: e.TrackCount(),
	}
	if at := e.LastActivity(); !at.IsZero() {
		v.LastActivity = &at
	}

	switch e := e.(type) {
	case LinkedEntry:
		v.RemoteID = e.Playlist.RemoteID
	case RemoteEntry:
		v.RemoteID = e.Remote.ID
	}
	return v
}
