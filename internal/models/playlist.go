package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// Playlist is a user-owned ordered list of library tracks.
//
// A playlist with a RemoteID is linked to a Spotify playlist. Tracks is only populated when the
// playlist is loaded individually; TrackCount is always set.
type Playlist struct {
	ID           string     `json:"id"`
	Sequence     int        `json:"-"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	RemoteID     string     `json:"remote_id,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	TrackCount   int        `json:"track_count"`
	Tracks       []Track    `json:"tracks,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *Playlist) Key() string   { return p.ID }
func (p *Playlist) Owner() string { return p.OwnerID }

// Validate requires an owner and a name.
func (p *Playlist) Validate() error {
	if p.OwnerID == "" {
		return fmt.Errorf("%w: playlist owner is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}
	return nil
}

// Linked reports whether the playlist references a remote playlist.
func (p *Playlist) Linked() bool {
	return p.RemoteID != ""
}

// TrackIDs returns the ids of the playlist's tracks in order.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// ProviderURIs returns the URIs of tracks that can be sent to the provider, in playlist order with
// duplicates removed (first occurrence wins), and the number of tracks that were skipped for lacking a URI.
func (p *Playlist) ProviderURIs() (uris []string, skipped int) {
	seen := make(map[string]struct{}, len(p.Tracks))
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if !t.HasProviderURI() {
			skipped++
			continue
		}
		if _, ok := seen[t.URI]; ok {
			continue
		}
		seen[t.URI] = struct{}{}
		uris = append(uris, t.URI)
	}
	return uris, skipped
}

// LastActivity is the later of the last update and the last sync.
func (p *Playlist) LastActivity() time.Time {
	if p.LastSyncedAt != nil && p.LastSyncedAt.After(p.UpdatedAt) {
		return *p.LastSyncedAt
	}
	return p.UpdatedAt
}

// Summary projects the playlist without its tracks.
func (p *Playlist) Summary() PlaylistSummary {
	count := p.TrackCount
	if len(p.Tracks) > count {
		count = len(p.Tracks)
	}
	return PlaylistSummary{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		RemoteID:     p.RemoteID,
		LastSyncedAt: p.LastSyncedAt,
		TrackCount:   count,
	}
}

// PlaylistSummary is the playlist shape returned by the sync and import entrypoints.
type PlaylistSummary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	RemoteID     string     `json:"remote_id,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	TrackCount   int        `json:"track_count"`
}

// PlaylistFields is a partial update. Nil fields are left unchanged.
//
// A non-nil empty RemoteID clears the link; a non-nil TrackIDs replaces the ordered track list.
type PlaylistFields struct {
	Name         *string
	Description  *string
	RemoteID     *string
	LastSyncedAt *time.Time
	TrackIDs     *[]string
}

// Empty reports whether the update would change nothing.
func (f PlaylistFields) Empty() bool {
	return f.Name == nil && f.Description == nil && f.RemoteID == nil && f.LastSyncedAt == nil && f.TrackIDs == nil
}

// RemotePlaylist is playlist metadata as reported by the provider.
type RemotePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
	SnapshotID  string `json:"snapshot_id,omitempty"`
	URI         string `json:"uri,omitempty"`
}
