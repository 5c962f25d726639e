package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// LocalURIPrefix marks Spotify "local file" tracks, which cannot be added to a playlist through the API.
const LocalURIPrefix = "spotify:local:"

// Track identifies a playable item in a user's library.
//
// ProviderID and URI are empty for manually entered tracks.
type Track struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"-"`
	OwnerID    string    `json:"owner_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	URI        string    `json:"uri,omitempty"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album,omitempty"`
	DurationMS int       `json:"duration_ms"`
	ArtworkURL string    `json:"artwork_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t *Track) Key() string   { return t.ID }
func (t *Track) Owner() string { return t.OwnerID }

// Validate requires an owner and a title.
func (t *Track) Validate() error {
	if t.OwnerID == "" {
		return fmt.Errorf("%w: track owner is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: track title is required", shared.ErrInvalidInput)
	}
	return nil
}

// HasProviderURI reports whether the track can be added to a remote playlist.
func (t *Track) HasProviderURI() bool {
	return t.URI != "" && !strings.HasPrefix(t.URI, LocalURIPrefix)
}

// MatchKey returns the normalized title/artist key used to deduplicate tracks without a provider id.
func (t *Track) MatchKey() string {
	return shared.NormalizeTrackKey(t.Title, t.Artist)
}

// Duration returns the track length formatted as m:ss.
func (t *Track) Duration() string {
	return shared.FormatDuration(t.DurationMS)
}

// String renders "Title - Artist".
func (t *Track) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " - " + t.Artist
}
