package services

import (
	"context"

	"github.com/desertthunder/crate/internal/models"
)

// MaxItemsPerRequest is the provider's limit on URIs per add/remove/replace call and tracks per page.
const MaxItemsPerRequest = 100

// Provider is the subset of the remote playlist API the reconciler consumes.
//
// Implementations report failures with the shared taxonomy: [shared.ErrAuth] when the credential is
// rejected, [shared.ErrNotFound] when the playlist does not exist and [shared.ErrRemoteUnavailable]
// for server-side errors, throttling and transport failures.
type Provider interface {
	// Playlist retrieves remote playlist metadata.
	Playlist(ctx context.Context, playlistID string) (*models.RemotePlaylist, error)

	// PlaylistItems retrieves one page of a playlist's tracks starting at offset.
	PlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*ItemPage, error)

	// CreatePlaylist creates an empty playlist owned by userID.
	CreatePlaylist(ctx context.Context, userID string, details PlaylistDetails) (*models.RemotePlaylist, error)

	// AddItems appends uris in order. Batches larger than [MaxItemsPerRequest] are split.
	AddItems(ctx context.Context, playlistID string, uris []string) error

	// RemoveItems removes every occurrence of each uri.
	RemoveItems(ctx context.Context, playlistID string, uris []string) error

	// ReplaceItems overwrites the playlist's tracks with uris.
	ReplaceItems(ctx context.Context, playlistID string, uris []string) error

	// UpdateDetails changes the playlist name and description.
	UpdateDetails(ctx context.Context, playlistID string, details PlaylistDetails) error
}

// Catalog covers the account and search endpoints used by the CLI, web API and TUI.
type Catalog interface {
	// CurrentUser retrieves the authenticated account.
	CurrentUser(ctx context.Context) (*models.User, error)

	// UserPlaylists retrieves every playlist in the authenticated user's library.
	UserPlaylists(ctx context.Context) ([]models.RemotePlaylist, error)

	// SearchTracks searches the provider catalog.
	SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error)

	// Track retrieves a single track by provider id.
	Track(ctx context.Context, trackID string) (*models.Track, error)
}

// ItemPage is one page of playlist tracks.
//
// Fetched counts every entry the provider returned, including unavailable tracks that were dropped
// from Items, so callers can detect the final (short) page.
type ItemPage struct {
	Items   []models.Track
	Offset  int
	Total   int
	Fetched int
}

// PlaylistDetails are the editable remote playlist fields.
type PlaylistDetails struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}
