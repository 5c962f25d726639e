// Package services defines the [Provider] and [Catalog] interfaces for the remote music provider and implements
// them for Spotify.
//
// # Provider Interface
//
// [Provider] is the narrow surface the reconciler needs: playlist metadata, paged items, and the write operations
// (create, add, remove, replace, update details). [Catalog] adds read-only library browsing used by the CLI,
// web app and TUI.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
// Refreshed tokens are reported through [SpotifyService.SetTokenRefreshCallback] so callers can persist them.
//
// Every request waits on a shared token-bucket limiter before it is sent. Write operations are split into chunks
// of [MaxItemsPerRequest] URIs and sent in order.
//
// # Pagination
//
// [Reader] assembles a full playlist from [Provider.PlaylistItems] pages, optionally fetching pages in parallel.
//
// # Error Handling
//
// Responses are mapped onto the shared error taxonomy:
//   - [shared.ErrAuth] : 401/403 or a rejected refresh token
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrRemoteUnavailable] : 429, 5xx, timeouts and transport failures
//   - [shared.ErrAPIRequest] : any other non-2xx response
//   - [shared.ErrNotAuthenticated] : no token has been set
package services
