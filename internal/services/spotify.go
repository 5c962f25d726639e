// Spotify API implementation of [Provider] and [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track. ID is empty for local files.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type trackTotal struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a playlist object as returned by playlist and list endpoints.
type SpotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       Owner          `json:"owner"`
	Public      bool           `json:"public"`
	SnapshotID  string         `json:"snapshot_id"`
	Tracks      trackTotal     `json:"tracks"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for unavailable items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaging is the envelope shared by every paginated endpoint.
type SpotifyPaging[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

type spotifyError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [Provider] and [Catalog] against the Spotify Web API.
//
// Uses [oauth2] for authentication with automatic token refresh and a token-bucket [rate.Limiter]
// shared by every request.
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	source     oauth2.TokenSource
	httpClient *http.Client
	baseClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	timeout    time.Duration

	mu             sync.Mutex
	onTokenRefresh func(*oauth2.Token)
}

var (
	_ Provider = (*SpotifyService)(nil)
	_ Catalog  = (*SpotifyService)(nil)
)

// Option configures a [SpotifyService].
type Option func(*SpotifyService)

// WithBaseURL points the client at a different API root (used by tests).
func WithBaseURL(baseURL string) Option {
	return func(s *SpotifyService) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithEndpoint overrides the OAuth2 authorize and token URLs.
func WithEndpoint(authURL, tokenURL string) Option {
	return func(s *SpotifyService) {
		s.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	}
}

// WithHTTPClient sets the transport used for API and token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *SpotifyService) { s.baseClient = client }
}

// WithRateLimit caps requests per second. Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(s *SpotifyService) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds every API request. Timed out requests fail with [shared.ErrRemoteUnavailable].
func WithTimeout(d time.Duration) Option {
	return func(s *SpotifyService) { s.timeout = d }
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...Option) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/auth/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config:  config,
		baseURL: spotifyBaseURL,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the provider name.
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and authenticates the service with it.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuth, err)
	}
	s.SetToken(ctx, token)
	return token, nil
}

// Authenticate configures the service from stored credentials.
//
// Accepts "access_token" (optionally with "refresh_token" and an RFC 3339 "expiry") or "auth_code".
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" {
		token := &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		}
		if expiry := credentials["expiry"]; expiry != "" {
			if t, err := time.Parse(time.RFC3339, expiry); err == nil {
				token.Expiry = t
			}
		}
		s.SetToken(ctx, token)
		return nil
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		_, err := s.Exchange(ctx, authCode)
		return err
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// SetToken authenticates the service with token. Expired tokens are refreshed on first use.
func (s *SpotifyService) SetToken(ctx context.Context, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = s.oauthContext(context.WithoutCancel(ctx))
	s.token = token
	s.source = &refreshableTokenSource{
		source:   oauth2.ReuseTokenSource(token, s.config.TokenSource(ctx, token)),
		callback: s.onTokenRefresh,
		last:     token.AccessToken,
	}
	s.httpClient = oauth2.NewClient(ctx, s.source)
	s.httpClient.Timeout = s.timeout
}

// Token returns the current (possibly refreshed) token.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if source == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return source.Token()
}

// SetTokenRefreshCallback registers fn to be called whenever the access token changes.
//
// Takes effect for tokens set after the call.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	if s.baseClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, s.baseClient)
	}
	return ctx
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports new access tokens to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

// doRequest performs an authenticated HTTP request to the Spotify API, JSON-encoding body and decoding into result.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	s.mu.Lock()
	client := s.httpClient
	s.mu.Unlock()

	if client == nil {
		return shared.ErrNotAuthenticated
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRemoteUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method, endpoint, resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}
	return nil
}

// statusError maps a non-2xx response onto the shared error taxonomy.
func statusError(method, endpoint string, resp *http.Response) error {
	message := http.StatusText(resp.StatusCode)
	var apiErr spotifyError
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusForbidden && method != http.MethodGet:
		// Writes to a playlist the user does not own are refused with 403 even with a valid token.
		kind = shared.ErrUnauthorized
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = shared.ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		kind = shared.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		kind = shared.ErrRemoteUnavailable
	default:
		kind = shared.ErrAPIRequest
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", kind, method, endpoint, resp.StatusCode, message)
}

// classifyTransportError maps client-side failures: rejected refresh tokens are auth errors, everything
// else (timeouts, connection failures, cancellation) is treated as the provider being unavailable.
func classifyTransportError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: token refresh failed: %v", shared.ErrAuth, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: request timed out: %v", shared.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%w: request failed: %v", shared.ErrRemoteUnavailable, err)
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*models.User, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &models.User{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*models.Track, error) {
	var track SpotifyTrack
	if err := s.doRequest(ctx, http.MethodGet, "/tracks/"+url.PathEscape(trackID), nil, &track); err != nil {
		return nil, err
	}
	t := toTrack(track)
	return &t, nil
}

// SearchTracks searches the catalog for tracks. limit is clamped to 1..50.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	limit = clamp(limit, 1, 50, 20)

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprint(limit))

	var response struct {
		Tracks SpotifyPaging[SpotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		tracks = append(tracks, toTrack(item))
	}
	return tracks, nil
}

// UserPlaylists retrieves all playlists in the current user's library, following pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context) ([]models.RemotePlaylist, error) {
	var playlists []models.RemotePlaylist
	limit, offset := 50, 0

	for {
		var response SpotifyPaging[SpotifyPlaylist]
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			playlists = append(playlists, toRemotePlaylist(sp))
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += limit
	}
	return playlists, nil
}

// Playlist retrieves playlist metadata by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*models.RemotePlaylist, error) {
	endpoint := "/playlists/" + url.PathEscape(playlistID) +
		"?fields=" + url.QueryEscape("id,name,description,public,snapshot_id,uri,owner(id,display_name),tracks(total)")

	var sp SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &sp); err != nil {
		return nil, err
	}

	playlist := toRemotePlaylist(sp)
	return &playlist, nil
}

// PlaylistItems retrieves one page of playlist tracks. Unavailable entries (null track) are dropped from Items
// but still counted in Fetched.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*ItemPage, error) {
	limit = clamp(limit, 1, MaxItemsPerRequest, MaxItemsPerRequest)
	endpoint := fmt.Sprintf("/playlists/%s/tracks?offset=%d&limit=%d", url.PathEscape(playlistID), offset, limit)

	var response SpotifyPaging[SpotifyPlaylistTrack]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	page := &ItemPage{Offset: offset, Total: response.Total, Fetched: len(response.Items)}
	for _, item := range response.Items {
		if item.Track == nil {
			continue
		}
		track := toTrack(*item.Track)
		if item.IsLocal || item.Track.IsLocal {
			track.ProviderID = ""
		}
		page.Items = append(page.Items, track)
	}
	return page, nil
}

// CreatePlaylist creates an empty playlist for userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID string, details PlaylistDetails) (*models.RemotePlaylist, error) {
	if strings.TrimSpace(details.Name) == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	var sp SpotifyPlaylist
	endpoint := "/users/" + url.PathEscape(userID) + "/playlists"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, details, &sp); err != nil {
		return nil, err
	}

	playlist := toRemotePlaylist(sp)
	return &playlist, nil
}

// AddItems appends uris to the playlist in chunks of [MaxItemsPerRequest], preserving order.
func (s *SpotifyService) AddItems(ctx context.Context, playlistID string, uris []string) error {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	for _, chunk := range chunks(uris, MaxItemsPerRequest) {
		body := map[string][]string{"uris": chunk}
		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// RemoveItems removes all occurrences of uris from the playlist in chunks of [MaxItemsPerRequest].
func (s *SpotifyService) RemoveItems(ctx context.Context, playlistID string, uris []string) error {
	type trackRef struct {
		URI string `json:"uri"`
	}

	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	for _, chunk := range chunks(uris, MaxItemsPerRequest) {
		refs := make([]trackRef, len(chunk))
		for i, uri := range chunk {
			refs[i] = trackRef{URI: uri}
		}
		body := map[string][]trackRef{"tracks": refs}
		if err := s.doRequest(ctx, http.MethodDelete, endpoint, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceItems overwrites the playlist with uris. The first chunk replaces, the rest are appended.
func (s *SpotifyService) ReplaceItems(ctx context.Context, playlistID string, uris []string) error {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	parts := chunks(uris, MaxItemsPerRequest)

	first := []string{}
	if len(parts) > 0 {
		first = parts[0]
	}
	if err := s.doRequest(ctx, http.MethodPut, endpoint, map[string][]string{"uris": first}, nil); err != nil {
		return err
	}

	if len(parts) > 1 {
		var rest []string
		for _, p := range parts[1:] {
			rest = append(rest, p...)
		}
		return s.AddItems(ctx, playlistID, rest)
	}
	return nil
}

// UpdateDetails changes the playlist's name and description.
func (s *SpotifyService) UpdateDetails(ctx context.Context, playlistID string, details PlaylistDetails) error {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}{details.Name, details.Description}
	return s.doRequest(ctx, http.MethodPut, "/playlists/"+url.PathEscape(playlistID), body, nil)
}

func toTrack(st SpotifyTrack) models.Track {
	track := models.Track{
		ProviderID: st.ID,
		URI:        st.URI,
		Title:      st.Name,
		Album:      st.Album.Name,
		DurationMS: st.DurationMS,
	}

	names := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		names = append(names, a.Name)
	}
	track.Artist = strings.Join(names, ", ")

	if len(st.Album.Images) > 0 {
		track.ArtworkURL = st.Album.Images[0].URL
	}
	return track
}

func toRemotePlaylist(sp SpotifyPlaylist) models.RemotePlaylist {
	return models.RemotePlaylist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		OwnerID:     sp.Owner.ID,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
		SnapshotID:  sp.SnapshotID,
		URI:         sp.URI,
	}
}

func chunks(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func clamp(v, lo, hi, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return max(lo, min(v, hi))
}
