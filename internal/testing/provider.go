package testing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// Provider method names accepted by [FakeProvider.FailOn] and [FakeProvider.Calls].
const (
	MethodPlaylist      = "playlist"
	MethodPlaylistItems = "items"
	MethodCreate        = "create"
	MethodAdd           = "add"
	MethodRemove        = "remove"
	MethodReplace       = "replace"
	MethodUpdate        = "update"
	MethodCurrentUser   = "me"
	MethodUserPlaylists = "playlists"
	MethodSearch        = "search"
	MethodTrack         = "track"
)

// FakeProvider is an in-memory [services.Provider] and [services.Catalog].
//
// Remote playlists hold full tracks so reads return the same shape as Spotify. Writes by URI resolve the
// track from the catalog or any known playlist, falling back to a bare track carrying only the URI.
type FakeProvider struct {
	mu        sync.Mutex
	user      models.User
	playlists map[string]*fakeRemote
	order     []string
	catalog   map[string]models.Track
	failures  map[string]error
	calls     map[string]int
	batches   map[string][][]string
	nextID    int
}

type fakeRemote struct {
	meta   models.RemotePlaylist
	tracks []models.Track
}

var (
	_ services.Provider = (*FakeProvider)(nil)
	_ services.Catalog  = (*FakeProvider)(nil)
)

// NewFakeProvider creates an empty provider authenticated as userID.
func NewFakeProvider(userID string) *FakeProvider {
	return &FakeProvider{
		user:      models.User{ID: userID, DisplayName: userID},
		playlists: make(map[string]*fakeRemote),
		catalog:   make(map[string]models.Track),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		batches:   make(map[string][][]string),
	}
}

// AddRemote seeds a remote playlist. Tracks are also added to the searchable catalog.
func (f *FakeProvider) AddRemote(meta models.RemotePlaylist, tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if meta.OwnerID == "" {
		meta.OwnerID = f.user.ID
	}
	for _, t := range tracks {
		if t.URI != "" {
			f.catalog[t.URI] = t
		}
	}
	if _, ok := f.playlists[meta.ID]; !ok {
		f.order = append(f.order, meta.ID)
	}
	f.playlists[meta.ID] = &fakeRemote{meta: meta, tracks: slices.Clone(tracks)}
}

// AddCatalog makes tracks available to search and URI resolution.
func (f *FakeProvider) AddCatalog(tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.catalog[t.URI] = t
	}
}

// FailOn makes every subsequent call to method return err. A nil err clears the failure.
func (f *FakeProvider) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// Calls returns how many times method was invoked, including failed calls.
func (f *FakeProvider) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// WriteCalls returns the number of create, add, remove, replace and update calls.
func (f *FakeProvider) WriteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[MethodCreate] + f.calls[MethodAdd] + f.calls[MethodRemove] + f.calls[MethodReplace] + f.calls[MethodUpdate]
}

// Batches returns the URI batches passed to add, remove or replace, in call order.
func (f *FakeProvider) Batches(method string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.batches[method])
}

// ResetCalls clears call counters and recorded batches.
func (f *FakeProvider) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
	f.batches = make(map[string][][]string)
}

// RemoteURIs returns the URIs of a remote playlist in order.
func (f *FakeProvider) RemoteURIs(playlistID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[playlistID]
	if !ok {
		return nil
	}
	uris := make([]string, len(p.tracks))
	for i, t := range p.tracks {
		uris[i] = t.URI
	}
	return uris
}

// Remote returns the current metadata of a remote playlist.
func (f *FakeProvider) Remote(playlistID string) (models.RemotePlaylist, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[playlistID]
	if !ok {
		return models.RemotePlaylist{}, false
	}
	return p.snapshot(), true
}

// begin records a call and returns the injected failure, if any. Callers must hold f.mu.
func (f *FakeProvider) begin(ctx context.Context, method string) error {
	f.calls[method]++
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRemoteUnavailable, err)
	}
	return f.failures[method]
}

func (f *FakeProvider) lookup(playlistID string) (*fakeRemote, error) {
	p, ok := f.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, playlistID)
	}
	return p, nil
}

func (f *FakeProvider) resolve(uri string) models.Track {
	if t, ok := f.catalog[uri]; ok {
		return t
	}
	for _, p := range f.playlists {
		for _, t := range p.tracks {
			if t.URI == uri {
				return t
			}
		}
	}
	id := uri[strings.LastIndex(uri, ":")+1:]
	return models.Track{ProviderID: id, URI: uri, Title: id}
}

func (p *fakeRemote) snapshot() models.RemotePlaylist {
	meta := p.meta
	meta.TrackCount = len(p.tracks)
	return meta
}

func (f *FakeProvider) Playlist(ctx context.Context, playlistID string) (*models.RemotePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodPlaylist); err != nil {
		return nil, err
	}
	p, err := f.lookup(playlistID)
	if err != nil {
		return nil, err
	}
	meta := p.snapshot()
	return &meta, nil
}

func (f *FakeProvider) PlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*services.ItemPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodPlaylistItems); err != nil {
		return nil, err
	}
	p, err := f.lookup(playlistID)
	if err != nil {
		return nil, err
	}

	page := &services.ItemPage{Offset: offset, Total: len(p.tracks)}
	if offset < len(p.tracks) {
		end := min(offset+limit, len(p.tracks))
		page.Items = slices.Clone(p.tracks[offset:end])
		page.Fetched = end - offset
	}
	return page, nil
}

func (f *FakeProvider) CreatePlaylist(ctx context.Context, userID string, details services.PlaylistDetails) (*models.RemotePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodCreate); err != nil {
		return nil, err
	}

	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)
	p := &fakeRemote{meta: models.RemotePlaylist{
		ID:          id,
		Name:        details.Name,
		Description: details.Description,
		OwnerID:     userID,
		Public:      details.Public,
		URI:         "spotify:playlist:" + id,
	}}
	f.playlists[id] = p
	f.order = append(f.order, id)

	meta := p.snapshot()
	return &meta, nil
}

func (f *FakeProvider) AddItems(ctx context.Context, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodAdd); err != nil {
		return err
	}
	p, err := f.lookup(playlistID)
	if err != nil {
		return err
	}

	f.batches[MethodAdd] = append(f.batches[MethodAdd], slices.Clone(uris))
	for _, uri := range uris {
		p.tracks = append(p.tracks, f.resolve(uri))
	}
	return nil
}

func (f *FakeProvider) RemoveItems(ctx context.Context, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodRemove); err != nil {
		return err
	}
	p, err := f.lookup(playlistID)
	if err != nil {
		return err
	}

	f.batches[MethodRemove] = append(f.batches[MethodRemove], slices.Clone(uris))
	p.tracks = slices.DeleteFunc(p.tracks, func(t models.Track) bool {
		return slices.Contains(uris, t.URI)
	})
	return nil
}

func (f *FakeProvider) ReplaceItems(ctx context.Context, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodReplace); err != nil {
		return err
	}
	p, err := f.lookup(playlistID)
	if err != nil {
		return err
	}

	f.batches[MethodReplace] = append(f.batches[MethodReplace], slices.Clone(uris))
	tracks := make([]models.Track, 0, len(uris))
	for _, uri := range uris {
		tracks = append(tracks, f.resolve(uri))
	}
	p.tracks = tracks
	return nil
}

func (f *FakeProvider) UpdateDetails(ctx context.Context, playlistID string, details services.PlaylistDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodUpdate); err != nil {
		return err
	}
	p, err := f.lookup(playlistID)
	if err != nil {
		return err
	}
	p.meta.Name = details.Name
	p.meta.Description = details.Description
	return nil
}

func (f *FakeProvider) CurrentUser(ctx context.Context) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodCurrentUser); err != nil {
		return nil, err
	}
	user := f.user
	return &user, nil
}

func (f *FakeProvider) UserPlaylists(ctx context.Context) ([]models.RemotePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodUserPlaylists); err != nil {
		return nil, err
	}
	playlists := make([]models.RemotePlaylist, 0, len(f.order))
	for _, id := range f.order {
		playlists = append(playlists, f.playlists[id].snapshot())
	}
	return playlists, nil
}

// SearchTracks matches query case-insensitively against catalog titles and artists, sorted by URI.
func (f *FakeProvider) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodSearch); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	q := strings.ToLower(query)
	var tracks []models.Track
	for _, t := range f.catalog {
		if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Artist), q) {
			tracks = append(tracks, t)
		}
	}
	slices.SortFunc(tracks, func(a, b models.Track) int { return strings.Compare(a.URI, b.URI) })
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func (f *FakeProvider) Track(ctx context.Context, trackID string) (*models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, MethodTrack); err != nil {
		return nil, err
	}
	for _, t := range f.catalog {
		if t.ProviderID == trackID {
			track := t
			return &track, nil
		}
	}
	return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, trackID)
}
