package testing

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// MemoryStore is an in-memory local playlist store with the same ownership and link rules as the
// SQLite repository. Returned playlists are copies.
type MemoryStore struct {
	mu        sync.Mutex
	playlists map[string]*models.Playlist
	order     []string
	updates   int
	failures  map[string]error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playlists: make(map[string]*models.Playlist),
		failures:  make(map[string]error),
	}
}

// FailOn makes the named method ("get", "create", "update", "find", "list") return err.
func (s *MemoryStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Updates returns the number of successful UpdateFields calls.
func (s *MemoryStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Len returns the number of live playlists across all owners.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playlists)
}

func (s *MemoryStore) owned(ownerID, id string) (*models.Playlist, error) {
	p, ok := s.playlists[id]
	if !ok {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}
	if p.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrUnauthorized, id)
	}
	return p, nil
}

func (s *MemoryStore) linkedBy(ownerID, remoteID, except string) *models.Playlist {
	for _, p := range s.playlists {
		if p.OwnerID == ownerID && p.RemoteID == remoteID && p.ID != except {
			return p
		}
	}
	return nil
}

func clonePlaylist(p *models.Playlist) *models.Playlist {
	c := *p
	c.Tracks = slices.Clone(p.Tracks)
	c.TrackCount = len(p.Tracks)
	if p.LastSyncedAt != nil {
		t := *p.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

func (s *MemoryStore) Create(playlist *models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["create"]; err != nil {
		return err
	}
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if playlist.RemoteID != "" && s.linkedBy(playlist.OwnerID, playlist.RemoteID, "") != nil {
		return fmt.Errorf("%w: %s", shared.ErrAlreadyImported, playlist.RemoteID)
	}

	now := time.Now()
	playlist.ID = shared.GenerateID()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now
	for i := range playlist.Tracks {
		t := &playlist.Tracks[i]
		t.OwnerID = playlist.OwnerID
		if t.ID == "" {
			t.ID = shared.GenerateID()
		}
	}
	playlist.TrackCount = len(playlist.Tracks)

	s.playlists[playlist.ID] = clonePlaylist(playlist)
	s.order = append(s.order, playlist.ID)
	return nil
}

func (s *MemoryStore) Get(ownerID, id string) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["get"]; err != nil {
		return nil, err
	}
	p, err := s.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	return clonePlaylist(p), nil
}

func (s *MemoryStore) FindByRemoteID(ownerID, remoteID string) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["find"]; err != nil {
		return nil, err
	}
	if p := s.linkedBy(ownerID, remoteID, ""); p != nil {
		return clonePlaylist(p), nil
	}
	return nil, fmt.Errorf("%w: no playlist linked to %s", shared.ErrNotFound, remoteID)
}

// UpdateFields applies fields. TrackIDs may only reorder or drop existing tracks.
func (s *MemoryStore) UpdateFields(ownerID, id string, fields models.PlaylistFields) (*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["update"]; err != nil {
		return nil, err
	}
	p, err := s.owned(ownerID, id)
	if err != nil {
		return nil, err
	}

	if fields.RemoteID != nil && *fields.RemoteID != "" && s.linkedBy(ownerID, *fields.RemoteID, id) != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlreadyLinked, *fields.RemoteID)
	}

	if fields.Name != nil {
		p.Name = *fields.Name
	}
	if fields.Description != nil {
		p.Description = *fields.Description
	}
	if fields.RemoteID != nil {
		p.RemoteID = *fields.RemoteID
	}
	if fields.LastSyncedAt != nil {
		t := *fields.LastSyncedAt
		p.LastSyncedAt = &t
	}
	if fields.TrackIDs != nil {
		byID := make(map[string]models.Track, len(p.Tracks))
		for _, t := range p.Tracks {
			byID[t.ID] = t
		}
		tracks := make([]models.Track, 0, len(*fields.TrackIDs))
		for _, tid := range *fields.TrackIDs {
			t, ok := byID[tid]
			if !ok {
				return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, tid)
			}
			tracks = append(tracks, t)
		}
		p.Tracks = tracks
	}
	p.UpdatedAt = time.Now()
	s.updates++
	return clonePlaylist(p), nil
}

func (s *MemoryStore) Delete(ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.owned(ownerID, id); err != nil {
		return err
	}
	delete(s.playlists, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

func (s *MemoryStore) List(ownerID string) ([]*models.Playlist, error) {
	return s.list(ownerID, false)
}

func (s *MemoryStore) ListLinked(ownerID string) ([]*models.Playlist, error) {
	return s.list(ownerID, true)
}

func (s *MemoryStore) list(ownerID string, linkedOnly bool) ([]*models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["list"]; err != nil {
		return nil, err
	}
	var out []*models.Playlist
	for _, id := range s.order {
		p := s.playlists[id]
		if p.OwnerID != ownerID || (linkedOnly && !p.Linked()) {
			continue
		}
		c := clonePlaylist(p)
		c.Tracks = nil
		out = append(out, c)
	}
	return out, nil
}
