package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// Store is the local playlist store consumed by the [Reconciler].
//
// Satisfied by the SQLite PlaylistRepository and the in-memory store used in tests.
type Store interface {
	Get(ownerID, id string) (*models.Playlist, error)
	Create(playlist *models.Playlist) error
	UpdateFields(ownerID, id string, fields models.PlaylistFields) (*models.Playlist, error)
	FindByRemoteID(ownerID, remoteID string) (*models.Playlist, error)
	ListLinked(ownerID string) ([]*models.Playlist, error)
}

// Diff is the set difference between local and remote playlist URIs.
type Diff struct {
	ToAdd    []string `json:"to_add"`    // in local on-disk order
	ToRemove []string `json:"to_remove"` // in remote order
}

// Empty reports whether the two sides already hold the same set of tracks.
func (d Diff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// ComputeDiff returns local − remote and remote − local, each without duplicates.
//
// Only set membership is compared; the relative order of tracks present on both sides is ignored.
func ComputeDiff(local, remote []string) Diff {
	localSet := make(map[string]struct{}, len(local))
	for _, uri := range local {
		localSet[uri] = struct{}{}
	}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, uri := range remote {
		remoteSet[uri] = struct{}{}
	}

	diff := Diff{ToAdd: []string{}, ToRemove: []string{}}
	for _, uri := range dedupe(local) {
		if _, ok := remoteSet[uri]; !ok {
			diff.ToAdd = append(diff.ToAdd, uri)
		}
	}
	for _, uri := range dedupe(remote) {
		if _, ok := localSet[uri]; !ok {
			diff.ToRemove = append(diff.ToRemove, uri)
		}
	}
	return diff
}

// ImportResult is returned by [Reconciler.Import].
type ImportResult struct {
	Playlist        models.PlaylistSummary `json:"playlist"`
	ImportedTracks  int                    `json:"imported_tracks"`
	AlreadyImported bool                   `json:"already_imported"`
}

// SyncResult is returned by [Reconciler.Sync], [Reconciler.Mirror] and [Reconciler.CreateOnRemote].
type SyncResult struct {
	Playlist        models.PlaylistSummary `json:"playlist"`
	Added           []string               `json:"added"`
	Removed         []string               `json:"removed"`
	Skipped         int                    `json:"skipped"`
	MetadataUpdated bool                   `json:"metadata_updated"`
}

// Reconciler keeps local playlists and their Spotify counterparts in step.
//
// Every operation performs its remote calls first and writes local state once, after all of them have
// succeeded. A failure at any point leaves the local record untouched and is reported as an [OpError].
type Reconciler struct {
	provider services.Provider
	reader   *services.Reader
	store    Store
	logger   *log.Logger
	workers  int
	now      func() time.Time
}

// ReconcilerOption configures a [Reconciler].
type ReconcilerOption func(*Reconciler)

// WithPaging sets the page size and parallel page fetches used to read remote playlists.
func WithPaging(pageSize, concurrency int) ReconcilerOption {
	return func(r *Reconciler) { r.reader = services.NewReader(r.provider, pageSize, concurrency) }
}

// WithWorkers bounds the number of playlists [Reconciler.SyncAll] syncs at once.
func WithWorkers(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(logger *log.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source used for sync timestamps.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a new Reconciler over the given provider and store.
func NewReconciler(provider services.Provider, store Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		provider: provider,
		reader:   services.NewReader(provider, services.MaxItemsPerRequest, 1),
		store:    store,
		logger:   shared.NewLogger(io.Discard),
		workers:  4,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (r *Reconciler) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Import creates a linked local playlist from the remote playlist remoteID.
//
// Tracks are resolved against the owner's library by Spotify id. When the owner already has a playlist
// linked to remoteID the existing playlist is returned with AlreadyImported set, together with an error
// wrapping [shared.ErrAlreadyImported]; nothing is written.
func (r *Reconciler) Import(ctx context.Context, ownerID, remoteID string, progress chan<- ProgressUpdate) (*ImportResult, error) {
	const op = "import"
	logger := r.logger.With("op", op, "remote_id", remoteID)

	if strings.TrimSpace(remoteID) == "" {
		return nil, opError(op, ReadLocal, remoteID, fmt.Errorf("%w: remote playlist id is required", shared.ErrInvalidInput))
	}

	r.sendProgress(progress, readLocalUpdate(remoteID))
	if existing, err := r.store.FindByRemoteID(ownerID, remoteID); err == nil {
		logger.Info("playlist already imported", "id", existing.ID)
		return alreadyImported(existing), opError(op, ReadLocal, existing.ID, fmt.Errorf("%w: %s", shared.ErrAlreadyImported, remoteID))
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, opError(op, ReadLocal, remoteID, err)
	}

	r.sendProgress(progress, readRemoteUpdate(remoteID))
	remote, err := r.provider.Playlist(ctx, remoteID)
	if err != nil {
		return nil, opError(op, ReadRemote, remoteID, err)
	}
	tracks, err := r.reader.Tracks(ctx, remoteID)
	if err != nil {
		return nil, opError(op, ReadRemote, remoteID, err)
	}
	r.sendProgress(progress, foundRemoteUpdate(remoteID, remote, len(tracks)))

	for i := range tracks {
		tracks[i].ID = ""
		if strings.TrimSpace(tracks[i].Title) == "" {
			tracks[i].Title = tracks[i].URI
		}
	}

	r.sendProgress(progress, commitUpdate(remoteID))
	syncedAt := r.now()
	playlist := &models.Playlist{
		OwnerID:      ownerID,
		Name:         remote.Name,
		Description:  remote.Description,
		RemoteID:     remoteID,
		LastSyncedAt: &syncedAt,
		Tracks:       tracks,
	}
	if strings.TrimSpace(playlist.Name) == "" {
		playlist.Name = remoteID
	}

	if err := r.store.Create(playlist); err != nil {
		if errors.Is(err, shared.ErrAlreadyImported) {
			if existing, findErr := r.store.FindByRemoteID(ownerID, remoteID); findErr == nil {
				return alreadyImported(existing), opError(op, Commit, existing.ID, err)
			}
		}
		return nil, opError(op, Commit, remoteID, err)
	}

	logger.Info("imported playlist", "id", playlist.ID, "tracks", len(tracks))
	result := &ImportResult{Playlist: playlist.Summary(), ImportedTracks: len(tracks)}
	r.sendProgress(progress, completeUpdate(playlist.ID, result.Playlist))
	return result, nil
}

// Sync pushes the local playlist's track set and details to its linked remote playlist.
//
// Local tracks without a provider URI are skipped. Tracks missing remotely are added in local order in one
// batch, then tracks missing locally are removed in one batch. The remote name and description are updated
// when they differ. lastSyncedAt is written only after every remote call has succeeded.
func (r *Reconciler) Sync(ctx context.Context, ownerID, playlistID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	const op = "sync"

	r.sendProgress(progress, readLocalUpdate(playlistID))
	local, err := r.store.Get(ownerID, playlistID)
	if err != nil {
		return nil, opError(op, ReadLocal, playlistID, err)
	}
	if !local.Linked() {
		return nil, opError(op, ReadLocal, playlistID, fmt.Errorf("%w: %s", shared.ErrNotLinked, local.Name))
	}
	logger := r.logger.With("op", op, "id", playlistID, "remote_id", local.RemoteID)

	r.sendProgress(progress, readRemoteUpdate(local.RemoteID))
	remote, err := r.provider.Playlist(ctx, local.RemoteID)
	if err != nil {
		return nil, opError(op, ReadRemote, playlistID, err)
	}
	remoteTracks, err := r.reader.Tracks(ctx, local.RemoteID)
	if err != nil {
		return nil, opError(op, ReadRemote, playlistID, err)
	}

	localURIs, skipped := local.ProviderURIs()
	diff := ComputeDiff(localURIs, remoteURIs(remoteTracks))
	r.sendProgress(progress, diffUpdate(playlistID, diff))
	logger.Debug("computed diff", "add", len(diff.ToAdd), "remove", len(diff.ToRemove), "skipped", skipped)

	if len(diff.ToAdd) > 0 {
		r.sendProgress(progress, addItemsUpdate(playlistID, len(diff.ToAdd)))
		if err := r.provider.AddItems(ctx, local.RemoteID, diff.ToAdd); err != nil {
			return nil, opError(op, AddItems, playlistID, err)
		}
	}

	if len(diff.ToRemove) > 0 {
		r.sendProgress(progress, removeItemsUpdate(playlistID, len(diff.ToRemove)))
		if err := r.provider.RemoveItems(ctx, local.RemoteID, diff.ToRemove); err != nil {
			return nil, opError(op, RemoveItems, playlistID, err)
		}
	}

	metadataUpdated, err := r.pushDetails(ctx, local, remote, progress)
	if err != nil {
		return nil, opError(op, UpdateMetadata, playlistID, err)
	}

	r.sendProgress(progress, commitUpdate(playlistID))
	syncedAt := r.now()
	updated, err := r.store.UpdateFields(ownerID, playlistID, models.PlaylistFields{LastSyncedAt: &syncedAt})
	if err != nil {
		return nil, opError(op, Commit, playlistID, err)
	}

	logger.Info("synced playlist", "added", len(diff.ToAdd), "removed", len(diff.ToRemove), "metadata", metadataUpdated)
	result := &SyncResult{
		Playlist:        updated.Summary(),
		Added:           diff.ToAdd,
		Removed:         diff.ToRemove,
		Skipped:         skipped,
		MetadataUpdated: metadataUpdated,
	}
	r.sendProgress(progress, completeUpdate(playlistID, result.Playlist))
	return result, nil
}

// CreateOnRemote creates a remote playlist from an unlinked local playlist and links the two.
//
// The remote playlist is created for the owner (the owner id is the Spotify user id) as private. Tracks
// without a provider URI are skipped and counted.
func (r *Reconciler) CreateOnRemote(ctx context.Context, ownerID, playlistID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	const op = "create"

	r.sendProgress(progress, readLocalUpdate(playlistID))
	local, err := r.store.Get(ownerID, playlistID)
	if err != nil {
		return nil, opError(op, ReadLocal, playlistID, err)
	}
	if local.Linked() {
		return nil, opError(op, ReadLocal, playlistID, fmt.Errorf("%w: %s", shared.ErrAlreadyLinked, local.RemoteID))
	}
	logger := r.logger.With("op", op, "id", playlistID)

	r.sendProgress(progress, createRemoteUpdate(playlistID, local.Name))
	remote, err := r.provider.CreatePlaylist(ctx, ownerID, services.PlaylistDetails{
		Name:        local.Name,
		Description: local.Description,
	})
	if err != nil {
		return nil, opError(op, CreateRemote, playlistID, err)
	}

	uris, skipped := local.ProviderURIs()
	if uris == nil {
		uris = []string{}
	}
	if len(uris) > 0 {
		r.sendProgress(progress, addItemsUpdate(playlistID, len(uris)))
		if err := r.provider.AddItems(ctx, remote.ID, uris); err != nil {
			logger.Warn("remote playlist left without tracks", "remote_id", remote.ID, "err", err)
			return nil, opError(op, AddItems, playlistID, err)
		}
	}

	r.sendProgress(progress, commitUpdate(playlistID))
	syncedAt := r.now()
	remoteID := remote.ID
	updated, err := r.store.UpdateFields(ownerID, playlistID, models.PlaylistFields{
		RemoteID:     &remoteID,
		LastSyncedAt: &syncedAt,
	})
	if err != nil {
		return nil, opError(op, Commit, playlistID, err)
	}

	logger.Info("created remote playlist", "remote_id", remote.ID, "added", len(uris), "skipped", skipped)
	result := &SyncResult{
		Playlist: updated.Summary(),
		Added:    uris,
		Removed:  []string{},
		Skipped:  skipped,
	}
	r.sendProgress(progress, completeUpdate(playlistID, result.Playlist))
	return result, nil
}

// Mirror overwrites the linked remote playlist with the local track list, in local order.
//
// Unlike [Reconciler.Sync] this also restores the relative order of tracks present on both sides. The
// remote tracks are replaced in a single call, skipped when the remote list already matches. Added and
// Removed report the set difference.
func (r *Reconciler) Mirror(ctx context.Context, ownerID, playlistID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	const op = "mirror"

	r.sendProgress(progress, readLocalUpdate(playlistID))
	local, err := r.store.Get(ownerID, playlistID)
	if err != nil {
		return nil, opError(op, ReadLocal, playlistID, err)
	}
	if !local.Linked() {
		return nil, opError(op, ReadLocal, playlistID, fmt.Errorf("%w: %s", shared.ErrNotLinked, local.Name))
	}
	logger := r.logger.With("op", op, "id", playlistID, "remote_id", local.RemoteID)

	r.sendProgress(progress, readRemoteUpdate(local.RemoteID))
	remote, err := r.provider.Playlist(ctx, local.RemoteID)
	if err != nil {
		return nil, opError(op, ReadRemote, playlistID, err)
	}
	remoteTracks, err := r.reader.Tracks(ctx, local.RemoteID)
	if err != nil {
		return nil, opError(op, ReadRemote, playlistID, err)
	}

	localURIs, skipped := local.ProviderURIs()
	ordered := dedupe(localURIs)
	current := remoteURIs(remoteTracks)
	diff := ComputeDiff(ordered, current)
	r.sendProgress(progress, diffUpdate(playlistID, diff))

	if !slices.Equal(ordered, current) {
		r.sendProgress(progress, replaceItemsUpdate(playlistID, len(ordered)))
		if err := r.provider.ReplaceItems(ctx, local.RemoteID, ordered); err != nil {
			return nil, opError(op, ReplaceItems, playlistID, err)
		}
	}

	metadataUpdated, err := r.pushDetails(ctx, local, remote, progress)
	if err != nil {
		return nil, opError(op, UpdateMetadata, playlistID, err)
	}

	r.sendProgress(progress, commitUpdate(playlistID))
	syncedAt := r.now()
	updated, err := r.store.UpdateFields(ownerID, playlistID, models.PlaylistFields{LastSyncedAt: &syncedAt})
	if err != nil {
		return nil, opError(op, Commit, playlistID, err)
	}

	logger.Info("mirrored playlist", "tracks", len(ordered), "added", len(diff.ToAdd), "removed", len(diff.ToRemove))
	result := &SyncResult{
		Playlist:        updated.Summary(),
		Added:           diff.ToAdd,
		Removed:         diff.ToRemove,
		Skipped:         skipped,
		MetadataUpdated: metadataUpdated,
	}
	r.sendProgress(progress, completeUpdate(playlistID, result.Playlist))
	return result, nil
}

// pushDetails updates the remote name and description when they differ from the local playlist.
func (r *Reconciler) pushDetails(ctx context.Context, local *models.Playlist, remote *models.RemotePlaylist, progress chan<- ProgressUpdate) (bool, error) {
	if remote.Name == local.Name && remote.Description == local.Description {
		return false, nil
	}
	r.sendProgress(progress, updateMetadataUpdate(local.ID))
	details := services.PlaylistDetails{Name: local.Name, Description: local.Description, Public: remote.Public}
	if err := r.provider.UpdateDetails(ctx, local.RemoteID, details); err != nil {
		return false, err
	}
	return true, nil
}

func alreadyImported(existing *models.Playlist) *ImportResult {
	return &ImportResult{
		Playlist:        existing.Summary(),
		ImportedTracks:  0,
		AlreadyImported: true,
	}
}

// remoteURIs returns the URIs of remote tracks that can be addressed by URI. Spotify local files are excluded.
func remoteURIs(tracks []models.Track) []string {
	uris := make([]string, 0, len(tracks))
	for i := range tracks {
		if tracks[i].HasProviderURI() {
			uris = append(uris, tracks[i].URI)
		}
	}
	return uris
}

func dedupe(uris []string) []string {
	seen := make(map[string]struct{}, len(uris))
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}
