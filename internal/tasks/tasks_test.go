package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	th "github.com/desertthunder/crate/internal/testing"
)

const owner = "listener"

var (
	earlier = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	later   = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
)

func spotifyTrack(id string) models.Track {
	return models.Track{
		ProviderID: id,
		URI:        "spotify:track:" + id,
		Title:      "Song " + id,
		Artist:     "Artist " + id,
		DurationMS: 200000,
	}
}

func manualTrack(title string) models.Track {
	return models.Track{Title: title, Artist: "Unknown"}
}

func uris(ids ...string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "spotify:track:" + id
	}
	return out
}

func setup(t *testing.T) (*th.FakeProvider, *th.MemoryStore, *Reconciler) {
	t.Helper()
	provider := th.NewFakeProvider(owner)
	store := th.NewMemoryStore()
	reconciler := NewReconciler(provider, store, WithClock(func() time.Time { return later }))
	return provider, store, reconciler
}

// seedLinked stores a local playlist linked to remote "r1" and seeds the remote side.
func seedLinked(t *testing.T, provider *th.FakeProvider, store *th.MemoryStore, local, remote []models.Track) *models.Playlist {
	t.Helper()
	synced := earlier
	playlist := &models.Playlist{
		OwnerID:      owner,
		Name:         "Road Trip",
		Description:  "windows down",
		RemoteID:     "r1",
		LastSyncedAt: &synced,
		Tracks:       local,
	}
	if err := store.Create(playlist); err != nil {
		t.Fatalf("failed to seed playlist: %v", err)
	}
	provider.AddRemote(models.RemotePlaylist{ID: "r1", Name: "Road Trip", Description: "windows down"}, remote...)
	return playlist
}

func sortedSet(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func assertPhase(t *testing.T, err error, want Phase) {
	t.Helper()
	phase, ok := PhaseOf(err)
	if !ok {
		t.Fatalf("expected an OpError, got %T: %v", err, err)
	}
	if phase != want {
		t.Errorf("expected phase %s, got %s", want, phase)
	}
}

func TestComputeDiff(t *testing.T) {
	tests := []struct {
		name       string
		local      []string
		remote     []string
		wantAdd    []string
		wantRemove []string
	}{
		{"Identical", uris("a", "b"), uris("a", "b"), []string{}, []string{}},
		{"Example", uris("a", "b", "c"), uris("a", "c", "d"), uris("b"), uris("d")},
		{"Empty Remote", uris("a", "b"), nil, uris("a", "b"), []string{}},
		{"Empty Local", nil, uris("a", "b"), []string{}, uris("a", "b")},
		{"Order Ignored", uris("c", "b", "a"), uris("a", "b", "c"), []string{}, []string{}},
		{"Duplicates Collapse", uris("a", "b", "b", "a"), uris("c", "c"), uris("a", "b"), uris("c")},
		{"Add Order Follows Local", uris("z", "y", "x"), nil, uris("z", "y", "x"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := ComputeDiff(tt.local, tt.remote)
			if !slices.Equal(diff.ToAdd, tt.wantAdd) {
				t.Errorf("ToAdd = %v, want %v", diff.ToAdd, tt.wantAdd)
			}
			if !slices.Equal(diff.ToRemove, tt.wantRemove) {
				t.Errorf("ToRemove = %v, want %v", diff.ToRemove, tt.wantRemove)
			}
			if diff.Empty() != (len(tt.wantAdd) == 0 && len(tt.wantRemove) == 0) {
				t.Errorf("Empty() = %v", diff.Empty())
			}
		})
	}
}

func TestSync(t *testing.T) {
	t.Run("adds missing and removes extra tracks", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		a, b, c, d := spotifyTrack("a"), spotifyTrack("b"), spotifyTrack("c"), spotifyTrack("d")
		local := seedLinked(t, provider, store, []models.Track{a, b, c}, []models.Track{a, c, d})

		result, err := reconciler.Sync(context.Background(), owner, local.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if !slices.Equal(result.Added, uris("b")) {
			t.Errorf("Added = %v, want [b]", result.Added)
		}
		if !slices.Equal(result.Removed, uris("d")) {
			t.Errorf("Removed = %v, want [d]", result.Removed)
		}
		if got := sortedSet(provider.RemoteURIs("r1")); !slices.Equal(got, uris("a", "b", "c")) {
			t.Errorf("remote set = %v, want {a, b, c}", got)
		}
		if provider.Calls(th.MethodAdd) != 1 || provider.Calls(th.MethodRemove) != 1 {
			t.Errorf("expected one add and one remove call, got %d and %d",
				provider.Calls(th.MethodAdd), provider.Calls(th.MethodRemove))
		}

		stored, err := store.Get(owner, local.ID)
		if err != nil {
			t.Fatalf("failed to reload playlist: %v", err)
		}
		if stored.LastSyncedAt == nil || !stored.LastSyncedAt.Equal(later) {
			t.Errorf("lastSyncedAt = %v, want %v", stored.LastSyncedAt, later)
		}
		if result.Playlist.LastSyncedAt == nil || !result.Playlist.LastSyncedAt.Equal(later) {
			t.Errorf("summary should carry the new sync time, got %v", result.Playlist.LastSyncedAt)
		}
	})

	t.Run("remote set equals local after one sync", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		local := []models.Track{spotifyTrack("a"), manualTrack("Demo"), spotifyTrack("b"), spotifyTrack("a"), spotifyTrack("e")}
		remote := []models.Track{spotifyTrack("x"), spotifyTrack("b"), spotifyTrack("y")}
		playlist := seedLinked(t, provider, store, local, remote)

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if got := sortedSet(provider.RemoteURIs("r1")); !slices.Equal(got, uris("a", "b", "e")) {
			t.Errorf("remote set = %v, want {a, b, e}", got)
		}
		if result.Skipped != 1 {
			t.Errorf("Skipped = %d, want 1", result.Skipped)
		}
		if !slices.Equal(result.Added, uris("a", "e")) {
			t.Errorf("Added = %v, want [a e] in local order", result.Added)
		}
	})

	t.Run("second sync is a no-op", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a"), spotifyTrack("b")},
			[]models.Track{spotifyTrack("c")})

		if _, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil); err != nil {
			t.Fatalf("first Sync() error = %v", err)
		}
		provider.ResetCalls()

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("second Sync() error = %v", err)
		}
		if len(result.Added) != 0 || len(result.Removed) != 0 {
			t.Errorf("expected empty diff, got add=%v remove=%v", result.Added, result.Removed)
		}
		if n := provider.WriteCalls(); n != 0 {
			t.Errorf("expected no remote writes, got %d", n)
		}
		if provider.Calls(th.MethodPlaylist) != 1 {
			t.Errorf("expected a single metadata read, got %d", provider.Calls(th.MethodPlaylist))
		}
	})

	t.Run("order differences are not resynchronised", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a"), spotifyTrack("b"), spotifyTrack("c")},
			[]models.Track{spotifyTrack("c"), spotifyTrack("b"), spotifyTrack("a")})

		if _, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if got := provider.RemoteURIs("r1"); !slices.Equal(got, uris("c", "b", "a")) {
			t.Errorf("remote order should be untouched, got %v", got)
		}
		if provider.WriteCalls() != 0 {
			t.Errorf("expected no remote writes, got %d", provider.WriteCalls())
		}
	})

	t.Run("remote local files are left alone", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		localFile := models.Track{URI: models.LocalURIPrefix + "Artist:Album:Demo:180", Title: "Demo"}
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a")},
			[]models.Track{spotifyTrack("a"), localFile})

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(result.Removed) != 0 {
			t.Errorf("local files should not be removed, got %v", result.Removed)
		}
	})

	t.Run("renamed playlist updates remote details", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store, []models.Track{spotifyTrack("a")}, []models.Track{spotifyTrack("a")})

		name := "Road Trip 2"
		if _, err := store.UpdateFields(owner, playlist.ID, models.PlaylistFields{Name: &name}); err != nil {
			t.Fatalf("failed to rename: %v", err)
		}

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if !result.MetadataUpdated {
			t.Error("expected metadata to be updated")
		}
		remote, _ := provider.Remote("r1")
		if remote.Name != "Road Trip 2" {
			t.Errorf("remote name = %q, want %q", remote.Name, name)
		}
	})

	t.Run("large playlists are paged", func(t *testing.T) {
		provider, store, _ := setup(t)
		reconciler := NewReconciler(provider, store, WithPaging(100, 3), WithClock(func() time.Time { return later }))

		var local, remote []models.Track
		for i := range 250 {
			track := spotifyTrack(fmt.Sprintf("%03d", i))
			local = append(local, track)
			if i%2 == 0 {
				remote = append(remote, track)
			}
		}
		playlist := seedLinked(t, provider, store, local, remote)

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(result.Added) != 125 || len(result.Removed) != 0 {
			t.Errorf("expected 125 additions, got add=%d remove=%d", len(result.Added), len(result.Removed))
		}
		if provider.Calls(th.MethodPlaylistItems) != 2 {
			t.Errorf("expected 2 page reads for 125 remote tracks, got %d", provider.Calls(th.MethodPlaylistItems))
		}
	})

	t.Run("progress is reported", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store, []models.Track{spotifyTrack("a")}, nil)

		progress := make(chan ProgressUpdate, 32)
		if _, err := reconciler.Sync(context.Background(), owner, playlist.ID, progress); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		close(progress)

		var phases []Phase
		for update := range progress {
			phases = append(phases, update.Phase)
		}
		for _, want := range []Phase{ReadLocal, ReadRemote, AddItems, Commit, Complete} {
			if !slices.Contains(phases, want) {
				t.Errorf("missing %s update in %v", want, phases)
			}
		}
	})
}

func TestSyncErrors(t *testing.T) {
	t.Run("remove failure leaves sync time unchanged", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		a, b, c, d := spotifyTrack("a"), spotifyTrack("b"), spotifyTrack("c"), spotifyTrack("d")
		playlist := seedLinked(t, provider, store, []models.Track{a, b, c}, []models.Track{a, c, d})
		provider.FailOn(th.MethodRemove, fmt.Errorf("%w: status 502", shared.ErrRemoteUnavailable))

		_, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err == nil {
			t.Fatal("expected sync to fail")
		}
		assertPhase(t, err, RemoveItems)
		if !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "sync: remove phase failed:") {
			t.Errorf("unexpected message %q", err.Error())
		}

		var opErr *OpError
		if !errors.As(err, &opErr) || opErr.PlaylistID != playlist.ID || opErr.Op != "sync" {
			t.Errorf("unexpected OpError %+v", opErr)
		}

		stored, _ := store.Get(owner, playlist.ID)
		if stored.LastSyncedAt == nil || !stored.LastSyncedAt.Equal(earlier) {
			t.Errorf("lastSyncedAt changed to %v", stored.LastSyncedAt)
		}
		if store.Updates() != 0 {
			t.Errorf("expected no local writes, got %d", store.Updates())
		}
		if provider.Calls(th.MethodAdd) != 1 {
			t.Errorf("add should have run before the failing remove")
		}
	})

	t.Run("retry after failure converges", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a"), spotifyTrack("b")},
			[]models.Track{spotifyTrack("c")})
		provider.FailOn(th.MethodRemove, shared.ErrRemoteUnavailable)

		if _, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil); err == nil {
			t.Fatal("expected first sync to fail")
		}
		provider.FailOn(th.MethodRemove, nil)

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("retry Sync() error = %v", err)
		}
		if len(result.Added) != 0 || !slices.Equal(result.Removed, uris("c")) {
			t.Errorf("retry should only remove c, got add=%v remove=%v", result.Added, result.Removed)
		}
		if got := sortedSet(provider.RemoteURIs("r1")); !slices.Equal(got, uris("a", "b")) {
			t.Errorf("remote set = %v, want {a, b}", got)
		}
	})

	tests := []struct {
		name    string
		method  string
		err     error
		phase   Phase
		wantErr error
	}{
		{"metadata read rejected", th.MethodPlaylist, fmt.Errorf("%w: status 401", shared.ErrAuth), ReadRemote, shared.ErrAuth},
		{"page read unavailable", th.MethodPlaylistItems, shared.ErrRemoteUnavailable, ReadRemote, shared.ErrRemoteUnavailable},
		{"add rejected", th.MethodAdd, shared.ErrAuth, AddItems, shared.ErrAuth},
		{"details update fails", th.MethodUpdate, shared.ErrRemoteUnavailable, UpdateMetadata, shared.ErrRemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, store, reconciler := setup(t)
			playlist := seedLinked(t, provider, store, []models.Track{spotifyTrack("a")}, nil)
			name := "Renamed"
			if _, err := store.UpdateFields(owner, playlist.ID, models.PlaylistFields{Name: &name}); err != nil {
				t.Fatalf("failed to rename: %v", err)
			}
			updatesBefore := store.Updates()
			provider.FailOn(tt.method, tt.err)

			_, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertPhase(t, err, tt.phase)
			if store.Updates() != updatesBefore {
				t.Error("local record should not be written on failure")
			}
		})
	}

	t.Run("commit failure", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store, []models.Track{spotifyTrack("a")}, nil)
		store.FailOn("update", errors.New("disk full"))

		_, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		assertPhase(t, err, Commit)
	})

	t.Run("remote playlist deleted", func(t *testing.T) {
		_, store, reconciler := setup(t)
		synced := earlier
		playlist := &models.Playlist{OwnerID: owner, Name: "Gone", RemoteID: "missing", LastSyncedAt: &synced}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		_, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		assertPhase(t, err, ReadRemote)
	})

	t.Run("unlinked playlist", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := &models.Playlist{OwnerID: owner, Name: "Local only"}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		_, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if !errors.Is(err, shared.ErrNotLinked) {
			t.Fatalf("expected ErrNotLinked, got %v", err)
		}
		assertPhase(t, err, ReadLocal)
		if provider.Calls(th.MethodPlaylist) != 0 {
			t.Error("provider should not be contacted")
		}
	})

	t.Run("another owner's playlist", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store, []models.Track{spotifyTrack("a")}, nil)

		_, err := reconciler.Sync(context.Background(), "intruder", playlist.ID, nil)
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if provider.WriteCalls() != 0 {
			t.Error("provider should not be written to")
		}
	})

	t.Run("missing playlist", func(t *testing.T) {
		_, _, reconciler := setup(t)
		_, err := reconciler.Sync(context.Background(), owner, "nope", nil)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestImport(t *testing.T) {
	t.Run("creates linked playlist", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		localFile := models.Track{URI: models.LocalURIPrefix + "x", Title: "Bootleg"}
		provider.AddRemote(models.RemotePlaylist{ID: "r9", Name: "Discover", Description: "weekly"},
			spotifyTrack("a"), spotifyTrack("b"), localFile)

		result, err := reconciler.Import(context.Background(), owner, "r9", nil)
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if result.AlreadyImported {
			t.Error("first import should not be flagged as already imported")
		}
		if result.ImportedTracks != 3 {
			t.Errorf("ImportedTracks = %d, want 3", result.ImportedTracks)
		}

		stored, err := store.Get(owner, result.Playlist.ID)
		if err != nil {
			t.Fatalf("failed to load imported playlist: %v", err)
		}
		if stored.Name != "Discover" || stored.Description != "weekly" || stored.RemoteID != "r9" {
			t.Errorf("unexpected imported playlist %+v", stored)
		}
		if stored.LastSyncedAt == nil || !stored.LastSyncedAt.Equal(later) {
			t.Errorf("lastSyncedAt = %v, want %v", stored.LastSyncedAt, later)
		}
		if len(stored.Tracks) != 3 || stored.Tracks[0].ProviderID != "a" {
			t.Errorf("tracks not imported in order: %+v", stored.Tracks)
		}
		if provider.WriteCalls() != 0 {
			t.Errorf("import should not write to the provider")
		}
	})

	t.Run("import then sync is a no-op", func(t *testing.T) {
		provider, _, reconciler := setup(t)
		provider.AddRemote(models.RemotePlaylist{ID: "r9", Name: "Discover"},
			spotifyTrack("a"), spotifyTrack("b"), spotifyTrack("a"))

		imported, err := reconciler.Import(context.Background(), owner, "r9", nil)
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}

		result, err := reconciler.Sync(context.Background(), owner, imported.Playlist.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(result.Added) != 0 || len(result.Removed) != 0 || result.MetadataUpdated {
			t.Errorf("expected no changes, got %+v", result)
		}
		if provider.WriteCalls() != 0 {
			t.Errorf("expected no remote writes, got %d", provider.WriteCalls())
		}
	})

	t.Run("import twice", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		provider.AddRemote(models.RemotePlaylist{ID: "r9", Name: "Discover"}, spotifyTrack("a"))

		first, err := reconciler.Import(context.Background(), owner, "r9", nil)
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		reads := provider.Calls(th.MethodPlaylist)

		second, err := reconciler.Import(context.Background(), owner, "r9", nil)
		if !errors.Is(err, shared.ErrAlreadyImported) {
			t.Fatalf("expected ErrAlreadyImported, got %v", err)
		}
		if second == nil || !second.AlreadyImported || second.Playlist.ID != first.Playlist.ID {
			t.Errorf("expected existing playlist to be returned, got %+v", second)
		}
		if store.Len() != 1 {
			t.Errorf("expected one stored playlist, got %d", store.Len())
		}
		if provider.Calls(th.MethodPlaylist) != reads {
			t.Error("second import should not read the remote playlist")
		}
	})

	t.Run("other owners may import the same playlist", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		provider.AddRemote(models.RemotePlaylist{ID: "r9", Name: "Shared"}, spotifyTrack("a"))

		if _, err := reconciler.Import(context.Background(), owner, "r9", nil); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if _, err := reconciler.Import(context.Background(), "friend", "r9", nil); err != nil {
			t.Fatalf("Import() for another owner error = %v", err)
		}
		if store.Len() != 2 {
			t.Errorf("expected two stored playlists, got %d", store.Len())
		}
	})

	t.Run("errors", func(t *testing.T) {
		provider, store, reconciler := setup(t)

		_, err := reconciler.Import(context.Background(), owner, "missing", nil)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		assertPhase(t, err, ReadRemote)

		_, err = reconciler.Import(context.Background(), owner, " ", nil)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		provider.AddRemote(models.RemotePlaylist{ID: "r9", Name: "Discover"}, spotifyTrack("a"))
		store.FailOn("create", errors.New("locked"))
		_, err = reconciler.Import(context.Background(), owner, "r9", nil)
		assertPhase(t, err, Commit)
		if store.Len() != 0 {
			t.Errorf("expected nothing stored, got %d", store.Len())
		}
	})
}

func TestMirror(t *testing.T) {
	t.Run("restores local order", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a"), spotifyTrack("b"), manualTrack("Voice memo"), spotifyTrack("c"), spotifyTrack("a")},
			[]models.Track{spotifyTrack("c"), spotifyTrack("d"), spotifyTrack("a")})

		result, err := reconciler.Mirror(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("Mirror() error = %v", err)
		}
		if got := provider.RemoteURIs("r1"); !slices.Equal(got, uris("a", "b", "c")) {
			t.Errorf("expected remote [a b c], got %v", got)
		}
		if batches := provider.Batches(th.MethodReplace); len(batches) != 1 {
			t.Errorf("expected one replace call, got %v", batches)
		}
		if provider.Calls(th.MethodAdd) != 0 || provider.Calls(th.MethodRemove) != 0 {
			t.Error("mirror should not add or remove item by item")
		}
		if !slices.Equal(result.Added, uris("b")) || !slices.Equal(result.Removed, uris("d")) || result.Skipped != 1 {
			t.Errorf("unexpected result %+v", result)
		}

		stored, _ := store.Get(owner, playlist.ID)
		if stored.LastSyncedAt == nil || !stored.LastSyncedAt.Equal(later) {
			t.Errorf("expected lastSyncedAt %v, got %v", later, stored.LastSyncedAt)
		}
	})

	t.Run("matching remote is left alone", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a"), spotifyTrack("b")},
			[]models.Track{spotifyTrack("a"), spotifyTrack("b")})

		if _, err := reconciler.Mirror(context.Background(), owner, playlist.ID, nil); err != nil {
			t.Fatalf("Mirror() error = %v", err)
		}
		if provider.WriteCalls() != 0 {
			t.Errorf("expected no remote writes, got %d", provider.WriteCalls())
		}
	})

	t.Run("replace failure leaves sync time unchanged", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store,
			[]models.Track{spotifyTrack("a"), spotifyTrack("b")},
			[]models.Track{spotifyTrack("b"), spotifyTrack("a")})
		provider.FailOn(th.MethodReplace, fmt.Errorf("%w: status 503", shared.ErrRemoteUnavailable))

		_, err := reconciler.Mirror(context.Background(), owner, playlist.ID, nil)
		assertPhase(t, err, ReplaceItems)
		if !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
		if store.Updates() != 0 {
			t.Errorf("expected no local writes, got %d", store.Updates())
		}
	})

	t.Run("unlinked playlist", func(t *testing.T) {
		_, store, reconciler := setup(t)
		playlist := &models.Playlist{OwnerID: owner, Name: "Local"}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}
		_, err := reconciler.Mirror(context.Background(), owner, playlist.ID, nil)
		if !errors.Is(err, shared.ErrNotLinked) {
			t.Errorf("expected ErrNotLinked, got %v", err)
		}
	})
}

func TestCreateOnRemote(t *testing.T) {
	t.Run("skips tracks without a provider uri", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := &models.Playlist{
			OwnerID:     owner,
			Name:        "Fresh",
			Description: "made locally",
			Tracks: []models.Track{
				spotifyTrack("a"), spotifyTrack("b"), manualTrack("Live bootleg"), spotifyTrack("c"), spotifyTrack("d"),
			},
		}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		result, err := reconciler.CreateOnRemote(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("CreateOnRemote() error = %v", err)
		}
		if len(result.Added) != 4 || result.Skipped != 1 {
			t.Errorf("expected 4 added and 1 skipped, got %d and %d", len(result.Added), result.Skipped)
		}

		stored, _ := store.Get(owner, playlist.ID)
		if !stored.Linked() {
			t.Fatal("playlist should be linked")
		}
		if stored.LastSyncedAt == nil || !stored.LastSyncedAt.Equal(later) {
			t.Errorf("lastSyncedAt = %v, want %v", stored.LastSyncedAt, later)
		}
		if got := provider.RemoteURIs(stored.RemoteID); !slices.Equal(got, uris("a", "b", "c", "d")) {
			t.Errorf("remote tracks = %v", got)
		}
		remote, _ := provider.Remote(stored.RemoteID)
		if remote.Name != "Fresh" || remote.Description != "made locally" || remote.OwnerID != owner {
			t.Errorf("unexpected remote playlist %+v", remote)
		}
	})

	t.Run("empty playlist", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := &models.Playlist{OwnerID: owner, Name: "Empty"}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		result, err := reconciler.CreateOnRemote(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("CreateOnRemote() error = %v", err)
		}
		if len(result.Added) != 0 || provider.Calls(th.MethodAdd) != 0 {
			t.Errorf("expected no add call for an empty playlist")
		}
	})

	t.Run("then sync is a no-op", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := &models.Playlist{OwnerID: owner, Name: "Fresh", Tracks: []models.Track{spotifyTrack("a"), spotifyTrack("b")}}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}
		if _, err := reconciler.CreateOnRemote(context.Background(), owner, playlist.ID, nil); err != nil {
			t.Fatalf("CreateOnRemote() error = %v", err)
		}
		provider.ResetCalls()

		result, err := reconciler.Sync(context.Background(), owner, playlist.ID, nil)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if len(result.Added)+len(result.Removed) != 0 || provider.WriteCalls() != 0 {
			t.Errorf("expected no changes, got %+v", result)
		}
	})

	t.Run("already linked", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := seedLinked(t, provider, store, []models.Track{spotifyTrack("a")}, nil)

		_, err := reconciler.CreateOnRemote(context.Background(), owner, playlist.ID, nil)
		if !errors.Is(err, shared.ErrAlreadyLinked) {
			t.Fatalf("expected ErrAlreadyLinked, got %v", err)
		}
		assertPhase(t, err, ReadLocal)
		if provider.Calls(th.MethodCreate) != 0 {
			t.Error("no remote playlist should be created")
		}
	})

	t.Run("add failure leaves playlist unlinked", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := &models.Playlist{OwnerID: owner, Name: "Fresh", Tracks: []models.Track{spotifyTrack("a")}}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}
		provider.FailOn(th.MethodAdd, shared.ErrRemoteUnavailable)

		_, err := reconciler.CreateOnRemote(context.Background(), owner, playlist.ID, nil)
		assertPhase(t, err, AddItems)

		stored, _ := store.Get(owner, playlist.ID)
		if stored.Linked() || stored.LastSyncedAt != nil {
			t.Errorf("playlist should stay unlinked and unsynced, got %+v", stored)
		}
	})

	t.Run("create failure", func(t *testing.T) {
		provider, store, reconciler := setup(t)
		playlist := &models.Playlist{OwnerID: owner, Name: "Fresh"}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}
		provider.FailOn(th.MethodCreate, shared.ErrAuth)

		_, err := reconciler.CreateOnRemote(context.Background(), owner, playlist.ID, nil)
		if !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
		assertPhase(t, err, CreateRemote)
	})
}

func TestSyncAll(t *testing.T) {
	provider, store, _ := setup(t)
	reconciler := NewReconciler(provider, store, WithWorkers(2), WithClock(func() time.Time { return later }))

	seeds := []struct {
		name   string
		remote string
	}{
		{"One", "r1"},
		{"Two", "r2"},
		{"Broken", "gone"},
		{"Three", "r3"},
	}
	for _, s := range seeds {
		synced := earlier
		playlist := &models.Playlist{
			OwnerID:      owner,
			Name:         s.name,
			RemoteID:     s.remote,
			LastSyncedAt: &synced,
			Tracks:       []models.Track{spotifyTrack(s.remote + "-a")},
		}
		if err := store.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}
		if s.remote != "gone" {
			provider.AddRemote(models.RemotePlaylist{ID: s.remote, Name: s.name})
		}
	}
	if err := store.Create(&models.Playlist{OwnerID: owner, Name: "Unlinked"}); err != nil {
		t.Fatalf("failed to seed playlist: %v", err)
	}

	progress := make(chan ProgressUpdate, 16)
	result, err := reconciler.SyncAll(context.Background(), owner, progress)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	close(progress)

	if len(result.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(result.Outcomes))
	}
	if result.Succeeded != 3 || result.Failed != 1 {
		t.Errorf("expected 3 succeeded and 1 failed, got %d and %d", result.Succeeded, result.Failed)
	}

	for i, outcome := range result.Outcomes {
		if outcome.Name != seeds[i].name {
			t.Errorf("outcome %d is %s, want %s", i, outcome.Name, seeds[i].name)
		}
	}
	broken := result.Outcomes[2]
	if !errors.Is(broken.Err, shared.ErrNotFound) || broken.Phase != "read-remote" {
		t.Errorf("unexpected failure outcome %+v", broken)
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		if got := provider.RemoteURIs(id); len(got) != 1 {
			t.Errorf("remote %s should hold one track, got %v", id, got)
		}
	}

	count := 0
	for range progress {
		count++
	}
	if count != 4 {
		t.Errorf("expected one progress update per playlist, got %d", count)
	}

	t.Run("list failure", func(t *testing.T) {
		store.FailOn("list", errors.New("locked"))
		defer store.FailOn("list", nil)

		if _, err := reconciler.SyncAll(context.Background(), owner, nil); err == nil {
			t.Error("expected error when playlists cannot be listed")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := reconciler.SyncAll(ctx, owner, nil)
		if err != nil {
			t.Fatalf("SyncAll() error = %v", err)
		}
		if result.Failed != 4 {
			t.Errorf("expected every playlist to fail, got %d", result.Failed)
		}
	})
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "sync", Phase: RemoveItems, PlaylistID: "p1", Err: shared.ErrRemoteUnavailable}
	if err.Error() != "sync: remove phase failed: remote provider unavailable" {
		t.Errorf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if phase, ok := PhaseOf(wrapped); !ok || phase != RemoveItems {
		t.Errorf("PhaseOf(wrapped) = %v, %v", phase, ok)
	}
	if _, ok := PhaseOf(errors.New("plain")); ok {
		t.Error("plain errors have no phase")
	}

	text, _ := UpdateMetadata.MarshalText()
	if string(text) != "update-metadata" {
		t.Errorf("unexpected phase text %q", text)
	}
}
