package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser inserts a user so owned records satisfy their foreign keys
func seedUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	if err := NewUserRepository(db).Upsert(&models.User{ID: id, DisplayName: id}); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

func providerTrack(id string) models.Track {
	return models.Track{
		ProviderID: id,
		URI:        "spotify:track:" + id,
		Title:      "Song " + id,
		Artist:     "Artist",
		DurationMS: 180_000,
	}
}

func TestUserRepository(t *testing.T) {
	t.Run("Upsert inserts then updates", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		user := &models.User{ID: "spotify-1", DisplayName: "First", Email: "a@example.com"}
		if err := repo.Upsert(user); err != nil {
			t.Fatalf("failed to insert user: %v", err)
		}
		if user.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", user.Sequence)
		}

		user.DisplayName = "Renamed"
		if err := repo.Upsert(user); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		retrieved, err := repo.Get("spotify-1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if retrieved.DisplayName != "Renamed" {
			t.Errorf("expected display name Renamed, got %s", retrieved.DisplayName)
		}
		if retrieved.Sequence != 1 {
			t.Errorf("sequence should not change on update, got %d", retrieved.Sequence)
		}
	})

	t.Run("Upsert restores deleted user", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		seedUser(t, db, "spotify-1")

		if err := repo.Delete("spotify-1"); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}
		if err := repo.Upsert(&models.User{ID: "spotify-1", DisplayName: "Back"}); err != nil {
			t.Fatalf("failed to restore user: %v", err)
		}
		if _, err := repo.Get("spotify-1"); err != nil {
			t.Errorf("restored user should be readable: %v", err)
		}
	})
}

func TestTrackRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewTrackRepository(db)

		track := providerTrack("a")
		track.OwnerID = "u1"
		if err := repo.Create(&track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
		if track.ID == "" {
			t.Fatal("track ID should be set after creation")
		}

		retrieved, err := repo.Get("u1", track.ID)
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if retrieved.URI != "spotify:track:a" || retrieved.DurationMS != 180_000 {
			t.Errorf("unexpected track %+v", retrieved)
		}
	})

	t.Run("Save reuses provider tracks", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewTrackRepository(db)

		first := providerTrack("a")
		first.OwnerID = "u1"
		created, err := repo.Save(&first)
		if err != nil || !created {
			t.Fatalf("expected new track, created=%v err=%v", created, err)
		}

		second := providerTrack("a")
		second.OwnerID = "u1"
		created, err = repo.Save(&second)
		if err != nil {
			t.Fatalf("failed to save duplicate: %v", err)
		}
		if created {
			t.Error("second save should reuse the existing track")
		}
		if second.ID != first.ID {
			t.Errorf("expected reused id %s, got %s", first.ID, second.ID)
		}
	})

	t.Run("Save restores removed tracks", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewTrackRepository(db)

		track := providerTrack("a")
		track.OwnerID = "u1"
		if _, err := repo.Save(&track); err != nil {
			t.Fatalf("failed to save track: %v", err)
		}
		if err := repo.Delete("u1", track.ID); err != nil {
			t.Fatalf("failed to delete track: %v", err)
		}

		again := providerTrack("a")
		again.OwnerID = "u1"
		if _, err := repo.Save(&again); err != nil {
			t.Fatalf("failed to re-save track: %v", err)
		}
		if again.ID != track.ID {
			t.Errorf("expected restored id %s, got %s", track.ID, again.ID)
		}
		if _, err := repo.Get("u1", track.ID); err != nil {
			t.Errorf("restored track should be readable: %v", err)
		}
	})

	t.Run("manual tracks dedupe by title and artist", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewTrackRepository(db)

		a := models.Track{OwnerID: "u1", Title: "Home Recording", Artist: "Me"}
		b := models.Track{OwnerID: "u1", Title: "  home   recording ", Artist: "ME"}
		if _, err := repo.Save(&a); err != nil {
			t.Fatalf("failed to save track: %v", err)
		}
		created, err := repo.Save(&b)
		if err != nil {
			t.Fatalf("failed to save track: %v", err)
		}
		if created || a.ID != b.ID {
			t.Errorf("expected normalized duplicate to be reused")
		}
	})

	t.Run("List and Search are owner scoped", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		seedUser(t, db, "u2")
		repo := NewTrackRepository(db)

		for _, owner := range []string{"u1", "u2"} {
			track := providerTrack("a")
			track.OwnerID = owner
			if err := repo.Create(&track); err != nil {
				t.Fatalf("failed to create track: %v", err)
			}
		}
		other := models.Track{OwnerID: "u1", Title: "Different", Artist: "Band", Album: "Blue"}
		if err := repo.Create(&other); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		all, err := repo.List("u1")
		if err != nil {
			t.Fatalf("failed to list tracks: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 tracks for u1, got %d", len(all))
		}

		found, err := repo.Search("u1", "blue")
		if err != nil {
			t.Fatalf("failed to search tracks: %v", err)
		}
		if len(found) != 1 || found[0].ID != other.ID {
			t.Errorf("expected search to match album, got %+v", found)
		}
	})
}

func TestPlaylistRepository(t *testing.T) {
	t.Run("Create stores ordered tracks", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewPlaylistRepository(db)

		playlist := &models.Playlist{
			OwnerID:     "u1",
			Name:        "Mix",
			Description: "desc",
			Tracks:      []models.Track{providerTrack("c"), providerTrack("a"), providerTrack("b")},
		}
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		retrieved, err := repo.Get("u1", playlist.ID)
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}

		if retrieved.Linked() {
			t.Error("playlist without remote id should not be linked")
		}
		if len(retrieved.Tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(retrieved.Tracks))
		}
		for i, want := range []string{"c", "a", "b"} {
			if retrieved.Tracks[i].ProviderID != want {
				t.Errorf("track %d: expected %s, got %s", i, want, retrieved.Tracks[i].ProviderID)
			}
		}
	})

	t.Run("Create reuses library tracks", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		tracks := NewTrackRepository(db)
		repo := NewPlaylistRepository(db)

		existing := providerTrack("a")
		existing.OwnerID = "u1"
		if err := tracks.Create(&existing); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		playlist := &models.Playlist{OwnerID: "u1", Name: "Mix", Tracks: []models.Track{providerTrack("a"), providerTrack("b")}}
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		if playlist.Tracks[0].ID != existing.ID {
			t.Errorf("expected library track %s to be reused, got %s", existing.ID, playlist.Tracks[0].ID)
		}

		library, _ := tracks.List("u1")
		if len(library) != 2 {
			t.Errorf("expected 2 library tracks, got %d", len(library))
		}
	})

	t.Run("UpdateFields", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewPlaylistRepository(db)

		playlist := &models.Playlist{OwnerID: "u1", Name: "Mix", Tracks: []models.Track{providerTrack("a"), providerTrack("b")}}
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		name := "Renamed"
		remote := "remote-1"
		synced := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		reversed := []string{playlist.Tracks[1].ID, playlist.Tracks[0].ID}

		updated, err := repo.UpdateFields("u1", playlist.ID, models.PlaylistFields{
			Name:         &name,
			RemoteID:     &remote,
			LastSyncedAt: &synced,
			TrackIDs:     &reversed,
		})
		if err != nil {
			t.Fatalf("failed to update playlist: %v", err)
		}

		if updated.Name != "Renamed" || updated.RemoteID != "remote-1" {
			t.Errorf("unexpected playlist %+v", updated)
		}
		if updated.LastSyncedAt == nil || !updated.LastSyncedAt.Equal(synced) {
			t.Errorf("expected last synced %s, got %v", synced, updated.LastSyncedAt)
		}
		if updated.Tracks[0].ProviderID != "b" {
			t.Errorf("expected reordered tracks, got %s first", updated.Tracks[0].ProviderID)
		}

		found, err := repo.FindByRemoteID("u1", "remote-1")
		if err != nil {
			t.Fatalf("failed to find by remote id: %v", err)
		}
		if found.ID != playlist.ID {
			t.Errorf("expected %s, got %s", playlist.ID, found.ID)
		}
	})

	t.Run("List and ListLinked", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewPlaylistRepository(db)

		local := &models.Playlist{OwnerID: "u1", Name: "Local", Tracks: []models.Track{providerTrack("a")}}
		linked := &models.Playlist{OwnerID: "u1", Name: "Linked", RemoteID: "r1"}
		for _, p := range []*models.Playlist{local, linked} {
			if err := repo.Create(p); err != nil {
				t.Fatalf("failed to create playlist: %v", err)
			}
		}

		all, err := repo.List("u1")
		if err != nil {
			t.Fatalf("failed to list playlists: %v", err)
		}
		if len(all) != 2 || all[0].TrackCount != 1 {
			t.Errorf("unexpected playlists %+v", all)
		}

		linkedOnly, err := repo.ListLinked("u1")
		if err != nil {
			t.Fatalf("failed to list linked playlists: %v", err)
		}
		if len(linkedOnly) != 1 || linkedOnly[0].ID != linked.ID {
			t.Errorf("unexpected linked playlists %+v", linkedOnly)
		}
	})

	t.Run("AddTracks RemoveTrack MoveTrack", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		tracks := NewTrackRepository(db)
		repo := NewPlaylistRepository(db)

		playlist := &models.Playlist{OwnerID: "u1", Name: "Mix", Tracks: []models.Track{providerTrack("a"), providerTrack("b")}}
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		extra := providerTrack("c")
		extra.OwnerID = "u1"
		if err := tracks.Create(&extra); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		updated, err := repo.AddTracks("u1", playlist.ID, extra.ID)
		if err != nil {
			t.Fatalf("failed to add track: %v", err)
		}
		if len(updated.Tracks) != 3 || updated.Tracks[2].ID != extra.ID {
			t.Fatalf("expected c appended, got %+v", updated.TrackIDs())
		}

		updated, err = repo.MoveTrack("u1", playlist.ID, 2, 0)
		if err != nil {
			t.Fatalf("failed to move track: %v", err)
		}
		got := []string{updated.Tracks[0].ProviderID, updated.Tracks[1].ProviderID, updated.Tracks[2].ProviderID}
		if got[0] != "c" || got[1] != "a" || got[2] != "b" {
			t.Errorf("expected [c a b], got %v", got)
		}

		updated, err = repo.RemoveTrack("u1", playlist.ID, playlist.Tracks[0].ID)
		if err != nil {
			t.Fatalf("failed to remove track: %v", err)
		}
		if len(updated.Tracks) != 2 || updated.Tracks[1].ProviderID != "b" {
			t.Errorf("unexpected tracks after removal %v", updated.TrackIDs())
		}
	})

	t.Run("Edits after a library track is removed", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		tracks := NewTrackRepository(db)
		repo := NewPlaylistRepository(db)

		playlist := &models.Playlist{OwnerID: "u1", Name: "Mix", Tracks: []models.Track{providerTrack("a"), providerTrack("b")}}
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		a, b := playlist.Tracks[0].ID, playlist.Tracks[1].ID
		if err := tracks.Delete("u1", a); err != nil {
			t.Fatalf("failed to delete library track: %v", err)
		}

		extra := providerTrack("c")
		extra.OwnerID = "u1"
		if err := tracks.Create(&extra); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		updated, err := repo.AddTracks("u1", playlist.ID, extra.ID)
		if err != nil {
			t.Fatalf("failed to add track: %v", err)
		}
		if len(updated.Tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %v", updated.TrackIDs())
		}

		updated, err = repo.MoveTrack("u1", playlist.ID, 1, 0)
		if err != nil {
			t.Fatalf("failed to move track: %v", err)
		}
		if updated.Tracks[0].ID != b || updated.Tracks[1].ID != a {
			t.Errorf("expected [b a c], got %v", updated.TrackIDs())
		}

		updated, err = repo.RemoveTrack("u1", playlist.ID, b)
		if err != nil {
			t.Fatalf("failed to remove track: %v", err)
		}
		if len(updated.Tracks) != 2 || updated.Tracks[0].ID != a || updated.Tracks[1].ID != extra.ID {
			t.Errorf("expected [a c], got %v", updated.TrackIDs())
		}

		// Removed library tracks cannot be added to other playlists.
		other := &models.Playlist{OwnerID: "u1", Name: "Other"}
		if err := repo.Create(other); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if _, err := repo.AddTracks("u1", other.ID, a); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		seedUser(t, db, "u1")
		repo := NewPlaylistRepository(db)

		playlist := &models.Playlist{OwnerID: "u1", Name: "Mix", RemoteID: "r1"}
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := repo.Delete("u1", playlist.ID); err != nil {
			t.Fatalf("failed to delete playlist: %v", err)
		}

		// A deleted playlist frees its remote link for a fresh import.
		again := &models.Playlist{OwnerID: "u1", Name: "Mix", RemoteID: "r1"}
		if err := repo.Create(again); err != nil {
			t.Errorf("expected remote id to be reusable after delete: %v", err)
		}
	})
}

func TestTagRepository(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "u1")
	tags := NewTagRepository(db)
	tracks := NewTrackRepository(db)

	tag := &models.Tag{OwnerID: "u1", Name: " chill "}
	if err := tags.Create(tag); err != nil {
		t.Fatalf("failed to create tag: %v", err)
	}
	if tag.Name != "chill" {
		t.Errorf("expected trimmed name, got %q", tag.Name)
	}

	a, b := providerTrack("a"), providerTrack("b")
	a.OwnerID, b.OwnerID = "u1", "u1"
	for _, track := range []*models.Track{&a, &b} {
		if err := tracks.Create(track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
	}

	t.Run("Attach is idempotent", func(t *testing.T) {
		for range 2 {
			if err := tags.Attach("u1", tag.ID, a.ID); err != nil {
				t.Fatalf("failed to attach tag: %v", err)
			}
		}
		if err := tags.Attach("u1", tag.ID, b.ID); err != nil {
			t.Fatalf("failed to attach tag: %v", err)
		}

		tagged, err := tags.Tracks("u1", tag.ID)
		if err != nil {
			t.Fatalf("failed to list tagged tracks: %v", err)
		}
		if len(tagged) != 2 {
			t.Errorf("expected 2 tagged tracks, got %d", len(tagged))
		}

		got, err := tags.Get("u1", tag.ID)
		if err != nil {
			t.Fatalf("failed to get tag: %v", err)
		}
		if got.TrackCount != 2 {
			t.Errorf("expected track count 2, got %d", got.TrackCount)
		}
	})

	t.Run("TagsForTrack and FindByName", func(t *testing.T) {
		forTrack, err := tags.TagsForTrack("u1", a.ID)
		if err != nil {
			t.Fatalf("failed to list tags for track: %v", err)
		}
		if len(forTrack) != 1 || forTrack[0].ID != tag.ID {
			t.Errorf("unexpected tags %+v", forTrack)
		}

		byName, err := tags.FindByName("u1", "chill")
		if err != nil || byName.ID != tag.ID {
			t.Errorf("FindByName() = %v, %v", byName, err)
		}
	})

	t.Run("Detach", func(t *testing.T) {
		if err := tags.Detach("u1", tag.ID, b.ID); err != nil {
			t.Fatalf("failed to detach tag: %v", err)
		}
		tagged, _ := tags.Tracks("u1", tag.ID)
		if len(tagged) != 1 {
			t.Errorf("expected 1 tagged track, got %d", len(tagged))
		}
	})

	t.Run("removing a track detaches it", func(t *testing.T) {
		if err := tracks.Delete("u1", a.ID); err != nil {
			t.Fatalf("failed to delete track: %v", err)
		}
		tagged, _ := tags.Tracks("u1", tag.ID)
		if len(tagged) != 0 {
			t.Errorf("expected no tagged tracks, got %d", len(tagged))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := tags.Delete("u1", tag.ID); err != nil {
			t.Fatalf("failed to delete tag: %v", err)
		}
		list, _ := tags.List("u1")
		if len(list) != 0 {
			t.Errorf("expected no tags, got %d", len(list))
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "playlists")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("NextSequence() = %d, want %d", got, want)
		}
	}
}
