package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

const playlistColumns = `p.id, p.sequence, p.user_id, p.name, p.description, p.remote_id, p.last_synced_at, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM playlist_tracks pt WHERE pt.playlist_id = p.id)`

// PlaylistRepository is the local playlist store.
//
// Records are documents of owner, name, description, ordered track list, optional remote link and
// optional sync timestamp. Every operation is scoped by owner; writes to a single playlist run in one transaction.
type PlaylistRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Playlist] = (*PlaylistRepository)(nil)

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts playlist together with its ordered tracks.
//
// Tracks without an id are resolved against the owner's library (reused by Spotify id, created otherwise);
// tracks with an id must already belong to the owner. Fails with [shared.ErrAlreadyImported] when another live
// playlist of the owner links the same remote id. On success playlist.Tracks holds the stored tracks.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trackIDs := make([]string, len(playlist.Tracks))
	for i := range playlist.Tracks {
		t := &playlist.Tracks[i]
		if t.ID != "" {
			if err := checkOwner(tx, "tracks", playlist.OwnerID, t.ID); err != nil {
				return err
			}
		} else if _, err := ensureTrack(tx, playlist.OwnerID, t); err != nil {
			return fmt.Errorf("failed to store track %q: %w", t.String(), err)
		}
		trackIDs[i] = t.ID
	}

	sequence, err := nextSequence(tx, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	playlist.ID = shared.GenerateID()
	playlist.Sequence = sequence
	playlist.CreatedAt = now
	playlist.UpdatedAt = now
	playlist.TrackCount = len(trackIDs)

	query := `
		INSERT INTO playlists (id, sequence, user_id, name, description, remote_id, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query,
		playlist.ID,
		playlist.Sequence,
		playlist.OwnerID,
		playlist.Name,
		playlist.Description,
		nullString(playlist.RemoteID),
		playlist.LastSyncedAt,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrAlreadyImported, playlist.RemoteID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	if err := replaceItems(tx, playlist.ID, trackIDs, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playlist: %w", err)
	}
	return nil
}

// Get retrieves a playlist with its tracks in order.
func (r *PlaylistRepository) Get(ownerID, id string) (*models.Playlist, error) {
	return getPlaylist(r.db, ownerID, id)
}

// FindByRemoteID returns the owner's live playlist linked to remoteID, or [shared.ErrNotFound].
func (r *PlaylistRepository) FindByRemoteID(ownerID, remoteID string) (*models.Playlist, error) {
	var id string
	err := r.db.QueryRow(`SELECT id FROM playlists WHERE user_id = ? AND remote_id = ? AND deleted_at IS NULL`,
		ownerID, remoteID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no playlist linked to %s", shared.ErrNotFound, remoteID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	return r.Get(ownerID, id)
}

// UpdateFields applies a partial update and returns the stored playlist.
//
// Fails with [shared.ErrUnauthorized] when ownerID does not own the playlist and [shared.ErrAlreadyLinked]
// when the new remote id is already linked by another of the owner's playlists.
func (r *PlaylistRepository) UpdateFields(ownerID, id string, fields models.PlaylistFields) (*models.Playlist, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkOwner(tx, "playlists", ownerID, id); err != nil {
		return nil, err
	}

	now := time.Now()
	sets := []string{"updated_at = ?"}
	args := []any{now}

	if fields.Name != nil {
		if strings.TrimSpace(*fields.Name) == "" {
			return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
		}
		sets = append(sets, "name = ?")
		args = append(args, *fields.Name)
	}
	if fields.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *fields.Description)
	}
	if fields.RemoteID != nil {
		sets = append(sets, "remote_id = ?")
		args = append(args, nullString(*fields.RemoteID))
	}
	if fields.LastSyncedAt != nil {
		sets = append(sets, "last_synced_at = ?")
		args = append(args, *fields.LastSyncedAt)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE playlists SET %s WHERE id = ? AND deleted_at IS NULL`, strings.Join(sets, ", "))
	if _, err := tx.Exec(query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrAlreadyLinked, *fields.RemoteID)
		}
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}

	if fields.TrackIDs != nil {
		current, err := itemTrackIDs(tx, id)
		if err != nil {
			return nil, err
		}
		for _, trackID := range *fields.TrackIDs {
			// Tracks already on the playlist stay valid after being removed from the library.
			if current[trackID] {
				continue
			}
			if err := checkOwner(tx, "tracks", ownerID, trackID); err != nil {
				return nil, err
			}
		}
		if err := replaceItems(tx, id, *fields.TrackIDs, now); err != nil {
			return nil, err
		}
	}

	playlist, err := getPlaylist(tx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit playlist: %w", err)
	}
	return playlist, nil
}

// Delete soft-deletes a playlist and drops its track list. Library tracks are kept.
func (r *PlaylistRepository) Delete(ownerID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkOwner(tx, "playlists", ownerID, id); err != nil {
		return err
	}

	result, err := tx.Exec(`UPDATE playlists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if err := affectedOne(result, "playlist", id); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete playlist tracks: %w", err)
	}
	return tx.Commit()
}

// List retrieves the owner's live playlists without their tracks, oldest first.
func (r *PlaylistRepository) List(ownerID string) ([]*models.Playlist, error) {
	return r.list(`p.user_id = ?`, ownerID)
}

// ListLinked retrieves the owner's playlists that link to a remote playlist.
func (r *PlaylistRepository) ListLinked(ownerID string) ([]*models.Playlist, error) {
	return r.list(`p.user_id = ? AND p.remote_id IS NOT NULL`, ownerID)
}

func (r *PlaylistRepository) list(where string, args ...any) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists p WHERE ` + where + ` AND p.deleted_at IS NULL ORDER BY p.sequence ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

// AddTracks appends library tracks to the end of the playlist.
func (r *PlaylistRepository) AddTracks(ownerID, id string, trackIDs ...string) (*models.Playlist, error) {
	playlist, err := r.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	ids := append(playlist.TrackIDs(), trackIDs...)
	return r.UpdateFields(ownerID, id, models.PlaylistFields{TrackIDs: &ids})
}

// RemoveTrack removes every occurrence of trackID from the playlist.
func (r *PlaylistRepository) RemoveTrack(ownerID, id, trackID string) (*models.Playlist, error) {
	playlist, err := r.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(playlist.Tracks))
	for _, existing := range playlist.TrackIDs() {
		if existing != trackID {
			ids = append(ids, existing)
		}
	}
	if len(ids) == len(playlist.Tracks) {
		return nil, fmt.Errorf("%w: track %s is not in playlist %s", shared.ErrNotFound, trackID, id)
	}
	return r.UpdateFields(ownerID, id, models.PlaylistFields{TrackIDs: &ids})
}

// MoveTrack moves the track at position from to position to (both zero-based).
func (r *PlaylistRepository) MoveTrack(ownerID, id string, from, to int) (*models.Playlist, error) {
	playlist, err := r.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	ids := playlist.TrackIDs()
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return nil, fmt.Errorf("%w: position out of range (playlist has %d tracks)", shared.ErrInvalidInput, len(ids))
	}

	moved := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids[:to], append([]string{moved}, ids[to:]...)...)
	return r.UpdateFields(ownerID, id, models.PlaylistFields{TrackIDs: &ids})
}

func getPlaylist(q querier, ownerID, id string) (*models.Playlist, error) {
	if err := checkOwner(q, "playlists", ownerID, id); err != nil {
		return nil, err
	}

	rows, err := q.Query(`SELECT `+playlistColumns+` FROM playlists p WHERE p.id = ? AND p.deleted_at IS NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	var playlist *models.Playlist
	if rows.Next() {
		playlist, err = scanPlaylist(rows)
	}
	rows.Close()
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}

	trackRows, err := q.Query(`
		SELECT t.id, t.sequence, t.user_id, t.provider_id, t.uri, t.title, t.artist, t.album,
			t.duration_ms, t.artwork_url, t.created_at, t.updated_at
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer trackRows.Close()

	tracks, err := collectTracks(trackRows)
	if err != nil {
		return nil, err
	}

	playlist.Tracks = make([]models.Track, len(tracks))
	for i, t := range tracks {
		playlist.Tracks[i] = *t
	}
	playlist.TrackCount = len(tracks)
	return playlist, nil
}

// replaceItems rewrites the ordered membership of a playlist.
// itemTrackIDs returns the set of track ids on the playlist.
func itemTrackIDs(q querier, playlistID string) (map[string]bool, error) {
	rows, err := q.Query(`SELECT track_id FROM playlist_tracks WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func replaceItems(q querier, playlistID string, trackIDs []string, addedAt time.Time) error {
	if _, err := q.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}

	for position, trackID := range trackIDs {
		_, err := q.Exec(`INSERT INTO playlist_tracks (playlist_id, position, track_id, added_at) VALUES (?, ?, ?, ?)`,
			playlistID, position, trackID, addedAt)
		if err != nil {
			return fmt.Errorf("failed to insert playlist track: %w", err)
		}
	}
	return nil
}

// scanPlaylist scans a row selected with [playlistColumns] into a [models.Playlist]
func scanPlaylist(rows *sql.Rows) (*models.Playlist, error) {
	var (
		p            models.Playlist
		remoteID     sql.NullString
		lastSyncedAt sql.NullTime
	)

	err := rows.Scan(&p.ID, &p.Sequence, &p.OwnerID, &p.Name, &p.Description, &remoteID, &lastSyncedAt,
		&p.CreatedAt, &p.UpdatedAt, &p.TrackCount)
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	if remoteID.Valid {
		p.RemoteID = remoteID.String
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		p.LastSyncedAt = &t
	}
	return &p, nil
}
