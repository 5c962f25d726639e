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

const trackColumns = `id, sequence, user_id, provider_id, uri, title, artist, album, duration_ms, artwork_url, created_at, updated_at`

// TrackRepository implements [models.Repository] for the user's track library.
//
// Tracks with a Spotify id are unique per owner; manual tracks are deduplicated by normalized title and artist.
type TrackRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Track] = (*TrackRepository)(nil)

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new library track. Fails with [shared.ErrDuplicate] when the owner already has it.
func (r *TrackRepository) Create(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := findTrack(tx, track.OwnerID, track)
	if err != nil {
		return err
	}
	if existing != "" {
		return fmt.Errorf("%w: track %q", shared.ErrDuplicate, track.String())
	}

	if err := insertTrack(tx, track); err != nil {
		return err
	}
	return tx.Commit()
}

// Save adds track to the library, reusing (and restoring, if removed) the owner's existing copy.
//
// Reports whether a new record was created. track is updated in place with the stored id.
func (r *TrackRepository) Save(track *models.Track) (bool, error) {
	if err := track.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created, err := ensureTrack(tx, track.OwnerID, track)
	if err != nil {
		return false, err
	}
	return created, tx.Commit()
}

// Get retrieves a library track by id, excluding soft-deleted tracks
func (r *TrackRepository) Get(ownerID, id string) (*models.Track, error) {
	if err := checkOwner(r.db, "tracks", ownerID, id); err != nil {
		return nil, err
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRow(query, id))
}

// FindByProviderID looks up the owner's live track carrying the given Spotify id.
func (r *TrackRepository) FindByProviderID(ownerID, providerID string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? AND provider_id = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRow(query, ownerID, providerID))
}

// Delete soft-deletes a library track and detaches its tags.
//
// Playlists keep referencing the track so their ordering is preserved.
func (r *TrackRepository) Delete(ownerID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkOwner(tx, "tracks", ownerID, id); err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE tracks SET deleted_at = ? WHERE id = ?`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM track_tags WHERE track_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach tags: %w", err)
	}
	return tx.Commit()
}

// List retrieves every live library track of the owner, most recently added first.
func (r *TrackRepository) List(ownerID string) ([]*models.Track, error) {
	return r.Search(ownerID, "")
}

// Search filters the owner's library by a case-insensitive substring of title, artist or album.
func (r *TrackRepository) Search(ownerID, term string) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? AND deleted_at IS NULL`
	args := []any{ownerID}

	if term = strings.TrimSpace(term); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query += ` AND (LOWER(title) LIKE ? OR LOWER(artist) LIKE ? OR LOWER(album) LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY sequence DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// findTrack returns the id of the owner's live copy of track, or "" when there is none.
func findTrack(q querier, ownerID string, track *models.Track) (string, error) {
	var (
		id  string
		err error
	)
	if track.ProviderID != "" {
		err = q.QueryRow(`SELECT id FROM tracks WHERE user_id = ? AND provider_id = ? AND deleted_at IS NULL`,
			ownerID, track.ProviderID).Scan(&id)
	} else {
		err = q.QueryRow(`SELECT id FROM tracks WHERE user_id = ? AND provider_id = '' AND track_key = ? AND deleted_at IS NULL`,
			ownerID, track.MatchKey()).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up track: %w", err)
	}
	return id, nil
}

// ensureTrack resolves track to a library record of ownerID, creating it when unknown.
//
// Provider tracks are matched by Spotify id including soft-deleted rows, which are restored. On return
// track.ID, track.OwnerID and the timestamps reflect the stored record.
func ensureTrack(q querier, ownerID string, track *models.Track) (bool, error) {
	track.OwnerID = ownerID

	if track.ProviderID != "" {
		var (
			id        string
			createdAt time.Time
			deletedAt sql.NullTime
		)
		err := q.QueryRow(`SELECT id, created_at, deleted_at FROM tracks WHERE user_id = ? AND provider_id = ?`,
			ownerID, track.ProviderID).Scan(&id, &createdAt, &deletedAt)
		switch {
		case err == nil:
			if deletedAt.Valid {
				if _, err := q.Exec(`UPDATE tracks SET deleted_at = NULL, updated_at = ? WHERE id = ?`, time.Now(), id); err != nil {
					return false, fmt.Errorf("failed to restore track: %w", err)
				}
			}
			track.ID = id
			track.CreatedAt = createdAt
			return false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return false, fmt.Errorf("failed to look up track: %w", err)
		}
	} else {
		id, err := findTrack(q, ownerID, track)
		if err != nil {
			return false, err
		}
		if id != "" {
			track.ID = id
			return false, nil
		}
	}

	if err := insertTrack(q, track); err != nil {
		return false, err
	}
	return true, nil
}

func insertTrack(q querier, track *models.Track) error {
	sequence, err := nextSequence(q, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	track.ID = shared.GenerateID()
	track.Sequence = sequence
	track.CreatedAt = now
	track.UpdatedAt = now

	query := `
		INSERT INTO tracks (
			id, sequence, user_id, provider_id, uri, title, artist, album,
			duration_ms, artwork_url, track_key, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.Exec(query,
		track.ID,
		track.Sequence,
		track.OwnerID,
		track.ProviderID,
		track.URI,
		track.Title,
		track.Artist,
		track.Album,
		track.DurationMS,
		track.ArtworkURL,
		track.MatchKey(),
		track.CreatedAt,
		track.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: track %q", shared.ErrDuplicate, track.String())
	}
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// scanTrack scans a single [sql.Row] into a [models.Track]
func scanTrack(row *sql.Row) (*models.Track, error) {
	var t models.Track
	err := row.Scan(&t.ID, &t.Sequence, &t.OwnerID, &t.ProviderID, &t.URI, &t.Title, &t.Artist,
		&t.Album, &t.DurationMS, &t.ArtworkURL, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: track", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return &t, nil
}

// collectTracks drains rows selected with [trackColumns]
func collectTracks(rows *sql.Rows) ([]*models.Track, error) {
	var tracks []*models.Track
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.Sequence, &t.OwnerID, &t.ProviderID, &t.URI, &t.Title, &t.Artist,
			&t.Album, &t.DurationMS, &t.ArtworkURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}
