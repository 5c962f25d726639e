package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

const tagColumns = `g.id, g.sequence, g.user_id, g.name, g.color, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM track_tags tt JOIN tracks t ON t.id = tt.track_id WHERE tt.tag_id = g.id AND t.deleted_at IS NULL)`

// TagRepository implements [models.Repository] for tags and manages the track_tags junction table.
type TagRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Tag] = (*TagRepository)(nil)

// NewTagRepository creates a new TagRepository with the given database connection
func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Create inserts a new tag. Names are unique per owner, compared as entered after trimming.
func (r *TagRepository) Create(tag *models.Tag) error {
	tag.Name = strings.TrimSpace(tag.Name)
	if err := tag.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx, "tags")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	tag.ID = shared.GenerateID()
	tag.Sequence = sequence
	tag.CreatedAt = now
	tag.UpdatedAt = now

	_, err = tx.Exec(`INSERT INTO tags (id, sequence, user_id, name, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tag.ID, tag.Sequence, tag.OwnerID, tag.Name, tag.Color, tag.CreatedAt, tag.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: tag %q", shared.ErrDuplicate, tag.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	return tx.Commit()
}

// Get retrieves a tag by id, excluding soft-deleted tags
func (r *TagRepository) Get(ownerID, id string) (*models.Tag, error) {
	if err := checkOwner(r.db, "tags", ownerID, id); err != nil {
		return nil, err
	}

	tags, err := r.query(`g.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: tag %s", shared.ErrNotFound, id)
	}
	return tags[0], nil
}

// FindByName looks up the owner's live tag with the given name.
func (r *TagRepository) FindByName(ownerID, name string) (*models.Tag, error) {
	tags, err := r.query(`g.user_id = ? AND g.name = ?`, ownerID, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: tag %q", shared.ErrNotFound, name)
	}
	return tags[0], nil
}

// Delete soft-deletes a tag and detaches it from every track.
func (r *TagRepository) Delete(ownerID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkOwner(tx, "tags", ownerID, id); err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE tags SET deleted_at = ? WHERE id = ?`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM track_tags WHERE tag_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return tx.Commit()
}

// List retrieves the owner's live tags ordered by name.
func (r *TagRepository) List(ownerID string) ([]*models.Tag, error) {
	return r.query(`g.user_id = ?`, ownerID)
}

// Attach labels a library track with a tag. Attaching twice is a no-op.
func (r *TagRepository) Attach(ownerID, tagID, trackID string) error {
	return r.withOwned(ownerID, tagID, trackID, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR IGNORE INTO track_tags (tag_id, track_id, created_at) VALUES (?, ?, ?)`, tagID, trackID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to attach tag: %w", err)
		}
		return nil
	})
}

// Detach removes a tag from a library track. Fails with [shared.ErrNotFound] when the track is not tagged.
func (r *TagRepository) Detach(ownerID, tagID, trackID string) error {
	return r.withOwned(ownerID, tagID, trackID, func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM track_tags WHERE tag_id = ? AND track_id = ?`, tagID, trackID)
		if err != nil {
			return fmt.Errorf("failed to detach tag: %w", err)
		}
		return affectedOne(result, "tagged track", trackID)
	})
}

// Tracks lists the live library tracks carrying the tag, most recently tagged first.
func (r *TagRepository) Tracks(ownerID, tagID string) ([]*models.Track, error) {
	if err := checkOwner(r.db, "tags", ownerID, tagID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT t.id, t.sequence, t.user_id, t.provider_id, t.uri, t.title, t.artist, t.album,
			t.duration_ms, t.artwork_url, t.created_at, t.updated_at
		FROM track_tags tt
		JOIN tracks t ON t.id = tt.track_id
		WHERE tt.tag_id = ? AND t.deleted_at IS NULL
		ORDER BY tt.created_at DESC, t.sequence DESC
	`, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tagged tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// TagsForTrack lists the tags attached to a library track.
func (r *TagRepository) TagsForTrack(ownerID, trackID string) ([]*models.Tag, error) {
	if err := checkOwner(r.db, "tracks", ownerID, trackID); err != nil {
		return nil, err
	}
	return r.query(`g.id IN (SELECT tag_id FROM track_tags WHERE track_id = ?)`, trackID)
}

func (r *TagRepository) withOwned(ownerID, tagID, trackID string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkOwner(tx, "tags", ownerID, tagID); err != nil {
		return err
	}
	if err := checkOwner(tx, "tracks", ownerID, trackID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *TagRepository) query(where string, args ...any) ([]*models.Tag, error) {
	rows, err := r.db.Query(`SELECT `+tagColumns+` FROM tags g WHERE `+where+` AND g.deleted_at IS NULL ORDER BY g.name ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Sequence, &tag.OwnerID, &tag.Name, &tag.Color, &tag.CreatedAt, &tag.UpdatedAt, &tag.TrackCount); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tags, nil
}
