package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// UserRepository persists Spotify accounts keyed by Spotify user id.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts the user on first login and refreshes the profile fields afterwards.
func (r *UserRepository) Upsert(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	existing, err := r.Get(user.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return r.insert(user)
	case err != nil:
		return err
	}

	now := time.Now()
	query := `
		UPDATE users
		SET display_name = ?, email = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	if _, err := r.db.Exec(query, user.DisplayName, user.Email, now, user.ID); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	user.Sequence = existing.Sequence
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = now
	return nil
}

func (r *UserRepository) insert(user *models.User) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO users (id, sequence, display_name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, email = excluded.email,
			updated_at = excluded.updated_at, deleted_at = NULL
	`
	if _, err := tx.Exec(query, user.ID, sequence, user.DisplayName, user.Email, now, now); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}

	user.Sequence = sequence
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// Get retrieves a user by Spotify id, excluding soft-deleted users
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := `
		SELECT id, sequence, display_name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND deleted_at IS NULL
	`

	var user models.User
	err := r.db.QueryRow(query, id).Scan(&user.ID, &user.Sequence, &user.DisplayName, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Delete soft-deletes a user. Owned records are left in place and become reachable again if the
// account logs back in.
func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return affectedOne(result, "user", id)
}
