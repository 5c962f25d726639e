// package repositories provides persistence layer implementations for all model types.
//
// Each repository is scoped by owner id, handling CRUD operations, soft deletes, and sequence generation.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/crate/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// querier is satisfied by both [sql.DB] and [sql.Tx] so helpers can run inside or outside a transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers provide human-readable ordering for entities (e.g., playlist #15).
// They are NOT exposed in CLI output but used internally for sorting and debugging.
func NextSequence(db *sql.DB, table string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx, table)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}
	return sequence, nil
}

// nextSequence increments the counter using q, which should be a transaction owned by the caller.
func nextSequence(q querier, table string) (int, error) {
	sequenceTable := table + "_sequence"

	if _, err := q.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	if err := q.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}

// checkOwner verifies that the live row id in table belongs to ownerID.
//
// Returns [shared.ErrNotFound] when the row is missing or soft-deleted and [shared.ErrUnauthorized]
// when another user owns it.
func checkOwner(q querier, table, ownerID, id string) error {
	var owner string
	err := q.QueryRow(fmt.Sprintf("SELECT user_id FROM %s WHERE id = ? AND deleted_at IS NULL", table), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, singular(table), id)
	}
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", singular(table), err)
	}
	if owner != ownerID {
		return fmt.Errorf("%w: %s %s", shared.ErrUnauthorized, singular(table), id)
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// affectedOne turns a zero-row update into [shared.ErrNotFound].
func affectedOne(result sql.Result, what, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, what, id)
	}
	return nil
}

func singular(table string) string {
	switch table {
	case "playlists":
		return "playlist"
	case "tracks":
		return "track"
	case "tags":
		return "tag"
	case "users":
		return "user"
	default:
		return table
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
