// Package repositories implements SQLite persistence for all domain entities.
//
// Every query is scoped by owner id. Reading or mutating a record owned by another user fails with
// [shared.ErrUnauthorized]; missing or soft-deleted records fail with [shared.ErrNotFound].
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [UserRepository] : Spotify accounts keyed by Spotify user id
//   - [TrackRepository] : The user's track library, deduplicated by Spotify id (or title/artist for manual tracks)
//   - [PlaylistRepository] : The local playlist store (get, create, update-fields, delete) used by the reconciler
//   - [TagRepository] : Tags and the many-to-many track_tags junction table
//
// Sequence numbers provide stable, human-readable ordering (e.g., playlist #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
