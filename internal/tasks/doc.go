// Package tasks reconciles local playlists with their Spotify counterparts and reports progress as it goes.
//
// # Operations
//
// [Reconciler] exposes four operations over a [services.Provider] and a local [Store]:
//
//  1. [Reconciler.Import] : Create a linked local playlist from a remote one
//     - Reads remote metadata and every page of tracks through a [services.Reader]
//     - Returns the existing playlist with AlreadyImported set when the owner already linked it
//
//  2. [Reconciler.Sync] : Push the local track set and details to the linked remote playlist
//     - Adds tracks missing remotely, then removes tracks missing locally
//     - Updates the remote name and description when they differ
//
//  3. [Reconciler.CreateOnRemote] : Create a remote playlist for an unlinked local one and link them
//
//  4. [Reconciler.SyncAll] : Sync every linked playlist of an owner with a bounded worker pool
//
// [Reconciler.BulkExport] writes local playlists to disk in any [formatter.Format] with a manifest.
//
// # Commit Ordering
//
// Remote calls always happen first. The local record (link and lastSyncedAt) is written once, after every
// remote call of the operation has succeeded, so a failed run can simply be retried.
//
// # Errors
//
// Failures are returned as [OpError], which records the operation, the [Phase] that failed and wraps one of
// the shared sentinel errors. Use [PhaseOf] to recover the phase from a wrapped error.
//
// # Progress Reporting
//
// All operations accept an optional channel of [ProgressUpdate]. Sends use select with default so a slow or
// absent reader never blocks an operation.
package tasks
