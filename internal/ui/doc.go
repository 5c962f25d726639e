// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow over the merged playlist list:
//  1. [EntryListView] : Browse local, linked and Spotify playlists
//  2. [TrackListView] : Inspect the tracks of a local playlist
//  3. [ConfirmView] : Confirm a sync, create, import or sync-all
//  4. [SyncView] : Monitor progress updates from the reconciler
//  5. [ResultView] : Show what changed, or which phase failed
//
// Progress updates flow through a channel from the [tasks.Reconciler], the same way the CLI reports them.
//
// Navigation survives restarts through [SessionState], a JSON file loaded on start and written on every change.
// State older than the configured max age is dropped on load except for [Preferences].
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, y/n, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
