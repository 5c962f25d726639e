package ui

import (
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/tasks"
)

// entriesFetchedMsg carries the merged playlist list. remoteErr is set when Spotify could not be read and
// only local playlists are listed.
type entriesFetchedMsg struct {
	entries   []models.LibraryEntry
	remoteErr error
	err       error
}

// tracksFetchedMsg carries a local playlist with its tracks.
type tracksFetchedMsg struct {
	playlist *models.Playlist
	err      error
}

type progressUpdateMsg tasks.ProgressUpdate

// operationDoneMsg reports the end of a reconciler operation. Exactly one result field is set on success.
type operationDoneMsg struct {
	op       operation
	sync     *tasks.SyncResult
	imported *tasks.ImportResult
	all      *tasks.SyncAllResult
	err      error
}
