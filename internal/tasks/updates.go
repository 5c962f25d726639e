package tasks

import (
	"fmt"

	"github.com/desertthunder/crate/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase      Phase  // Operation phase
	PlaylistID string // Local or remote playlist the update refers to
	Step       int    // Current step number within phase
	Total      int    // Total steps in this phase
	Message    string // Human-readable message for display
	Data       any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ReadLocal Phase = iota
	ReadRemote
	CreateRemote
	AddItems
	RemoveItems
	ReplaceItems
	UpdateMetadata
	Commit
	Complete
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case ReadLocal:
		return "read-local"
	case ReadRemote:
		return "read-remote"
	case CreateRemote:
		return "create"
	case AddItems:
		return "add"
	case RemoveItems:
		return "remove"
	case ReplaceItems:
		return "replace"
	case UpdateMetadata:
		return "update-metadata"
	case Commit:
		return "commit"
	case Complete:
		return "complete"
	case ExportPlaylist:
		return "export"
	default:
		return ""
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func readLocalUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      ReadLocal,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    "Reading local playlist...",
	}
}

func readRemoteUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      ReadRemote,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Fetching remote playlist %s...", id),
	}
}

func foundRemoteUpdate(id string, remote *models.RemotePlaylist, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:      ReadRemote,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Found playlist: %s (%d tracks)", remote.Name, tracks),
		Data:       remote,
	}
}

func diffUpdate(id string, diff Diff) ProgressUpdate {
	return ProgressUpdate{
		Phase:      ReadRemote,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("%d to add, %d to remove", len(diff.ToAdd), len(diff.ToRemove)),
		Data:       diff,
	}
}

func createRemoteUpdate(id, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      CreateRemote,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Creating playlist on Spotify: %s...", name),
	}
}

func addItemsUpdate(id string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:      AddItems,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Adding %d tracks...", count),
	}
}

func removeItemsUpdate(id string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:      RemoveItems,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Removing %d tracks...", count),
	}
}

func replaceItemsUpdate(id string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:      ReplaceItems,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Rewriting remote playlist with %d tracks...", count),
	}
}

func updateMetadataUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      UpdateMetadata,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    "Updating playlist details...",
	}
}

func commitUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Commit,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    "Saving sync state...",
	}
}

func completeUpdate(id string, summary models.PlaylistSummary) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Complete,
		PlaylistID: id,
		Step:       1,
		Total:      1,
		Message:    fmt.Sprintf("Done: %s (%d tracks)", summary.Name, summary.TrackCount),
		Data:       summary,
	}
}

func syncAllUpdate(step, total int, name string, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   Complete,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
		}
	}
	return ProgressUpdate{
		Phase:   Complete,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, name),
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
