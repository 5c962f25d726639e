package tasks

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SyncOutcome is the result of syncing one playlist during [Reconciler.SyncAll].
type SyncOutcome struct {
	PlaylistID string      `json:"playlist_id"`
	Name       string      `json:"name"`
	Result     *SyncResult `json:"result,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
	Phase      string      `json:"phase,omitempty"`
}

// SyncAllResult collects per-playlist outcomes in the order the playlists were listed.
type SyncAllResult struct {
	Outcomes  []SyncOutcome `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// SyncAll syncs every linked playlist of ownerID using a bounded worker pool.
//
// A failing playlist does not stop the others; its error is recorded in the outcome. The returned error is
// non-nil only when the linked playlists cannot be listed.
func (r *Reconciler) SyncAll(ctx context.Context, ownerID string, progress chan<- ProgressUpdate) (*SyncAllResult, error) {
	playlists, err := r.store.ListLinked(ownerID)
	if err != nil {
		return nil, opError("sync", ReadLocal, "", fmt.Errorf("failed to list linked playlists: %w", err))
	}

	result := &SyncAllResult{Outcomes: make([]SyncOutcome, len(playlists))}
	total := len(playlists)
	r.logger.Info("syncing linked playlists", "owner", ownerID, "count", total, "workers", r.workers)

	var (
		mu        sync.Mutex
		completed int
		g         errgroup.Group
	)
	g.SetLimit(r.workers)

	for i, p := range playlists {
		g.Go(func() error {
			outcome := SyncOutcome{PlaylistID: p.ID, Name: p.Name}
			if err := ctx.Err(); err != nil {
				outcome.Err = err
			} else {
				outcome.Result, outcome.Err = r.Sync(ctx, ownerID, p.ID, nil)
			}
			if outcome.Err != nil {
				outcome.Error = outcome.Err.Error()
				if phase, ok := PhaseOf(outcome.Err); ok {
					outcome.Phase = phase.String()
				}
				r.logger.Warn("sync failed", "id", p.ID, "err", outcome.Err)
			}

			mu.Lock()
			result.Outcomes[i] = outcome
			completed++
			step := completed
			if outcome.Err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
			mu.Unlock()

			r.sendProgress(progress, syncAllUpdate(step, total, p.Name, outcome.Err))
			return nil
		})
	}

	_ = g.Wait()
	return result, nil
}
