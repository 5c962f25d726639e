package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/urfave/cli/v3"
)

// progressPrinter returns a channel whose updates are written to the output and a func that closes the
// channel and waits for the last update to be printed.
func (r *Runner) progressPrinter() (chan tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			r.writePlain("→ [%s] %s\n", u.Phase, u.Message)
		}
	}()
	return progress, func() {
		close(progress)
		<-done
	}
}

// track runs op with a progress printer unless output is JSON.
func (r *Runner) track(cmd *cli.Command, op func(chan<- tasks.ProgressUpdate) error) error {
	if cmd.Bool("json") {
		return op(nil)
	}
	progress, wait := r.progressPrinter()
	err := op(progress)
	wait()
	return err
}

// failed reports which phase of a reconcile failed. Nothing local is written on failure, so a retry is safe.
func (r *Runner) failed(err error) error {
	if phase, ok := tasks.PhaseOf(err); ok {
		r.writePlain("✗ Failed during %s. Nothing was marked as synced; it is safe to retry.\n", phase)
	}
	return err
}

// SyncImport creates a linked local playlist from a Spotify playlist.
func (r *Runner) SyncImport(ctx context.Context, cmd *cli.Command) error {
	remoteID, err := requiredArg(cmd.StringArg("remote"), "Spotify playlist id")
	if err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}
	reconciler, err := r.reconciler(ctx)
	if err != nil {
		return err
	}

	var result *tasks.ImportResult
	err = r.track(cmd, func(progress chan<- tasks.ProgressUpdate) error {
		result, err = reconciler.Import(ctx, owner, remoteID, progress)
		return err
	})
	if err != nil && !(errors.Is(err, shared.ErrAlreadyImported) && result != nil) {
		return r.failed(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	if result.AlreadyImported {
		return r.writePlain("✓ Already imported as %s [%s]\n", result.Playlist.Name, result.Playlist.ID)
	}
	r.writePlainln("✓ Imported %s [%s]", result.Playlist.Name, result.Playlist.ID)
	return r.writePlain("  Tracks: %d\n", result.ImportedTracks)
}

// SyncRun runs the sync entrypoint for a local playlist: "sync" pushes a linked playlist to Spotify,
// "mirror" also restores the local track order there, and "create" creates an unlinked playlist there and
// links it.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredArg(cmd.StringArg("playlist"), "playlist id")
	if err != nil {
		return err
	}

	action := strings.ToLower(cmd.String("action"))
	run := map[string]func(*tasks.Reconciler) syncFunc{
		"sync":   func(rc *tasks.Reconciler) syncFunc { return rc.Sync },
		"mirror": func(rc *tasks.Reconciler) syncFunc { return rc.Mirror },
		"create": func(rc *tasks.Reconciler) syncFunc { return rc.CreateOnRemote },
	}[action]
	if run == nil {
		return fmt.Errorf("%w: unknown action %q", shared.ErrInvalidArgument, action)
	}

	owner, err := r.owner()
	if err != nil {
		return err
	}
	reconciler, err := r.reconciler(ctx)
	if err != nil {
		return err
	}

	var result *tasks.SyncResult
	err = r.track(cmd, func(progress chan<- tasks.ProgressUpdate) error {
		result, err = run(reconciler)(ctx, owner, id, progress)
		return err
	})
	if err != nil {
		return r.failed(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	r.writeSyncResult(result)
	return nil
}

type syncFunc func(context.Context, string, string, chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)

func (r *Runner) writeSyncResult(result *tasks.SyncResult) {
	r.writePlainln("✓ Synced %s → spotify:playlist:%s", result.Playlist.Name, result.Playlist.RemoteID)
	r.writePlain("  Added: %d\n", len(result.Added))
	r.writePlain("  Removed: %d\n", len(result.Removed))
	if result.MetadataUpdated {
		r.writePlain("  Updated name and description\n")
	}
	if result.Skipped > 0 {
		r.writePlain("  Skipped %d tracks that are not on Spotify\n", result.Skipped)
	}
}

// SyncAll syncs every linked playlist. Failures are listed per playlist; the command fails when any did.
func (r *Runner) SyncAll(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.owner()
	if err != nil {
		return err
	}
	reconciler, err := r.reconciler(ctx)
	if err != nil {
		return err
	}

	var result *tasks.SyncAllResult
	err = r.track(cmd, func(progress chan<- tasks.ProgressUpdate) error {
		result, err = reconciler.SyncAll(ctx, owner, progress)
		return err
	})
	if err != nil {
		return r.failed(err)
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(result, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else {
		r.writePlainHeader("Sync summary")
		for _, o := range result.Outcomes {
			if o.Err != nil {
				r.writePlain("✗ %s: failed during %s: %s\n", o.Name, o.Phase, o.Error)
				continue
			}
			r.writePlain("✓ %s: +%d -%d\n", o.Name, len(o.Result.Added), len(o.Result.Removed))
		}
		r.writePlainln("Synced %d playlists, %d failed", result.Succeeded, result.Failed)
	}

	if result.Failed > 0 {
		var names []string
		for _, o := range result.Outcomes {
			if o.Err != nil {
				names = append(names, o.Name)
			}
		}
		return errors.New("sync failed for: " + strings.Join(names, ", "))
	}
	return nil
}
