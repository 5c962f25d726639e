package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/formatter"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/urfave/cli/v3"
)

func (r *Runner) playlists() (string, *repositories.PlaylistRepository, error) {
	owner, err := r.owner()
	if err != nil {
		return "", nil, err
	}
	db, err := r.database()
	if err != nil {
		return "", nil, err
	}
	return owner, repositories.NewPlaylistRepository(db), nil
}

// PlaylistList lists local playlists. With --remote, Spotify playlists that have not been imported are merged in;
// when Spotify cannot be reached the local list is still printed.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}

	local, err := playlists.List(owner)
	if err != nil {
		return err
	}

	var remote []models.RemotePlaylist
	var remoteErr error
	if cmd.Bool("remote") {
		if client, err := r.remote(ctx); err != nil {
			remoteErr = err
		} else if remote, err = client.UserPlaylists(ctx); err != nil {
			remoteErr = err
		}
		if remoteErr != nil {
			r.logger.Warn("failed to list remote playlists", "error", remoteErr)
		}
	}

	entries := models.MergeEntries(local, remote)
	if cmd.Bool("json") {
		views := make([]models.EntryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, models.View(e))
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(entries))
	for i, e := range entries {
		r.writePlain("%d. %s [%s]\n", i+1, e.Name(), e.Kind())
		r.writePlain("   ID: %s\n", e.EntryID())
		r.writePlain("   Tracks: %d\n", e.TrackCount())
		if at := e.LastActivity(); !at.IsZero() {
			r.writePlain("   Last activity: %s\n", at.Local().Format(time.DateTime))
		}
		r.writePlain("\n")
	}
	if remoteErr != nil {
		r.writePlain("⚠ Spotify playlists unavailable: %v\n", remoteErr)
	}
	return nil
}

// PlaylistShow prints a playlist and its tracks.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredArg(cmd.StringArg("playlist"), "playlist id")
	if err != nil {
		return err
	}
	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}

	playlist, err := playlists.Get(owner, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlist, cmd.Bool("pretty"))
	}

	r.writePlainHeader(playlist.Name)
	if playlist.Description != "" {
		r.writePlain("Description: %s\n", playlist.Description)
	}
	if playlist.Linked() {
		r.writePlain("Spotify: %s\n", playlist.RemoteID)
		if playlist.LastSyncedAt != nil {
			r.writePlain("Last synced: %s\n", playlist.LastSyncedAt.Local().Format(time.DateTime))
		}
	} else {
		r.writePlain("Spotify: not linked\n")
	}
	r.writePlain("Tracks: %d\n\n", len(playlist.Tracks))

	tracks := make([]*models.Track, len(playlist.Tracks))
	for i := range playlist.Tracks {
		tracks[i] = &playlist.Tracks[i]
	}
	r.writeTracks(tracks)
	return nil
}

// PlaylistCreate creates an empty, unlinked playlist.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}

	playlist := &models.Playlist{
		OwnerID:     owner,
		Name:        cmd.StringArg("name"),
		Description: cmd.String("description"),
	}
	if err := playlists.Create(playlist); err != nil {
		return err
	}

	r.logger.Info("created playlist", "id", playlist.ID)
	return r.writePlain("✓ Created playlist %s [%s]\n", playlist.Name, playlist.ID)
}

// PlaylistEdit changes a playlist's name and/or description.
func (r *Runner) PlaylistEdit(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredArg(cmd.StringArg("playlist"), "playlist id")
	if err != nil {
		return err
	}

	var fields models.PlaylistFields
	if cmd.IsSet("name") {
		name := cmd.String("name")
		fields.Name = &name
	}
	if cmd.IsSet("description") {
		description := cmd.String("description")
		fields.Description = &description
	}
	if fields.Empty() {
		return fmt.Errorf("%w: --name or --description is required", shared.ErrMissingArgument)
	}

	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}
	playlist, err := playlists.UpdateFields(owner, id, fields)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Updated playlist %s [%s]\n", playlist.Name, playlist.ID)
}

// PlaylistDelete deletes a local playlist. A linked Spotify playlist is left alone.
func (r *Runner) PlaylistDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredArg(cmd.StringArg("playlist"), "playlist id")
	if err != nil {
		return err
	}
	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}
	if err := playlists.Delete(owner, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted playlist %s\n", id)
}

// PlaylistAdd appends library tracks to a playlist in the order given.
func (r *Runner) PlaylistAdd(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() < 2 {
		return fmt.Errorf("%w: usage: crate playlist add <playlist> <track>...", shared.ErrMissingArgument)
	}

	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}
	playlist, err := playlists.AddTracks(owner, args.First(), args.Tail()...)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s now has %d tracks\n", playlist.Name, playlist.TrackCount)
}

// PlaylistRemove removes a track from a playlist.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("%w: usage: crate playlist remove <playlist> <track>", shared.ErrMissingArgument)
	}

	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}
	playlist, err := playlists.RemoveTrack(owner, args.Get(0), args.Get(1))
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s now has %d tracks\n", playlist.Name, playlist.TrackCount)
}

// PlaylistMove reorders a playlist by moving one track.
func (r *Runner) PlaylistMove(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 3 {
		return fmt.Errorf("%w: usage: crate playlist move <playlist> <from> <to>", shared.ErrMissingArgument)
	}
	from, err := strconv.Atoi(args.Get(1))
	if err != nil {
		return fmt.Errorf("%w: from must be a number", shared.ErrInvalidArgument)
	}
	to, err := strconv.Atoi(args.Get(2))
	if err != nil {
		return fmt.Errorf("%w: to must be a number", shared.ErrInvalidArgument)
	}

	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}
	if _, err := playlists.MoveTrack(owner, args.Get(0), from, to); err != nil {
		return err
	}
	return r.writePlain("✓ Moved track %d to %d\n", from, to)
}

// PlaylistExport writes the given playlists (all when none are named) to disk concurrently.
func (r *Runner) PlaylistExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	owner, playlists, err := r.playlists()
	if err != nil {
		return err
	}

	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		all, err := playlists.List(owner)
		if err != nil {
			return err
		}
		for _, p := range all {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return r.writePlain("No playlists to export\n")
	}

	// Exports only read the local store.
	reconciler := tasks.NewReconciler(nil, playlists, tasks.WithLogger(r.logger))

	progress, wait := r.progressPrinter()
	result, err := reconciler.BulkExport(ctx, owner, ids, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		Covers:     cmd.Bool("covers"),
	}, progress)
	wait()
	if err != nil {
		return err
	}

	r.writePlainln("Exported %d of %d playlists to %s", result.SuccessfulExports, result.TotalPlaylists, result.OutputDirectory)
	for _, res := range result.Results {
		if res.Error != nil {
			r.writePlain("✗ %s: %v\n", res.PlaylistName, res.Error)
			continue
		}
		r.writePlain("✓ %s: %s\n", res.PlaylistName, strings.Join(res.Files, ", "))
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}

func requiredArg(value, what string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s is required", shared.ErrMissingArgument, what)
	}
	return value, nil
}
