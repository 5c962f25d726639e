package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Search queries the Spotify catalog.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("%w: search query is required", shared.ErrMissingArgument)
	}

	client, err := r.remote(ctx)
	if err != nil {
		return err
	}

	r.logger.Debug("searching spotify", "query", query, "limit", cmd.Int("limit"))
	tracks, err := client.SearchTracks(ctx, query, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d tracks:\n\n", len(tracks))
	for i, t := range tracks {
		r.writePlain("%d. %s\n", i+1, t.String())
		if t.Album != "" {
			r.writePlain("   Album: %s\n", t.Album)
		}
		r.writePlain("   ID: %s (%s)\n", t.ProviderID, t.Duration())
	}
	return nil
}

// LibraryList lists library tracks, optionally filtered by --query.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	owner, tracks, err := r.libraryTracks()
	if err != nil {
		return err
	}

	list, err := tracks.Search(owner, cmd.String("query"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if list == nil {
			list = []*models.Track{}
		}
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	r.writePlain("Library: %d tracks\n\n", len(list))
	r.writeTracks(list)
	return nil
}

// LibraryAdd adds a Spotify track by id, or a manual track described by --title and --artist.
func (r *Runner) LibraryAdd(ctx context.Context, cmd *cli.Command) error {
	owner, tracks, err := r.libraryTracks()
	if err != nil {
		return err
	}

	var track *models.Track
	if id := strings.TrimSpace(cmd.Args().First()); id != "" {
		client, err := r.remote(ctx)
		if err != nil {
			return err
		}
		if track, err = client.Track(ctx, id); err != nil {
			return err
		}
	} else if cmd.String("title") != "" {
		track = &models.Track{Title: cmd.String("title"), Artist: cmd.String("artist"), Album: cmd.String("album")}
	} else {
		return fmt.Errorf("%w: a Spotify track id or --title is required", shared.ErrMissingArgument)
	}
	track.ID = ""
	track.OwnerID = owner

	created, err := tracks.Save(track)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(track, cmd.Bool("pretty"))
	}
	if created {
		return r.writePlain("✓ Added %s [%s]\n", track.String(), track.ID)
	}
	return r.writePlain("✓ Already in library: %s [%s]\n", track.String(), track.ID)
}

// LibraryRemove removes a track from the library.
func (r *Runner) LibraryRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("track")
	if id == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrMissingArgument)
	}

	owner, tracks, err := r.libraryTracks()
	if err != nil {
		return err
	}
	if err := tracks.Delete(owner, id); err != nil {
		return err
	}
	return r.writePlain("✓ Removed track %s\n", id)
}

func (r *Runner) libraryTracks() (string, *repositories.TrackRepository, error) {
	owner, err := r.owner()
	if err != nil {
		return "", nil, err
	}
	db, err := r.database()
	if err != nil {
		return "", nil, err
	}
	return owner, repositories.NewTrackRepository(db), nil
}

func (r *Runner) writeTracks(tracks []*models.Track) {
	for i, t := range tracks {
		marker := ""
		if !t.HasProviderURI() {
			marker = " (not on Spotify)"
		}
		r.writePlain("%3d. %s [%s] %s%s\n", i+1, t.String(), t.ID, t.Duration(), marker)
	}
}
