package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) tags() (string, *repositories.TagRepository, error) {
	owner, err := r.owner()
	if err != nil {
		return "", nil, err
	}
	db, err := r.database()
	if err != nil {
		return "", nil, err
	}
	return owner, repositories.NewTagRepository(db), nil
}

// resolveTag finds a tag by id, falling back to its name.
func resolveTag(tags *repositories.TagRepository, owner, ref string) (*models.Tag, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: tag id or name is required", shared.ErrMissingArgument)
	}
	tag, err := tags.Get(owner, ref)
	if errors.Is(err, shared.ErrNotFound) {
		tag, err = tags.FindByName(owner, ref)
	}
	return tag, err
}

// TagList lists tags with their track counts.
func (r *Runner) TagList(ctx context.Context, cmd *cli.Command) error {
	owner, tags, err := r.tags()
	if err != nil {
		return err
	}
	list, err := tags.List(owner)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if list == nil {
			list = []*models.Tag{}
		}
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d tags:\n\n", len(list))
	for _, t := range list {
		r.writePlain("• %s (%d tracks) [%s]\n", t.Name, t.TrackCount, t.ID)
	}
	return nil
}

// TagCreate creates a tag. Names are unique per user.
func (r *Runner) TagCreate(ctx context.Context, cmd *cli.Command) error {
	owner, tags, err := r.tags()
	if err != nil {
		return err
	}

	tag := &models.Tag{OwnerID: owner, Name: cmd.StringArg("name"), Color: cmd.String("color")}
	if err := tags.Create(tag); err != nil {
		return err
	}
	return r.writePlain("✓ Created tag %s [%s]\n", tag.Name, tag.ID)
}

// TagDelete deletes a tag and detaches it from every track.
func (r *Runner) TagDelete(ctx context.Context, cmd *cli.Command) error {
	owner, tags, err := r.tags()
	if err != nil {
		return err
	}
	tag, err := resolveTag(tags, owner, cmd.StringArg("tag"))
	if err != nil {
		return err
	}
	if err := tags.Delete(owner, tag.ID); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted tag %s\n", tag.Name)
}

// TagAttach attaches a tag to a library track.
func (r *Runner) TagAttach(ctx context.Context, cmd *cli.Command) error {
	return r.tagTrack(cmd, "attach", func(tags *repositories.TagRepository, owner, tagID, trackID string) error {
		return tags.Attach(owner, tagID, trackID)
	})
}

// TagDetach removes a tag from a library track.
func (r *Runner) TagDetach(ctx context.Context, cmd *cli.Command) error {
	return r.tagTrack(cmd, "detach", func(tags *repositories.TagRepository, owner, tagID, trackID string) error {
		return tags.Detach(owner, tagID, trackID)
	})
}

func (r *Runner) tagTrack(cmd *cli.Command, verb string, fn func(*repositories.TagRepository, string, string, string) error) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("%w: usage: crate tag %s <tag> <track>", shared.ErrMissingArgument, verb)
	}

	owner, tags, err := r.tags()
	if err != nil {
		return err
	}
	tag, err := resolveTag(tags, owner, args.Get(0))
	if err != nil {
		return err
	}
	if err := fn(tags, owner, tag.ID, args.Get(1)); err != nil {
		return err
	}
	return r.writePlain("✓ %s: %s %s\n", tag.Name, verb, args.Get(1))
}

// TagTracks lists the library tracks carrying a tag.
func (r *Runner) TagTracks(ctx context.Context, cmd *cli.Command) error {
	owner, tags, err := r.tags()
	if err != nil {
		return err
	}
	tag, err := resolveTag(tags, owner, cmd.StringArg("tag"))
	if err != nil {
		return err
	}
	tracks, err := tags.Tracks(owner, tag.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if tracks == nil {
			tracks = []*models.Track{}
		}
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	r.writePlain("%s: %d tracks\n\n", tag.Name, len(tracks))
	r.writeTracks(tracks)
	return nil
}
