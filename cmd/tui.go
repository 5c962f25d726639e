package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI over the merged playlist list.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.owner()
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(shared.ExpandPath(r.config.UI.LogPath))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	client, err := r.remote(ctx)
	if err != nil {
		return err
	}
	reconciler, err := r.reconciler(ctx)
	if err != nil {
		return err
	}

	state, err := ui.LoadState(shared.ExpandPath(r.config.UI.StatePath), r.config.UI.MaxAge())
	if err != nil {
		fileLogger.Warn("starting with fresh session state", "error", err)
	}

	model := ui.NewModel(ctx, ui.Options{
		OwnerID:    owner,
		Library:    repositories.NewPlaylistRepository(r.db),
		Remote:     client,
		Reconciler: reconciler,
		State:      state,
		Logger:     fileLogger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
