package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the JSON API until interrupted.
//
// Each browser session signs in with Spotify on its own; the token stored in the config file is not used.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if cfg.SessionKey == "" {
		r.logger.Warn("server.session_key is empty, sessions will not survive a restart")
	}

	auth, err := r.spotify()
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	api := web.New(web.Options{
		DB:   db,
		Auth: auth,
		Clients: web.SpotifyClients(r.config.Credentials.Spotify.Map(),
			services.WithRateLimit(r.config.Sync.RateLimit),
			services.WithTimeout(r.config.Sync.Timeout()),
		),
		Sessions:   web.NewSessionStore(cfg),
		Logger:     r.logger,
		Reconciler: r.reconcilerOptions(),
	})

	r.writePlain("→ Serving crate on http://%s (Ctrl+C to stop)\n", cfg.Addr())
	if err := server.Serve(ctx, server.NewHTTPServer(cfg.Addr(), api), r.logger); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
