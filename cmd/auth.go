package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/web"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// loginTimeout bounds how long [Runner.AuthLogin] waits for the browser callback.
const loginTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts a loopback HTTP server on the redirect URI, opens the browser for user authorization and stores the
// issued token and the account id in the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotify()
	if err != nil {
		return err
	}

	token, err := r.authorize(ctx, svc, cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	user, err := svc.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch Spotify account: %w", err)
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	if err := repositories.NewUserRepository(db).Upsert(user); err != nil {
		return err
	}

	r.config.Credentials.Spotify.UserID = user.ID
	if err := r.saveTokens(token); err != nil {
		return err
	}
	r.logger.Info("authorization complete", "user", user.ID)

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Signed in as %s (%s)\n", user.DisplayName, user.ID)
	r.writePlain("✓ Tokens saved to %s\n\n", r.configName())
	r.writePlain("You can now use: crate playlist list --remote\n")
	return nil
}

// authorize serves the OAuth callback on the redirect URI's address until the code has been exchanged.
func (r *Runner) authorize(ctx context.Context, svc web.Authenticator, noBrowser bool) (*oauth2.Token, error) {
	redirect := r.config.Credentials.Spotify.RedirectURI
	addr := r.config.Server.Addr()
	if u, err := url.Parse(redirect); err == nil && u.Host != "" {
		addr = u.Host
	}

	state := server.NewState()
	handler := server.NewOAuthHandler(svc, state, server.CallbackPath(redirect))
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Handler(handler)

	waitCtx, cancelWait := context.WithTimeout(ctx, loginTimeout)
	defer cancelWait()
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() {
		err := server.Serve(serveCtx, server.NewHTTPServer(addr, router), r.logger)
		if err != nil {
			cancelWait()
		}
		done <- err
	}()

	authURL := svc.GetAuthURL(state)
	if noBrowser {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", loginTimeout)

	token, waitErr := handler.Wait(waitCtx)
	stop()
	if err := <-done; err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, fmt.Errorf("authorization failed: %w", waitErr)
	}
	return token, nil
}

type authStatus struct {
	ConfigPath    string    `json:"config_path"`
	UserID        string    `json:"user_id,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Authenticated bool      `json:"authenticated"`
	TokenExpiry   time.Time `json:"token_expiry,omitzero"`
	Error         string    `json:"error,omitempty"`
}

// AuthStatus reports the stored account and verifies the token against Spotify.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	status := authStatus{
		ConfigPath:  r.configName(),
		UserID:      creds.UserID,
		TokenExpiry: creds.TokenExpiry,
	}

	if client, err := r.remote(ctx); err != nil {
		status.Error = err.Error()
	} else if user, err := client.CurrentUser(ctx); err != nil {
		status.Error = err.Error()
	} else {
		status.Authenticated = true
		status.DisplayName = user.DisplayName
		status.UserID = user.ID
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Spotify")
	r.writePlain("Config: %s\n", status.ConfigPath)
	if status.UserID != "" {
		r.writePlain("User:   %s\n", status.UserID)
	}
	if status.Authenticated {
		r.writePlain("✓ Signed in as %s\n", status.DisplayName)
		if !status.TokenExpiry.IsZero() {
			r.writePlain("  Token expires %s\n", status.TokenExpiry.Local().Format(time.RFC1123))
		}
		return nil
	}
	r.writePlain("✗ Not signed in: %s\n", status.Error)
	return nil
}

// AuthLogout removes the stored token. Local playlists, tracks and tags are kept.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	spotify := &r.config.Credentials.Spotify
	spotify.AccessToken = ""
	spotify.RefreshToken = ""
	spotify.TokenExpiry = time.Time{}

	if r.configPath != "" {
		if err := shared.SaveConfig(r.configPath, r.config); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}
	r.client = nil

	r.logger.Info("signed out", "user", spotify.UserID)
	return r.writePlain("✓ Spotify token removed from %s\n", r.configName())
}
