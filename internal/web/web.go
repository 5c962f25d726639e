// Package web serves the crate JSON API used by browser front ends.
//
// # Routes
//
//	GET    /auth/login                         → redirect to Spotify authorization
//	GET    /auth/callback                      → complete OAuth, start a session
//	POST   /auth/logout                        → clear the session
//	GET    /api/me                             → current user
//	GET    /api/search?q=                      → Spotify track search
//	GET    /api/entries                        → merged local and remote playlist list
//	GET    /api/library?q=                     → library tracks
//	POST   /api/library                        → add a Spotify or manual track
//	DELETE /api/library/{id}                   → remove a library track
//	GET    /api/playlists                      → local playlists
//	POST   /api/playlists                      → create a local playlist
//	GET    /api/playlists/{id}                 → playlist with tracks
//	PATCH  /api/playlists/{id}                 → rename or describe
//	DELETE /api/playlists/{id}                 → delete
//	POST   /api/playlists/{id}/tracks          → append library tracks
//	DELETE /api/playlists/{id}/tracks/{trackID} → remove a track
//	POST   /api/playlists/{id}/move            → reorder a track
//	POST   /api/playlists/{id}/sync            → sync or create on Spotify
//	POST   /api/import                         → import a Spotify playlist
//	POST   /api/sync                           → sync every linked playlist
//	GET    /api/tags, POST /api/tags, DELETE /api/tags/{id}
//	GET    /api/tags/{id}/tracks, POST|DELETE /api/tags/{id}/tracks/{trackID}
//
// # Sessions
//
// Sessions live in a cookie signed and encrypted with gorilla/securecookie keys. The session holds the
// Spotify user id, which is the owner id of every record, and the user's OAuth token. Each authenticated
// request builds a provider [Client] from that token through a [ClientFactory].
//
// # Errors
//
// Errors are returned as {"error": "...", "phase": "..."} with the status chosen by [StatusFor]. The phase is
// present when a reconciler operation failed part way.
package web

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
)

// Client is the provider surface a signed-in request may use.
type Client interface {
	services.Provider
	services.Catalog
}

// ClientFactory builds a [Client] for token and returns the token it ended up using, which differs from token
// when it had to be refreshed.
type ClientFactory func(ctx context.Context, token *oauth2.Token) (Client, *oauth2.Token, error)

// Authenticator starts and completes the OAuth authorization code flow.
type Authenticator interface {
	GetAuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Options configures a [Server].
type Options struct {
	DB         *sql.DB
	Auth       Authenticator
	Clients    ClientFactory
	Sessions   sessions.Store
	Logger     *log.Logger
	Reconciler []tasks.ReconcilerOption
}

// Server is the JSON API.
type Server struct {
	playlists  *repositories.PlaylistRepository
	tracks     *repositories.TrackRepository
	tags       *repositories.TagRepository
	users      *repositories.UserRepository
	auth       Authenticator
	clients    ClientFactory
	sessions   sessions.Store
	logger     *log.Logger
	reconciler []tasks.ReconcilerOption
	router     *server.BasicRouter
}

// New creates a [Server] and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	s := &Server{
		playlists:  repositories.NewPlaylistRepository(opts.DB),
		tracks:     repositories.NewTrackRepository(opts.DB),
		tags:       repositories.NewTagRepository(opts.DB),
		users:      repositories.NewUserRepository(opts.DB),
		auth:       opts.Auth,
		clients:    opts.Clients,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		reconciler: append([]tasks.ReconcilerOption{tasks.WithLogger(opts.Logger)}, opts.Reconciler...),
	}
	s.routes()
	return s
}

// SpotifyClients returns a [ClientFactory] creating one Spotify client per request from creds.
func SpotifyClients(creds map[string]string, opts ...services.Option) ClientFactory {
	return func(ctx context.Context, token *oauth2.Token) (Client, *oauth2.Token, error) {
		svc, err := services.NewSpotifyService(creds, opts...)
		if err != nil {
			return nil, nil, err
		}
		svc.SetToken(ctx, token)
		fresh, err := svc.Token()
		if err != nil {
			return nil, nil, err
		}
		return svc, fresh, nil
	}
}

func (s *Server) routes() {
	r := server.NewBasicRouter()
	r.Use(server.Logging(s.logger), server.Recover(s.logger), s.withSession)

	r.HandleFunc(http.MethodGet, "/auth/login", s.login)
	r.HandleFunc(http.MethodGet, "/auth/callback", s.callback)
	r.HandleFunc(http.MethodPost, "/auth/logout", s.logout)

	api := func(method, path string, fn http.HandlerFunc) {
		r.Handle(method, path, s.withUser(fn))
	}

	api(http.MethodGet, "/api/me", s.me)
	api(http.MethodGet, "/api/search", s.search)
	api(http.MethodGet, "/api/entries", s.entries)

	api(http.MethodGet, "/api/library", s.listLibrary)
	api(http.MethodPost, "/api/library", s.addLibrary)
	api(http.MethodDelete, "/api/library/{id}", s.removeLibrary)

	api(http.MethodGet, "/api/playlists", s.listPlaylists)
	api(http.MethodPost, "/api/playlists", s.createPlaylist)
	api(http.MethodGet, "/api/playlists/{id}", s.getPlaylist)
	api(http.MethodPatch, "/api/playlists/{id}", s.updatePlaylist)
	api(http.MethodDelete, "/api/playlists/{id}", s.deletePlaylist)
	api(http.MethodPost, "/api/playlists/{id}/tracks", s.addPlaylistTracks)
	api(http.MethodDelete, "/api/playlists/{id}/tracks/{trackID}", s.removePlaylistTrack)
	api(http.MethodPost, "/api/playlists/{id}/move", s.movePlaylistTrack)
	api(http.MethodPost, "/api/playlists/{id}/sync", s.syncPlaylist)
	api(http.MethodPost, "/api/import", s.importPlaylist)
	api(http.MethodPost, "/api/sync", s.syncAll)

	api(http.MethodGet, "/api/tags", s.listTags)
	api(http.MethodPost, "/api/tags", s.createTag)
	api(http.MethodDelete, "/api/tags/{id}", s.deleteTag)
	api(http.MethodGet, "/api/tags/{id}/tracks", s.tagTracks)
	api(http.MethodPost, "/api/tags/{id}/tracks/{trackID}", s.attachTag)
	api(http.MethodDelete, "/api/tags/{id}/tracks/{trackID}", s.detachTag)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) reconcilerFor(r *http.Request) *tasks.Reconciler {
	return tasks.NewReconciler(clientFrom(r), s.playlists, s.reconciler...)
}
