package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]json.RawMessage
}

type apiRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (a *apiRecorder) record(r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	a.mu.Lock()
	a.requests = append(a.requests, rec)
	a.mu.Unlock()
}

func (a *apiRecorder) all() []recordedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedRequest(nil), a.requests...)
}

func newTestService(t *testing.T, handler http.Handler, opts ...Option) *SpotifyService {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	opts = append([]Option{WithBaseURL(ts.URL), WithRateLimit(0)}, opts...)
	srv, err := NewSpotifyService(map[string]string{
		"client_id":     "test_client_id",
		"client_secret": "test_client_secret",
	}, opts...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.SetToken(context.Background(), &oauth2.Token{
		AccessToken: "test_access_token",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	})
	return srv
}

func uriList(n int) []string {
	uris := make([]string, n)
	for i := range uris {
		uris[i] = fmt.Sprintf("spotify:track:%03d", i)
	}
	return uris
}

func decodeURIs(t *testing.T, raw json.RawMessage) []string {
	t.Helper()
	var uris []string
	if err := json.Unmarshal(raw, &uris); err != nil {
		t.Fatalf("failed to decode uris: %v", err)
	}
	return uris
}

func TestSpotifyServiceStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"Unauthorized", http.StatusUnauthorized, shared.ErrAuth},
		{"Forbidden", http.StatusForbidden, shared.ErrAuth},
		{"Not Found", http.StatusNotFound, shared.ErrNotFound},
		{"Rate Limited", http.StatusTooManyRequests, shared.ErrRemoteUnavailable},
		{"Server Error", http.StatusBadGateway, shared.ErrRemoteUnavailable},
		{"Bad Request", http.StatusBadRequest, shared.ErrAPIRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"status":%d,"message":"boom"}}`, tt.status)
			}))

			_, err := srv.Playlist(context.Background(), "p1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), "boom") {
				t.Errorf("expected provider message in error, got %v", err)
			}
		})
	}

	t.Run("Forbidden Write", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"status":403,"message":"You cannot add tracks to a playlist you don't own."}}`)
		}))

		err := srv.AddItems(context.Background(), "p1", uriList(1))
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if errors.Is(err, shared.ErrAuth) {
			t.Errorf("a refused write should not ask for a new login: %v", err)
		}
	})

	t.Run("Not Authenticated", func(t *testing.T) {
		srv, err := NewSpotifyService(map[string]string{"client_id": "id", "client_secret": "secret"})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		if _, err := srv.CurrentUser(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}), WithTimeout(50*time.Millisecond))

		if _, err := srv.CurrentUser(context.Background()); !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		srv := newTestService(t, http.NotFoundHandler())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := srv.CurrentUser(ctx); !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
		}
	})
}

func TestSpotifyServiceTokenRefresh(t *testing.T) {
	t.Run("refreshed token is reported", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"refreshed","token_type":"Bearer","expires_in":3600}`)
		})
		mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer refreshed" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"id":"u1","display_name":"Listener"}`)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		srv, err := NewSpotifyService(map[string]string{"client_id": "id", "client_secret": "secret"},
			WithBaseURL(ts.URL), WithEndpoint(ts.URL+"/authorize", ts.URL+"/token"), WithHTTPClient(ts.Client()))
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		var captured []*oauth2.Token
		srv.SetTokenRefreshCallback(func(token *oauth2.Token) { captured = append(captured, token) })
		srv.SetToken(context.Background(), &oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(-time.Hour),
		})

		user, err := srv.CurrentUser(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if user.ID != "u1" || user.DisplayName != "Listener" {
			t.Errorf("unexpected user %+v", user)
		}
		if len(captured) != 1 || captured[0].AccessToken != "refreshed" {
			t.Fatalf("expected one refreshed token, got %+v", captured)
		}
	})

	t.Run("rejected refresh token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		srv, err := NewSpotifyService(map[string]string{"client_id": "id", "client_secret": "secret"},
			WithBaseURL(ts.URL), WithEndpoint(ts.URL+"/authorize", ts.URL+"/token"), WithHTTPClient(ts.Client()))
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		srv.SetToken(context.Background(), &oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "revoked",
			Expiry:       time.Now().Add(-time.Hour),
		})

		if _, err := srv.CurrentUser(context.Background()); !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
	})
}

func TestSpotifyServicePlaylists(t *testing.T) {
	t.Run("PlaylistItems", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/playlists/p1/tracks" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if r.URL.Query().Get("offset") != "100" || r.URL.Query().Get("limit") != "100" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"total":103,"offset":100,"limit":100,"items":[
				{"track":{"id":"t1","name":"Song","uri":"spotify:track:t1","duration_ms":1000,
					"artists":[{"name":"A"},{"name":"B"}],"album":{"name":"Album","images":[{"url":"http://img/1"}]}}},
				{"track":null},
				{"is_local":true,"track":{"id":"","name":"Demo","uri":"spotify:local:demo","is_local":true}}
			]}`)
		}))

		page, err := srv.PlaylistItems(context.Background(), "p1", 100, 100)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if page.Total != 103 || page.Fetched != 3 || page.Offset != 100 {
			t.Errorf("unexpected page bookkeeping %+v", page)
		}
		if len(page.Items) != 2 {
			t.Fatalf("expected null track to be dropped, got %d items", len(page.Items))
		}

		first := page.Items[0]
		if first.ProviderID != "t1" || first.Artist != "A, B" || first.Album != "Album" || first.ArtworkURL != "http://img/1" {
			t.Errorf("unexpected track conversion %+v", first)
		}
		if page.Items[1].ProviderID != "" || page.Items[1].URI != "spotify:local:demo" {
			t.Errorf("local track should keep its URI without a provider id, got %+v", page.Items[1])
		}
	})

	t.Run("UserPlaylists follows pagination", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("offset") {
			case "0":
				fmt.Fprint(w, `{"total":2,"items":[{"id":"p1","name":"One","owner":{"id":"u1"},"tracks":{"total":3}}],"next":"more"}`)
			default:
				fmt.Fprint(w, `{"total":2,"items":[{"id":"p2","name":"Two","owner":{"id":"u2"},"tracks":{"total":0}}],"next":null}`)
			}
		}))

		playlists, err := srv.UserPlaylists(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if playlists[0].TrackCount != 3 || playlists[1].OwnerID != "u2" {
			t.Errorf("unexpected playlists %+v", playlists)
		}
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"new","name":"Mix","owner":{"id":"u1"}}`)
		}))

		playlist, err := srv.CreatePlaylist(context.Background(), "u1", PlaylistDetails{Name: "Mix", Description: "d"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if playlist.ID != "new" {
			t.Errorf("expected remote id 'new', got %s", playlist.ID)
		}

		reqs := rec.all()
		if len(reqs) != 1 || reqs[0].Method != http.MethodPost || reqs[0].Path != "/users/u1/playlists" {
			t.Fatalf("unexpected requests %+v", reqs)
		}
		if string(reqs[0].Body["name"]) != `"Mix"` || string(reqs[0].Body["public"]) != "false" {
			t.Errorf("unexpected body %v", reqs[0].Body)
		}

		if _, err := srv.CreatePlaylist(context.Background(), "u1", PlaylistDetails{Name: " "}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for blank name, got %v", err)
		}
	})

	t.Run("AddItems chunks in order", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)
			w.WriteHeader(http.StatusCreated)
		}))

		uris := uriList(250)
		if err := srv.AddItems(context.Background(), "p1", uris); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		reqs := rec.all()
		if len(reqs) != 3 {
			t.Fatalf("expected 3 requests, got %d", len(reqs))
		}
		var sent []string
		for i, want := range []int{100, 100, 50} {
			got := decodeURIs(t, reqs[i].Body["uris"])
			if len(got) != want {
				t.Errorf("chunk %d: expected %d uris, got %d", i, want, len(got))
			}
			sent = append(sent, got...)
		}
		for i := range uris {
			if sent[i] != uris[i] {
				t.Fatalf("uri order changed at %d: %s != %s", i, sent[i], uris[i])
			}
		}
	})

	t.Run("AddItems with nothing to add", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { rec.record(r) }))

		if err := srv.AddItems(context.Background(), "p1", nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n := len(rec.all()); n != 0 {
			t.Errorf("expected no requests, got %d", n)
		}
	})

	t.Run("RemoveItems", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { rec.record(r) }))

		if err := srv.RemoveItems(context.Background(), "p1", uriList(120)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		reqs := rec.all()
		if len(reqs) != 2 || reqs[0].Method != http.MethodDelete {
			t.Fatalf("expected 2 DELETE requests, got %+v", reqs)
		}
		var refs []struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(reqs[1].Body["tracks"], &refs); err != nil {
			t.Fatalf("failed to decode tracks: %v", err)
		}
		if len(refs) != 20 || refs[0].URI != "spotify:track:100" {
			t.Errorf("unexpected second chunk %+v", refs)
		}
	})

	t.Run("ReplaceItems", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { rec.record(r) }))

		if err := srv.ReplaceItems(context.Background(), "p1", uriList(150)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		reqs := rec.all()
		if len(reqs) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(reqs))
		}
		if reqs[0].Method != http.MethodPut || len(decodeURIs(t, reqs[0].Body["uris"])) != 100 {
			t.Errorf("first request should replace with 100 uris, got %+v", reqs[0])
		}
		if reqs[1].Method != http.MethodPost || len(decodeURIs(t, reqs[1].Body["uris"])) != 50 {
			t.Errorf("second request should append 50 uris, got %+v", reqs[1])
		}
	})

	t.Run("ReplaceItems with empty list clears", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { rec.record(r) }))

		if err := srv.ReplaceItems(context.Background(), "p1", nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		reqs := rec.all()
		if len(reqs) != 1 || reqs[0].Method != http.MethodPut {
			t.Fatalf("expected a single PUT, got %+v", reqs)
		}
		if got := decodeURIs(t, reqs[0].Body["uris"]); len(got) != 0 {
			t.Errorf("expected empty uri list, got %v", got)
		}
	})

	t.Run("UpdateDetails", func(t *testing.T) {
		rec := &apiRecorder{}
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { rec.record(r) }))

		if err := srv.UpdateDetails(context.Background(), "p1", PlaylistDetails{Name: "Renamed", Description: "new"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		reqs := rec.all()
		if len(reqs) != 1 || reqs[0].Method != http.MethodPut || reqs[0].Path != "/playlists/p1" {
			t.Fatalf("unexpected requests %+v", reqs)
		}
		if _, ok := reqs[0].Body["public"]; ok {
			t.Error("details update should not change visibility")
		}
	})

	t.Run("SearchTracks", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("type") != "track" || r.URL.Query().Get("limit") != "50" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"tracks":{"items":[{"id":"t1","name":"Hit","uri":"spotify:track:t1","artists":[{"name":"Band"}]}]}}`)
		}))

		tracks, err := srv.SearchTracks(context.Background(), "hit", 500)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 || tracks[0].String() != "Hit - Band" {
			t.Errorf("unexpected tracks %+v", tracks)
		}

		if _, err := srv.SearchTracks(context.Background(), "  ", 10); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty query, got %v", err)
		}
	})
}
