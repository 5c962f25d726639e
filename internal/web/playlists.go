package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

type playlistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type tracksRequest struct {
	TrackIDs []string `json:"track_ids"`
}

type moveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type syncRequest struct {
	Action string `json:"action"`
}

type importRequest struct {
	RemoteID string `json:"remote_id"`
}

func (s *Server) listPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.playlists.List(ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	summaries := make([]models.PlaylistSummary, 0, len(playlists))
	for _, p := range playlists {
		summaries = append(summaries, p.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == nil {
		writeError(w, fmt.Errorf("%w: name is required", shared.ErrInvalidInput))
		return
	}

	playlist := &models.Playlist{OwnerID: ownerFrom(r), Name: strings.TrimSpace(*req.Name)}
	if req.Description != nil {
		playlist.Description = *req.Description
	}
	if err := s.playlists.Create(playlist); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

func (s *Server) getPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := s.playlists.Get(ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) updatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, fmt.Errorf("%w: name cannot be empty", shared.ErrInvalidInput))
		return
	}

	fields := models.PlaylistFields{Name: req.Name, Description: req.Description}
	if fields.Empty() {
		writeError(w, fmt.Errorf("%w: nothing to update", shared.ErrInvalidInput))
		return
	}
	playlist, err := s.playlists.UpdateFields(ownerFrom(r), r.PathValue("id"), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) deletePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.playlists.Delete(ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addPlaylistTracks(w http.ResponseWriter, r *http.Request) {
	var req tracksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.TrackIDs) == 0 {
		writeError(w, fmt.Errorf("%w: track_ids is required", shared.ErrInvalidInput))
		return
	}

	playlist, err := s.playlists.AddTracks(ownerFrom(r), r.PathValue("id"), req.TrackIDs...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) removePlaylistTrack(w http.ResponseWriter, r *http.Request) {
	playlist, err := s.playlists.RemoveTrack(ownerFrom(r), r.PathValue("id"), r.PathValue("trackID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) movePlaylistTrack(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	playlist, err := s.playlists.MoveTrack(ownerFrom(r), r.PathValue("id"), req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// syncPlaylist runs the sync entrypoint. An empty body means {"action": "sync"}.
func (s *Server) syncPlaylist(w http.ResponseWriter, r *http.Request) {
	req := syncRequest{Action: "sync"}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	reconciler := s.reconcilerFor(r)
	id := r.PathValue("id")
	switch strings.ToLower(req.Action) {
	case "", "sync":
		result, err := reconciler.Sync(r.Context(), ownerFrom(r), id, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "mirror":
		result, err := reconciler.Mirror(r.Context(), ownerFrom(r), id, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "create":
		result, err := reconciler.CreateOnRemote(r.Context(), ownerFrom(r), id, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeError(w, fmt.Errorf("%w: unknown action %q", shared.ErrInvalidInput, req.Action))
	}
}

func (s *Server) importPlaylist(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.reconcilerFor(r).Import(r.Context(), ownerFrom(r), req.RemoteID, nil)
	switch {
	case errors.Is(err, shared.ErrAlreadyImported) && result != nil:
		writeJSON(w, http.StatusOK, result)
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusCreated, result)
	}
}

func (s *Server) syncAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.reconcilerFor(r).SyncAll(r.Context(), ownerFrom(r), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// entries merges local playlists with the user's Spotify playlists. When Spotify cannot be reached the local
// entries are still returned together with the remote error.
func (s *Server) entries(w http.ResponseWriter, r *http.Request) {
	local, err := s.playlists.List(ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	body := struct {
		Entries     []models.EntryView `json:"entries"`
		RemoteError string             `json:"remote_error,omitempty"`
	}{}

	remote, err := clientFrom(r).UserPlaylists(r.Context())
	if err != nil {
		if StatusFor(err) == http.StatusUnauthorized {
			writeError(w, err)
			return
		}
		s.logger.Warn("failed to list remote playlists", "err", err)
		body.RemoteError = err.Error()
		remote = nil
	}

	for _, e := range models.MergeEntries(local, remote) {
		body.Entries = append(body.Entries, models.View(e))
	}
	if body.Entries == nil {
		body.Entries = []models.EntryView{}
	}
	writeJSON(w, http.StatusOK, body)
}
