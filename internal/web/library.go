package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

type libraryRequest struct {
	ProviderID string `json:"provider_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	DurationMS int    `json:"duration_ms"`
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: limit must be a number", shared.ErrInvalidInput))
			return
		}
		limit = n
	}

	tracks, err := clientFrom(r).SearchTracks(r.Context(), query.Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if tracks == nil {
		tracks = []models.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) listLibrary(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.tracks.Search(ownerFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tracks == nil {
		tracks = []*models.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// addLibrary adds a Spotify track by provider_id, or a manual track from title and artist.
func (s *Server) addLibrary(w http.ResponseWriter, r *http.Request) {
	var req libraryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var track *models.Track
	if id := strings.TrimSpace(req.ProviderID); id != "" {
		remote, err := clientFrom(r).Track(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		track = remote
	} else {
		track = &models.Track{Title: req.Title, Artist: req.Artist, Album: req.Album, DurationMS: req.DurationMS}
	}
	track.ID = ""
	track.OwnerID = ownerFrom(r)

	created, err := s.tracks.Save(track)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, track)
}

func (s *Server) removeLibrary(w http.ResponseWriter, r *http.Request) {
	if err := s.tracks.Delete(ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.tags.List(ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	tag := &models.Tag{OwnerID: ownerFrom(r), Name: strings.TrimSpace(req.Name), Color: req.Color}
	if err := s.tags.Create(tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.tags.Delete(ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tagTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.tags.Tracks(ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tracks == nil {
		tracks = []*models.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) attachTag(w http.ResponseWriter, r *http.Request) {
	if err := s.tags.Attach(ownerFrom(r), r.PathValue("id"), r.PathValue("trackID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) detachTag(w http.ResponseWriter, r *http.Request) {
	if err := s.tags.Detach(ownerFrom(r), r.PathValue("id"), r.PathValue("trackID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
