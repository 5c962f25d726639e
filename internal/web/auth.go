package web

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/shared"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	state := server.NewState()
	session.Values[keyState] = state
	s.saveSession(w, r, session)

	http.Redirect(w, r, s.auth.GetAuthURL(state), http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	query := r.URL.Query()

	expected, _ := session.Values[keyState].(string)
	if expected == "" || query.Get("state") != expected {
		writeError(w, fmt.Errorf("%w: invalid state parameter", shared.ErrAuth))
		return
	}
	delete(session.Values, keyState)

	code := query.Get("code")
	if code == "" {
		writeError(w, fmt.Errorf("%w: authorization failed: %s", shared.ErrAuth, query.Get("error")))
		return
	}

	token, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	client, fresh, err := s.clients(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := client.CurrentUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.Upsert(user); err != nil {
		writeError(w, err)
		return
	}

	session.Values[keyUserID] = user.ID
	storeToken(session, fresh)
	s.saveSession(w, r, session)

	s.logger.Info("user signed in", "user", user.ID)
	http.Redirect(w, r, "/api/me", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	s.saveSession(w, r, session)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
