package web

import (
	"context"
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/desertthunder/crate/internal/shared"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
)

// SessionName is the cookie holding the signed and encrypted session.
const SessionName = "crate"

type ctxKey int

const (
	ctxSession ctxKey = iota
	ctxUser
	ctxClient
)

const (
	keyUserID       = "user_id"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiry       = "expiry"
	keyState        = "state"
)

// NewSessionStore creates a cookie store keyed from cfg.SessionKey.
//
// Without a configured key a random one is generated, so sessions do not survive a restart.
func NewSessionStore(cfg shared.ServerConfig) *sessions.CookieStore {
	secret := []byte(cfg.SessionKey)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}
	hashKey := sha256.Sum256(append([]byte("hash:"), secret...))
	blockKey := sha256.Sum256(append([]byte("block:"), secret...))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// withSession loads the session into the request context. A cookie that fails to decode yields a fresh session.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessions.Get(r, SessionName)
		if err != nil {
			s.logger.Debug("discarding unreadable session", "err", err)
		}
		ctx := context.WithValue(r.Context(), ctxSession, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *sessions.Session {
	session, _ := r.Context().Value(ctxSession).(*sessions.Session)
	return session
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		s.logger.Error("failed to save session", "err", err)
	}
}

func sessionToken(session *sessions.Session) *oauth2.Token {
	access, _ := session.Values[keyAccessToken].(string)
	if access == "" {
		return nil
	}
	refresh, _ := session.Values[keyRefreshToken].(string)
	token := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if expiry, ok := session.Values[keyExpiry].(int64); ok && expiry > 0 {
		token.Expiry = time.Unix(expiry, 0)
	}
	return token
}

func storeToken(session *sessions.Session, token *oauth2.Token) {
	session.Values[keyAccessToken] = token.AccessToken
	if token.RefreshToken != "" {
		session.Values[keyRefreshToken] = token.RefreshToken
	}
	if token.Expiry.IsZero() {
		delete(session.Values, keyExpiry)
	} else {
		session.Values[keyExpiry] = token.Expiry.Unix()
	}
}

// withUser requires a logged-in session and attaches the owner id and a provider client to the context.
//
// A token refreshed while building the client is written back to the session before the handler runs.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFrom(r)
		userID, _ := session.Values[keyUserID].(string)
		token := sessionToken(session)
		if userID == "" || token == nil {
			writeError(w, shared.ErrNotAuthenticated)
			return
		}

		client, fresh, err := s.clients(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if fresh != nil && fresh.AccessToken != token.AccessToken {
			storeToken(session, fresh)
			s.saveSession(w, r, session)
		}

		ctx := context.WithValue(r.Context(), ctxUser, userID)
		ctx = context.WithValue(ctx, ctxClient, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxUser).(string)
	return id
}

func clientFrom(r *http.Request) Client {
	client, _ := r.Context().Value(ctxClient).(Client)
	return client
}
