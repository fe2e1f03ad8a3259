package relay

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/notehub/nhchat/internal/relay/auth"
	"github.com/notehub/nhchat/internal/relay/db"
	"github.com/notehub/nhchat/internal/wire"
)

const userSearchLimit = 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// issue returns a fresh token pair for u.
func (s *Server) issue(u db.User) (wire.TokenResponse, error) {
	access, err := s.tokens.IssueAccess(u.ID)
	if err != nil {
		return wire.TokenResponse{}, err
	}
	refresh, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return wire.TokenResponse{}, err
	}
	pub := u.Wire()
	return wire.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		User:         &pub,
	}, nil
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in wire.Credentials
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || strings.ContainsAny(in.Username, " \t\r\n") {
		writeError(w, http.StatusBadRequest, "username is required and may not contain spaces")
		return
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.db.CreateUser(r.Context(), in.Username, strings.TrimSpace(in.DisplayName), hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tr, err := s.issue(u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in wire.Credentials
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	u, err := s.db.UserByUsername(r.Context(), strings.TrimSpace(in.Username))
	if errors.Is(err, db.ErrNotFound) || (err == nil && !s.hasher.Verify(in.Password, u.PasswordHash)) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tr, err := s.issue(u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// refresh exchanges the refresh token in the Authorization header for a new
// token pair.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	tok := auth.BearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	userID, err := s.tokens.Verify(tok, auth.TypeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	u, err := s.db.UserByID(r.Context(), userID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tr, err := s.issue(u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// currentUser loads the authenticated account.
func (s *Server) currentUser(r *http.Request) (db.User, error) {
	return s.db.UserByID(r.Context(), auth.UserID(r.Context()))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Wire())
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.SearchUsers(r.Context(), r.URL.Query().Get("q"), userSearchLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if users == nil {
		users = []wire.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	msgs, err := s.db.Search(r.Context(), auth.UserID(r.Context()), q, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []wire.Message{}
	}
	writeJSON(w, http.StatusOK, wire.MessagesResponse{Messages: msgs})
}

func (s *Server) hiddenNotes(w http.ResponseWriter, r *http.Request) {
	ids, err := s.db.HiddenNotes(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.HiddenNotes{NoteIDs: ids})
}

func (s *Server) setHiddenNotes(w http.ResponseWriter, r *http.Request) {
	var in wire.HiddenNotes
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	ids, err := s.db.SetHiddenNotes(r.Context(), auth.UserID(r.Context()), in.NoteIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.HiddenNotes{NoteIDs: ids})
}

// serveWS upgrades to the live channel for the authenticated user.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.hub.Serve(w, r, u.Ref())
}
