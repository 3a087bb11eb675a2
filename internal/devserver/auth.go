package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"client_go/internal/security"
	"client_go/internal/store"
)

type contextKey string

const userContextKey contextKey = "currentUser"

func withUser(ctx context.Context, u *store.UserRecord) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// currentUser is set by requireAuth; handlers behind it can rely on it.
func currentUser(r *http.Request) *store.UserRecord {
	u, _ := r.Context().Value(userContextKey).(*store.UserRecord)
	return u
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > len("bearer ") && strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return ""
}

// socketToken accepts the Authorization header or the
// "Sec-WebSocket-Protocol: bearer, <token>" pair browsers can send.
func socketToken(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	parts := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// authenticate resolves a token to its user.
func (s *Server) authenticate(ctx context.Context, token string) (*store.UserRecord, error) {
	sub, err := s.tokens.Subject(token)
	if err != nil {
		return nil, err
	}
	return s.store.UserByID(ctx, sub)
}

// requireAuth validates the bearer token and attaches the user to the context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		user, err := s.authenticate(r.Context(), tok)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.log.Debug("auth_rejected", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is access_token, token_type and user.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        any    `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, "login_lookup_failed", err)
		return
	}
	if user == nil {
		s.hasher.Burn(req.Password)
		writeError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}
	if err := s.hasher.Check(req.Password, user.HashedPassword); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.log.Warn("login_hash_invalid", zap.String("user_id", user.ID), zap.Error(err))
		}
		writeError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.internalError(w, "token_issue_failed", err)
		return
	}
	s.log.Info("login", zap.String("user_id", user.ID), zap.String("username", user.Username))
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		User:        user.User,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r).User)
}
