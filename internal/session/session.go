// Package session holds the credential and current user of a logged-in
// client. A Session is created once at start and passed to the transports.
package session

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"client_go/internal/domain"
)

// Session is the bearer token plus the cached current user.
type Session struct {
	mu      sync.RWMutex
	token   string
	subject string
	expires time.Time
	user    *domain.User

	once      sync.Once
	loggedOut chan struct{}
	reason    string
}

// New wraps an access token. The claims are read without verifying the
// signature; only the server can do that.
func New(token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", domain.ErrUnauthorized)
	}

	s := &Session{token: token, loggedOut: make(chan struct{})}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil {
			s.subject = sub
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.expires = exp.Time
		}
	}

	return s, nil
}

// Token returns the current bearer token, or "" after Invalidate.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subject is the "sub" claim of the token, if it had one.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// ExpiresAt returns the "exp" claim, or the zero time.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

// Expired reports whether the token's exp claim is at or before now.
func (s *Session) Expired(now time.Time) bool {
	exp := s.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Authorize sets the Authorization header on req.
func (s *Session) Authorize(req *http.Request) error {
	tok := s.Token()
	if tok == "" {
		return domain.ErrUnauthorized
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (s *Session) SetUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// User returns the cached current user.
func (s *Session) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// UserID is the cached user's id, or "" when unknown.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Invalidate drops the credential. Only the first call has an effect; it
// closes the LoggedOut channel.
func (s *Session) Invalidate(reason string) bool {
	fired := false
	s.once.Do(func() {
		s.mu.Lock()
		s.token = ""
		s.reason = reason
		s.mu.Unlock()
		close(s.loggedOut)
		fired = true
	})
	return fired
}

// LoggedOut is closed once the session has been invalidated.
func (s *Session) LoggedOut() <-chan struct{} {
	return s.loggedOut
}

// Reason is the argument of the Invalidate call that ended the session.
func (s *Session) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}
