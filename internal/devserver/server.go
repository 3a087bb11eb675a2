// Package devserver is a local chat backend speaking the REST and push
// protocols the client consumes. It is used for demos and end-to-end tests.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"client_go/internal/config"
	"client_go/internal/security"
	"client_go/internal/store"
)

const maxMessageRunes = 5000

// Server holds the backend's dependencies. Handlers are methods on it.
type Server struct {
	cfg     *config.DevServer
	store   *store.Store
	tokens  *security.TokenService
	hasher  *security.PasswordHasher
	cipher  *security.BodyCipher
	hub     *Hub
	metrics *Metrics
	log     *zap.Logger
}

func New(cfg *config.DevServer, st *store.Store, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cipher, err := security.NewBodyCipher(cfg.EncryptKey, cfg.LegacyKeys)
	if err != nil {
		return nil, fmt.Errorf("body cipher: %w", err)
	}
	metrics := NewMetrics()
	return &Server{
		cfg:     cfg,
		store:   st,
		tokens:  security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL()),
		hasher:  security.NewPasswordHasher(cfg.PasswordCost),
		cipher:  cipher,
		hub:     NewHub(metrics, log.Named("hub")),
		metrics: metrics,
		log:     log,
	}, nil
}

func (s *Server) Tokens() *security.TokenService { return s.tokens }

func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http_listen", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("http_stopped")
	return nil
}
