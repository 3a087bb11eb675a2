package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"client_go/internal/logger"
)

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Instrument)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/users/me", s.handleMe)
			r.Get("/users", s.handleListUsers)

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", s.handleListChannels)
				r.Post("/", s.handleCreateChannel)

				r.Route("/personal/{peerID}", func(r chi.Router) {
					r.Use(s.directContext)
					r.Post("/", s.handleInitDirect)
					r.Get("/messages", s.handleListMessages)
					r.Patch("/messages/{messageID}", s.handleEditMessage)
					r.Delete("/messages/{messageID}", s.handleDeleteMessage)
					r.Post("/{action}", s.handleAction)
				})

				r.Route("/{channelID}", func(r chi.Router) {
					r.Use(s.channelContext)
					r.Get("/messages", s.handleListMessages)
					r.Post("/messages", s.handleSendMessage)
					r.Patch("/messages/{messageID}", s.handleEditMessage)
					r.Delete("/messages/{messageID}", s.handleDeleteMessage)
					r.Post("/members", s.handleAddMember)
					r.Post("/{action}", s.handleAction)
				})
			})

			r.Route("/dms/{peerID}", func(r chi.Router) {
				r.Use(s.directContext)
				r.Post("/messages", s.handleSendMessage)
			})
		})
	})

	r.Get("/ws", s.handleSocket)

	return r
}

// requestLogger logs one line per request with the status, size and
// latency, and credentials redacted from the headers.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("http_request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
			s.log.Debug("http_request_headers",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("headers", logger.SafeHeaders(r.Header)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, event string, err error) {
	s.log.Error(event, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
