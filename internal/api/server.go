// Package api exposes the process queue over HTTP and websockets.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/process"
	"github.com/Veraticus/the-trucks-must-roll/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// QueueStore is the part of process.Store the handlers use.
type QueueStore interface {
	AddWaitInEntry(ctx context.Context, form model.WaitInForm) (model.ProcessRecord, error)
	UpdateWaitOutEntry(ctx context.Context, ticket string, waitOut model.WaitOutForm) (process.Outcome, error)
	ListAll() []model.ProcessRecord
	Filter(status model.ProcessStatus) []model.ProcessRecord
	Get(ticket string) (model.ProcessRecord, bool)
	DetectedVehicleNumber() string
	SetDetectedVehicleNumber(number string)
	InitialFormData() model.WaitInForm
}

// CounterReader reports today's ticket counters.
type CounterReader interface {
	Counts(ctx context.Context) (model.DailyCounterState, error)
}

// ImageDetector reads plates from uploaded images.
type ImageDetector interface {
	DetectImage(ctx context.Context, filename string, data []byte) (*model.DetectionResult, error)
	DetectBase64(ctx context.Context, image string) (*model.DetectionResult, error)
}

// Server serves the queue API.
type Server struct {
	store          QueueStore
	counters       CounterReader
	detector       ImageDetector
	hub            *ws.Hub
	logger         *slog.Logger
	tlsCert        *tls.Certificate
	jwtSecret      string
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithDetector enables POST /api/v1/detect and /api/v1/detect-base64.
func WithDetector(d ImageDetector) Option {
	return func(s *Server) {
		s.detector = d
	}
}

// WithHub enables the /ws/queue event stream.
func WithHub(hub *ws.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithJWTSecret turns on bearer-token authentication.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		s.jwtSecret = secret
	}
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithTLS serves HTTPS with cert. Browsers only allow camera capture for
// plate images on a secure origin.
func WithTLS(cert tls.Certificate) Option {
	return func(s *Server) {
		s.tlsCert = &cert
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server over store and counters.
func NewServer(store QueueStore, counters CounterReader, opts ...Option) *Server {
	s := &Server{
		store:          store,
		counters:       counters,
		logger:         slog.Default(),
		allowedOrigins: []string{"http://localhost:5173"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if s.hub != nil {
			body["listeners"] = s.hub.ClientCount()
		}
		writeJSON(w, http.StatusOK, body)
	})

	if s.hub != nil {
		r.Get("/ws/queue", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWS(s.hub, s.jwtSecret, w, r)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.jwtSecret != "" {
			r.Use(Authenticate(s.jwtSecret))
		}

		r.Get("/processes", s.listProcesses)
		r.Get("/processes/{ticket}", s.getProcess)
		r.Post("/wait-in", s.waitIn)
		r.Post("/wait-out/{ticket}", s.waitOut)
		r.Get("/forms/wait-in", s.waitInForm)
		r.Get("/counters", s.getCounters)
		r.Get("/detected-vehicle", s.getDetectedVehicle)
		r.Put("/detected-vehicle", s.putDetectedVehicle)
		r.Post("/detect", s.detect)
		r.Post("/detect-base64", s.detectBase64)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.tlsCert != nil {
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*s.tlsCert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", addr, "auth", s.jwtSecret != "", "tls", s.tlsCert != nil)
		if s.tlsCert != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

// requestLogger puts a logger tagged with the request ID into the request
// context. Must run after middleware.RequestID.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(common.WithLogger(r.Context(), logger)))
		})
	}
}
