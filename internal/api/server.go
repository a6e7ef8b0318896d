package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/widgetsync/internal/auth"
	"github.com/mattjoyce/widgetsync/internal/dispatch"
	"github.com/mattjoyce/widgetsync/internal/events"
	"github.com/mattjoyce/widgetsync/internal/storage"
)

// Surface is the dispatcher side the HTTP transport drives.
type Surface interface {
	Dispatch(ctx context.Context, cmd dispatch.Command) error
	PostMessages() *events.Hub
	DisplayMessages() *events.Hub
	Stats() dispatch.Stats
}

// DisplayJournal serves journaled display_data for late surfaces.
type DisplayJournal interface {
	Since(ctx context.Context, document string, after int64, limit int) ([]storage.DisplayEntry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Token is the admin bearer token for /surface routes. Tokens adds scoped
	// tokens. With neither set, authentication is disabled.
	Token           string
	Tokens          []auth.TokenConfig
	CORSOrigins     []string
	Document        string
	ConfigHash      string
	ShutdownTimeout time.Duration
}

// Server is the HTTP transport between one dispatcher and its render surface.
type Server struct {
	config    Config
	surface   Surface
	journal   DisplayJournal
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. journal may be nil.
func New(config Config, surface Surface, journal DisplayJournal, logger *slog.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		config:    config,
		surface:   surface,
		journal:   journal,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: SSE streams stay open for the life of the surface.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.authEnabled())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		}).Handler)
	}

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Route("/surface", func(r chi.Router) {
		if s.authEnabled() {
			r.Use(s.authMiddleware)
		}
		r.With(s.requireScope(auth.ScopeWrite)).Post("/commands", s.handleCommands)

		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(auth.ScopeRead))
			r.Get("/state", s.handleState)
			r.Get("/events", s.streamHub(s.surface.PostMessages()))
			r.Get("/display", s.streamHub(s.surface.DisplayMessages()))
			r.Get("/display/history", s.handleDisplayHistory)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
