// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer — the composition root where every
// dependency is assembled in one place:
//
//	sqlite.DB → repository.SnippetRepository
//	pubsub.Broker (Redis if configured, noop otherwise)
//	SnippetService(repo, broker) → SnippetHandler / LiveHandler → routes
//
// Each layer only receives what it needs: the service gets interfaces, the
// handlers get the service, and nothing below the handlers knows HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/codefile/internal/handler"
	"github.com/sakif/codefile/internal/middleware"
	"github.com/sakif/codefile/internal/pubsub"
	sqliteRepo "github.com/sakif/codefile/internal/repository/sqlite"
	"github.com/sakif/codefile/internal/service"
)

// Config holds server configuration.
//
// RedisAddr empty means "no pub/sub transport": the server runs with the
// noop broker, all CRUD keeps working, and only cross-client live
// propagation is lost. Missing Redis is a degraded mode, never a startup
// failure.
type Config struct {
	Port          int
	DBPath        string
	RedisAddr     string
	RedisPassword string
}

// Server owns the router and the process-lifetime resources (database
// connection, broker). Both are closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	broker pubsub.Broker
}

// New creates a new Server with the given config.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// TRANSPORT SELECTION:
	// Same shape as any optional dependency: try to connect, warn and fall
	// back when it fails. Note the fallback also covers "Redis configured
	// but unreachable" — a typo'd address shouldn't keep snippets from
	// being served.
	var broker pubsub.Broker = pubsub.NewNoopBroker()
	if cfg.RedisAddr != "" {
		rb, err := pubsub.NewRedisBroker(context.Background(), cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Warn("redis unavailable — real-time updates disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		} else {
			broker = rb
		}
	} else {
		logger.Warn("REDIS_ADDR not set — real-time updates disabled")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		broker: broker,
	}

	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                 → liveness probe
//	POST   /api/snippets            → create snippet
//	GET    /api/snippets/{id}       → get snippet
//	PATCH  /api/snippets/{id}       → partial update (the mutation gateway)
//	DELETE /api/snippets/{id}       → delete snippet
//	GET    /api/snippets/{id}/live  → WebSocket delta stream
//
// MIDDLEWARE ORDER MATTERS — it executes in the order added:
// RequestID (tracing) → RealIP (proxy headers) → Recoverer (panics → 500)
// → our slog request logger.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	snippetService := service.NewSnippetService(s.db, s.broker, s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetService, s.logger)
	liveHandler := handler.NewLiveHandler(snippetService, s.broker, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/snippets", snippetHandler.HandleCreate)
		r.Get("/snippets/{id}", snippetHandler.HandleGetByID)
		r.Patch("/snippets/{id}", snippetHandler.HandleUpdate)
		r.Delete("/snippets/{id}", snippetHandler.HandleDelete)
		r.Get("/snippets/{id}/live", liveHandler.HandleLive)
	})
}

// Handler exposes the router, mainly so tests can mount the full middleware
// and route stack on an httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and handles graceful shutdown:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the broker and the database (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()
	defer func() {
		if closer, ok := s.broker.(interface{ Close() error }); ok {
			closer.Close()
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		// No WriteTimeout: /live holds a WebSocket open indefinitely, and
		// http.Server would sever it. Handlers bound their own writes.
		IdleTimeout: 60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Bool("realtime", s.config.RedisAddr != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
