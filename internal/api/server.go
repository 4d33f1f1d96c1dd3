package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trailhq/jobtrail/internal/analytics"
	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/config"
	"github.com/trailhq/jobtrail/internal/importer"
	"github.com/trailhq/jobtrail/internal/metrics"
	"github.com/trailhq/jobtrail/internal/transition"
	"github.com/trailhq/jobtrail/internal/workflow"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	apps       application.Store
	workflow   *workflow.Manager
	engine     *transition.Engine
	analytics  *analytics.Service
	importer   *importer.Importer
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
	now        func() time.Time
}

// NewServer creates a new API server
func NewServer(
	apps application.Store,
	wf *workflow.Manager,
	engine *transition.Engine,
	svc *analytics.Service,
	imp *importer.Importer,
	cfg *config.APIConfig,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		apps:      apps,
		workflow:  wf,
		engine:    engine,
		analytics: svc,
		importer:  imp,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/applications", func(r chi.Router) {
			r.Get("/", s.handleListApplications)
			r.Post("/", s.handleCreateApplication)
			r.Get("/{id}", s.handleGetApplication)
			r.Patch("/{id}", s.handleUpdateApplication)
			r.Delete("/{id}", s.handleDeleteApplication)
			r.Post("/{id}/transition", s.handleTransition)
			r.Get("/{id}/logs", s.handleLogs)
		})

		r.Route("/workflow", func(r chi.Router) {
			r.Get("/", s.handleGetWorkflow)
			r.Post("/stages", s.handleAddStage)
			r.Patch("/stages/{id}", s.handleRenameStage)
			r.Delete("/stages/{id}", s.handleRemoveStage)
			r.Put("/stages/{id}/order", s.handleReorderStage)
			r.Put("/stages/{id}/visibility", s.handleStageVisibility)
		})

		r.Get("/analytics", s.handleAnalytics)
		r.Post("/emails/process", s.handleProcessEmails)
	})
}

// Router exposes the configured handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
