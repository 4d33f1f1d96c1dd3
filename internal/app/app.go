package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trailhq/jobtrail/internal/analytics"
	"github.com/trailhq/jobtrail/internal/api"
	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/config"
	"github.com/trailhq/jobtrail/internal/importer"
	"github.com/trailhq/jobtrail/internal/metrics"
	"github.com/trailhq/jobtrail/internal/transition"
	"github.com/trailhq/jobtrail/internal/workflow"
)

// App is the main application
type App struct {
	config        *config.Config
	store         *application.BoltStore
	workflow      *workflow.Manager
	engine        *transition.Engine
	analytics     *analytics.Service
	importer      *importer.Importer
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Open storage
	db, err := application.OpenDB(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	// Load the workflow, seeding from config on first run
	wf, err := workflow.NewManager(db, seedStages(cfg.Workflow.Stages), logger.With("component", "workflow"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	store, err := application.NewBoltStore(db, wf)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create application store: %w", err)
	}

	engine := transition.New(store, wf, transition.Config{
		RemovalPolicy: transition.RemovalPolicy(cfg.Workflow.RemovePolicy),
		FallbackStage: cfg.Workflow.FallbackStage,
	}, logger.With("component", "transition"))

	classifier := analytics.NewClassifier(cfg.Analytics.InterviewStages, cfg.Analytics.OfferStages)
	svc := analytics.NewService(store, wf, analytics.NewAggregator(classifier))

	imp, err := importer.New(store, engine, wf, db, logger.With("component", "importer"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create importer: %w", err)
	}

	a := &App{
		config:    cfg,
		store:     store,
		workflow:  wf,
		engine:    engine,
		analytics: svc,
		importer:  imp,
		logger:    logger,
	}

	// Setup metrics if enabled
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		a.metricsServer = metrics.NewServer(
			m,
			cfg.Metrics.ListenAddr,
			cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"),
		)
		a.collector = metrics.NewCollector(
			m,
			store,
			cfg.Storage.Path,
			cfg.Metrics.FlushInterval,
			logger.With("component", "metrics_collector"),
		)
	}

	a.apiServer = api.NewServer(store, wf, engine, svc, imp, &cfg.API, logger.With("component", "api"))

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting jobtrail",
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
		"metrics", a.config.Metrics.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server if enabled
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Close storage
	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// seedStages converts configured stages into workflow seed stages.
// Returns nil when the config has none, which makes the manager fall
// back to the default pipeline.
func seedStages(stages []config.StageConfig) []workflow.Stage {
	if len(stages) == 0 {
		return nil
	}

	seed := make([]workflow.Stage, len(stages))
	for i, s := range stages {
		visible := true
		if s.Visible != nil {
			visible = *s.Visible
		}
		seed[i] = workflow.Stage{
			Name:    s.Name,
			Color:   s.Color,
			Visible: visible,
		}
	}
	return seed
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
