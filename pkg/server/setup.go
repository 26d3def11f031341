package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/nicktill/tinynotes/pkg/config"
	"github.com/nicktill/tinynotes/pkg/events"
	"github.com/nicktill/tinynotes/pkg/notes"
	"github.com/nicktill/tinynotes/pkg/server/monitor"
	"github.com/nicktill/tinynotes/pkg/storage"
	"github.com/nicktill/tinynotes/pkg/storage/badger"
	"github.com/nicktill/tinynotes/pkg/storage/memory"
	"github.com/nicktill/tinynotes/pkg/storage/sqlite"
	"github.com/nicktill/tinynotes/pkg/telemetry"
)

// App is the fully wired service. Build it with New, serve it with Run.
type App struct {
	cfg    config.Config
	logger zerolog.Logger

	store       storage.Store
	metrics     *telemetry.Provider
	hub         *events.Hub
	maintenance *Maintenance

	exportMonitor      *monitor.JobMonitor
	maintenanceMonitor *monitor.JobMonitor

	router *mux.Router

	closeOnce sync.Once
	closeErr  error
}

// New is the single initialization path: storage, metrics, event hub,
// handlers, routes and maintenance, in that order. The Metrics Provider
// exists before any route is registered.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, telemetryOpts ...telemetry.Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		cfg:                cfg,
		logger:             logger,
		exportMonitor:      monitor.NewJobMonitor(0),
		maintenanceMonitor: monitor.NewJobMonitor(3 * config.MaintenanceInterval),
	}

	store, err := InitializeStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.store = store

	opts := append([]telemetry.Option{
		telemetry.WithLogger(logger.With().Str("component", "telemetry").Logger()),
		telemetry.WithExportHook(app.exportMonitor.Record),
		telemetry.WithRuntimeMetrics(),
	}, telemetryOpts...)
	app.metrics, err = telemetry.New(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Interval:    cfg.Telemetry.ExportInterval,
		Timeout:     config.ExportTimeout,
		ServiceName: cfg.Telemetry.ServiceName,
	}, opts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	logger.Info().
		Str("endpoint", cfg.Telemetry.Endpoint).
		Bool("insecure", cfg.Telemetry.Insecure).
		Dur("interval", cfg.Telemetry.ExportInterval).
		Msg("Metrics provider initialized")

	app.hub = events.NewHub(logger.With().Str("component", "events").Logger())

	if target, ok := store.(storage.Maintainer); ok {
		app.maintenance, err = NewMaintenance(target, app.maintenanceMonitor, logger, config.MaintenanceInterval)
		if err != nil {
			_ = app.metrics.Shutdown(ctx)
			_ = store.Close()
			return nil, err
		}
	}

	noteHandler := notes.NewHandler(store, app.metrics, app.hub, logger)
	app.router = mux.NewRouter()
	SetupRoutes(app.router, noteHandler, app, logger)

	return app, nil
}

// InitializeStorage opens the configured backend.
func InitializeStorage(cfg config.Config, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("Using in-memory storage; notes are lost on restart")
		return memory.New(), nil

	case config.BackendBadger:
		dir := filepath.Join(cfg.DataDir, "badger")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		store, err := badger.New(badger.Config{Path: dir, MaxMemoryMB: cfg.MaxMemoryMB})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", dir).Int64("max_memory_mb", cfg.MaxMemoryMB).Msg("BadgerDB storage initialized")
		return store, nil

	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		path := filepath.Join(cfg.DataDir, sqlite.FileName)
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", path).Msg("SQLite storage initialized")
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Metrics returns the Metrics Provider.
func (a *App) Metrics() *telemetry.Provider {
	return a.metrics
}

// Events returns the note change event hub.
func (a *App) Events() *events.Hub {
	return a.hub
}

// Run listens on the configured port and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+a.cfg.Port)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled, then shuts everything down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(hubCtx)
	}()

	if a.maintenance != nil {
		a.maintenance.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", ln.Addr().String()).Msg("Server ready to accept requests")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("serve: %w", err)
			a.logger.Error().Err(err).Msg("Server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Server shutdown warning")
	}

	stopHub()
	wg.Wait()

	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	a.logger.Info().Msg("Server exited cleanly")
	return runErr
}

// Close stops maintenance, flushes metrics and closes the store. Safe to call twice.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.maintenance != nil {
			if err := a.maintenance.Stop(); err != nil {
				a.logger.Warn().Err(err).Msg("Maintenance scheduler shutdown warning")
			}
		}

		flushCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownFlushTimeout)
		defer cancel()
		start := time.Now()
		if err := a.metrics.Shutdown(flushCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Metrics flush warning")
		} else {
			a.logger.Info().Dur("took", time.Since(start)).Msg("Metrics flushed")
		}

		if err := a.store.Close(); err != nil {
			a.closeErr = fmt.Errorf("close storage: %w", err)
		}
	})
	return a.closeErr
}
