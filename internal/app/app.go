package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tablexport/internal/config"
	"tablexport/internal/etl"
	mcpserver "tablexport/internal/mcp"
	"tablexport/internal/secret"
	"tablexport/internal/service"
	"tablexport/internal/storage"
)

// Version is reported by the MCP server and the CLI.
var Version = "dev"

// App wires configuration, secrets, state storage, and services together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	secrets  secret.SecretStore
	registry *prometheus.Registry
	metrics  *etl.Metrics

	db      *storage.DB
	exports *service.ExportService
}

// New creates a new App. Nothing is opened until Startup.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{
		cfg:      cfg,
		logger:   logger,
		secrets:  secret.ChainStore{secret.NewEnvStore(), secret.NewKeychainStore()},
		registry: registry,
		metrics:  etl.NewMetrics(registry),
	}
}

// Startup opens the state database when withState is set and builds the
// export service. Commands that never touch stored jobs skip the database.
func (a *App) Startup(withState bool) error {
	var jobs *storage.JobStore
	if withState {
		db, err := storage.New(a.cfg.StatePath)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		a.db = db
		jobs = storage.NewJobStore(db)
	}

	a.exports = service.NewExportService(
		jobs,
		service.NewConnectorFactory(a.cfg, a.secrets),
		&service.LogEmitter{Logger: a.logger},
		a.logger,
	)
	a.exports.Metrics = a.metrics
	return nil
}

// Exports returns the export service. Startup must have been called.
func (a *App) Exports() *service.ExportService {
	return a.exports
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Shutdown stops schedulers, waits for running jobs, and closes the state database.
func (a *App) Shutdown(ctx context.Context) {
	if a.exports != nil {
		a.exports.Stop()
		a.exports.WaitRunning(ctx)
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// MetricsHandler serves the Prometheus registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Serve runs scheduled and file-triggered jobs, plus the metrics endpoint
// when configured, until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	scheduled, watched := a.exports.RestartWatchers(ctx)
	a.logger.Info("scheduler started", "scheduled", scheduled, "watched", watched)

	var srv *http.Server
	errCh := make(chan error, 1)
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.MetricsHandler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	a.logger.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}

// ServeMCP runs the MCP server on stdin/stdout.
func (a *App) ServeMCP() error {
	srv := mcpserver.New(mcpserver.Deps{
		Exports: a.exports,
		Logger:  a.logger,
		Version: Version,
	})
	return srv.ServeStdio()
}
