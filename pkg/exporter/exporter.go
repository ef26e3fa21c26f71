package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ZCK12/factorio-prometheus-exporter/internal/app/config"
	"github.com/ZCK12/factorio-prometheus-exporter/internal/collector"
	"github.com/ZCK12/factorio-prometheus-exporter/internal/logger"
)

// Option customizes the dependencies used by Exporter.
type Option func(*overrides)

type overrides struct {
	collector prometheus.Collector
	logger    *zap.Logger
}

// WithCollector replaces the default snapshot collector, for embedding the
// exporter around a custom metric source.
func WithCollector(c prometheus.Collector) Option {
	return func(o *overrides) {
		o.collector = c
	}
}

// WithLogger replaces the logger built from the config's logging level.
func WithLogger(l *zap.Logger) Option {
	return func(o *overrides) {
		o.logger = l
	}
}

// Exporter owns the metrics registry and the HTTP server that exposes it.
// The registry is private and carries no process/runtime self-collectors, so
// the exposed surface is exactly the snapshot translation.
type Exporter struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	srv      *http.Server
}

// New wires up the default snapshot collector and HTTP handler. Options can
// override the collector and logger.
func New(cfg *config.Config, opts ...Option) (*Exporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var ov overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	log := ov.logger
	if log == nil {
		var err error
		log, err = logger.New(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	col := ov.collector
	if col == nil {
		col = collector.New(cfg.Snapshot.Path, log)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(col); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}

	e := &Exporter{
		cfg:      cfg,
		log:      log,
		registry: registry,
	}
	e.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: e.Handler(),
	}
	return e, nil
}

// Handler returns the HTTP handler serving /metrics and /healthz. A scrape
// against an unreadable snapshot answers 500, leaving the server running.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(e.log),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start launches the HTTP server goroutine and returns immediately.
// Call Run to block on a context instead.
func (e *Exporter) Start() error {
	if e == nil {
		return fmt.Errorf("exporter is nil")
	}
	e.log.Info("serving metrics",
		zap.String("addr", e.srv.Addr),
		zap.String("snapshot", e.cfg.Snapshot.Path))
	go func() {
		if err := e.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server exited", zap.Error(err))
		}
	}()
	return nil
}

// Run starts the exporter and blocks until the provided context is cancelled,
// then attempts a graceful shutdown.
func (e *Exporter) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and flushes the logger.
func (e *Exporter) Shutdown(ctx context.Context) error {
	var errs []error

	if e.srv != nil {
		if err := e.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	// Sync can fail on stdout on some platforms; that is harmless.
	_ = e.log.Sync()

	return errors.Join(errs...)
}
