// Package daemon runs the continuous collection loop: collect on an
// interval, serve Prometheus metrics and health, shut down cleanly on
// SIGTERM/SIGINT.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yairfalse/kerava/handler"
	"github.com/yairfalse/kerava/telemetry"
)

// Config holds daemon settings.
type Config struct {
	Interval    time.Duration
	MetricsAddr string
}

// Daemon manages the continuous collection loop.
type Daemon struct {
	handler     *handler.Handler
	provider    *telemetry.Provider
	logger      zerolog.Logger
	interval    time.Duration
	metricsAddr string
	startTime   time.Time
	runCount    atomic.Int64
}

// New creates a daemon around an action handler.
func New(cfg Config, h *handler.Handler, provider *telemetry.Provider, logger zerolog.Logger) *Daemon {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	addr := cfg.MetricsAddr
	if addr == "" {
		addr = ":2112"
	}

	return &Daemon{
		handler:     h,
		provider:    provider,
		logger:      logger,
		interval:    interval,
		metricsAddr: addr,
		startTime:   time.Now(),
	}
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Runs          int64  `json:"runs"`
}

// Health reports daemon liveness.
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		Runs:          d.runCount.Load(),
	}
}

// RunCount returns how many collection passes have finished.
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}

// Run starts the actor group and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	var group run.Group

	// Signal handling.
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	// Metrics and health server.
	server := &http.Server{
		Addr:              d.metricsAddr,
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Add(func() error {
		d.logger.Info().Str("addr", d.metricsAddr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	// Collection loop. One pass at startup, then on the interval.
	loopCtx, cancelLoop := context.WithCancel(ctx)
	group.Add(func() error {
		d.collect(loopCtx)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return loopCtx.Err()
			case <-ticker.C:
				d.collect(loopCtx)
			}
		}
	}, func(error) {
		cancelLoop()
	})

	err := group.Run()

	// Normal shutdown paths surface as signal or context errors.
	var signalErr run.SignalError
	if errors.As(err, &signalErr) || errors.Is(err, context.Canceled) {
		d.logger.Info().Msg("daemon stopped")
		return nil
	}
	return err
}

// collect runs one collection pass. Failures are logged, never fatal:
// the next tick tries again.
func (d *Daemon) collect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	resp, err := d.handler.Handle(ctx, handler.Request{Action: handler.ActionCollect})
	if err != nil {
		d.logger.Error().Err(err).Msg("collection pass failed")
		return
	}

	d.runCount.Add(1)
	d.logger.Info().
		Str("status", resp.Status).
		Int("records", resp.Report.RecordsWritten).
		Int("failed_tasks", resp.Report.TasksFailed).
		Msg("collection pass finished")
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.provider.Registry, promhttp.HandlerOpts{}))

	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.Health()); err != nil {
			http.Error(w, fmt.Sprintf("encode health: %v", err), http.StatusInternalServerError)
		}
	}
	mux.HandleFunc("/health", health)
	mux.HandleFunc("/-/healthy", health)
	mux.HandleFunc("/-/ready", health)

	return mux
}
