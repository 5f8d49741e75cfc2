package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/HatiCode/reefcast/pkg/prediction"
)

// Analyzer resolves every location.
type Analyzer interface {
	GetAnalysis(ctx context.Context) (*prediction.AnalysisResponse, error)
}

// Warmer keeps every location's cache entry warm so API requests rarely wait
// on a fetch and train. Failures are logged per location and never stop the
// loop.
type Warmer struct {
	svc     Analyzer
	timeout time.Duration
	logger  *slog.Logger
}

// NewWarmer creates a Warmer. timeout bounds each tick.
func NewWarmer(svc Analyzer, timeout time.Duration, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Warmer{svc: svc, timeout: timeout, logger: logger.With("component", "warmer")}
}

// Run executes one tick immediately and then one per interval. A zero
// interval runs the initial tick only. Blocks until ctx is canceled.
func (w *Warmer) Run(ctx context.Context, interval time.Duration) error {
	w.logger.Info("starting warm loop", "interval", interval)

	if err := w.Tick(ctx); err != nil {
		w.logger.Error("initial warm tick failed", "error", err)
	}

	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("warm loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("warm tick failed", "error", err)
			}
		}
	}
}

// Tick resolves every location once. It returns an error only when no
// location produced a result.
func (w *Warmer) Tick(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.svc.GetAnalysis(ctx)
	if err != nil {
		return err
	}

	for id, reason := range resp.Degraded {
		w.logger.Warn("location degraded", "location", id, "reason", reason)
	}
	w.logger.Info("warm tick complete",
		"locations", len(resp.Locations),
		"degraded", len(resp.Degraded),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
