package main

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/pkg/adapters"
	"github.com/HatiCode/reefcast/pkg/series"
	"github.com/HatiCode/reefcast/pkg/storage"
)

// buildSeries creates the series store. minHistory is the shortest series the
// model trains on; a requested range shorter than that could never succeed.
func buildSeries(cfg *config.Config, adapter adapters.Adapter, backend storage.Store, minHistory int, logger *slog.Logger) (*series.Store, error) {
	if cfg.HistoryDays < minHistory {
		return nil, fmt.Errorf("history-days %d is below the %d days the model needs", cfg.HistoryDays, minHistory)
	}
	logger.Info("series settings",
		"history_days", cfg.HistoryDays,
		"end_lag_days", cfg.EndLagDays,
		"max_gap_days", cfg.MaxGapDays,
		"max_age", cfg.SeriesMaxAge,
	)
	return series.New(adapter, backend, series.Config{
		HistoryDays: cfg.HistoryDays,
		EndLagDays:  cfg.EndLagDays,
		MaxGapDays:  cfg.MaxGapDays,
		MinReadings: minHistory,
		MaxAge:      cfg.SeriesMaxAge,
	}, logger), nil
}
