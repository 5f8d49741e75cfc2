package models

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/pkg/models"
)

// New creates the forecaster for the configured learner.
func New(cfg *config.Config, logger *slog.Logger) (*models.Forecaster, error) {
	learner, err := newLearner(cfg, logger)
	if err != nil {
		return nil, err
	}
	return models.NewForecaster(learner, models.WithWindowSize(cfg.WindowSize)), nil
}

func newLearner(cfg *config.Config, logger *slog.Logger) (models.Learner, error) {
	switch cfg.Learner {
	case "forest", "":
		forest := models.NewForest(models.ForestConfig{
			Trees: cfg.ForestTrees,
			Seed:  cfg.ForestSeed,
		})
		fc := forest.Config()
		logger.Info("initializing forest learner",
			"trees", fc.Trees,
			"seed", fc.Seed,
			"workers", fc.Workers,
			"window", cfg.WindowSize,
		)
		return forest, nil

	case "ar":
		logger.Info("initializing autoregressive learner", "window", cfg.WindowSize)
		return models.NewAR(), nil

	default:
		return nil, fmt.Errorf("invalid learner %q (must be forest or ar)", cfg.Learner)
	}
}
