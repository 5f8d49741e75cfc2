// Package store selects the snapshot storage backend for the forecaster.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/pkg/storage"
)

// New returns the configured backend. Callers should close the result when it
// implements io.Closer.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using redis snapshot storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		return s, nil

	case "memory", "":
		logger.Info("using in-memory snapshot storage")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
