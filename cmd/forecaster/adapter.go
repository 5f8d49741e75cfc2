package main

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/pkg/adapters"
)

// buildAdapter creates the upstream SST adapter. ERDDAP settings come from
// dedicated flags; the generic HTTP adapter is configured through ADAPTER_*
// variables.
func buildAdapter(cfg *config.Config, logger *slog.Logger) (adapters.Adapter, error) {
	settings := make(map[string]string, len(cfg.AdapterConfig)+2)
	maps.Copy(settings, cfg.AdapterConfig)

	switch cfg.Adapter {
	case "erddap", "":
		settings["url"] = cfg.ERDDAPURL
		settings["dataset"] = cfg.ERDDAPDataset
		logger.Info("using ERDDAP adapter", "url", cfg.ERDDAPURL, "dataset", cfg.ERDDAPDataset)
		return adapters.New("erddap", settings, cfg.AdapterTimeout)

	case "http":
		a, err := adapters.New("http", settings, cfg.AdapterTimeout)
		if err != nil {
			return nil, fmt.Errorf("http adapter: %w", err)
		}
		logger.Info("using HTTP adapter", "url", settings["url"])
		return a, nil

	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}
