// Package adapters provides reefcast data source connectors that retrieve
// daily sea-surface-temperature series for a coordinate from an upstream
// service and normalize them into a common DataFrame structure.
//
// Each adapter implements the Adapter interface and can be plugged into the
// series store. Available adapters include:
//   - HTTPAdapter: generic adapter for any REST API with JSON responses
//   - ERDDAP preset: NOAA OISST v2.1 via an ERDDAP griddap JSON endpoint
//
// Adapters are intentionally lightweight. They focus on pulling raw data and
// shaping it into [DataFrame] objects, leaving cleaning, validation and
// forecasting to the upper layers.
package adapters

import (
	"context"
	"time"
)

// Query identifies the coordinate and inclusive date range to collect.
type Query struct {
	Lat   float64
	Lon   float64
	Start time.Time
	End   time.Time
}

// Row is a single dated observation.
type Row struct {
	Date  time.Time
	Value float64
}

// DataFrame is the series returned by adapters, sorted by Date ascending.
// It may contain gaps or duplicate dates; callers normalize.
type DataFrame struct {
	Rows []Row
}

// Adapter is the interface that all reefcast adapters must implement.
//
// The Collect() call is synchronous and should respect context cancellation
// and deadlines.
type Adapter interface {
	// Collect fetches the temperature series for q and returns it as a DataFrame.
	// It must handle transient errors gracefully and never panic.
	Collect(ctx context.Context, q Query) (*DataFrame, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "erddap", "http".
	Name() string
}
