// Package series fetches historical SST series for reef locations, cleans them
// into gap-free daily readings and keeps the latest snapshot per location.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/HatiCode/reefcast/pkg/adapters"
	"github.com/HatiCode/reefcast/pkg/sst"
	"github.com/HatiCode/reefcast/pkg/storage"
)

var (
	// ErrDataSourceUnavailable is returned when the upstream cannot be reached
	// or returns nothing usable.
	ErrDataSourceUnavailable = errors.New("data source unavailable")
	// ErrInsufficientHistory is returned when the cleaned series is too short
	// to train on.
	ErrInsufficientHistory = errors.New("insufficient history")
)

const (
	DefaultHistoryDays = 365
	DefaultMaxGapDays  = 5
	// DefaultEndLagDays covers the publication delay of the OISST grid.
	DefaultEndLagDays  = 2
	DefaultMaxAge      = time.Hour
	// DefaultMinReadings is window + window*10 for the default 14-day window.
	DefaultMinReadings = 154
)

// Config controls fetching and normalization.
type Config struct {
	// HistoryDays is the length of the requested range.
	HistoryDays int
	// EndLagDays moves the end of the requested range back from today.
	// Upstream grids are published with a delay and reject a range that
	// ends past their last day.
	EndLagDays int
	// MaxGapDays is the longest run of missing days filled by interpolation.
	// Zero disables interpolation: any missing day starts a new run.
	MaxGapDays int
	// MinReadings is the shortest acceptable cleaned series.
	MinReadings int
	// MaxAge is how long a held snapshot is served instead of going
	// upstream. Zero always fetches.
	MaxAge time.Duration
}

// Store fetches series through an adapter and records the latest snapshot per
// location in a storage.Store.
type Store struct {
	adapter adapters.Adapter
	store   storage.Store
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Store. A nil backend uses an in-memory store; a nil logger
// uses slog.Default().
func New(adapter adapters.Adapter, backend storage.Store, cfg Config, logger *slog.Logger) *Store {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultHistoryDays
	}
	cfg.EndLagDays = max(cfg.EndLagDays, 0)
	cfg.MaxGapDays = max(cfg.MaxGapDays, 0)
	cfg.MaxAge = max(cfg.MaxAge, 0)
	if cfg.MinReadings <= 0 {
		cfg.MinReadings = DefaultMinReadings
	}
	if backend == nil {
		backend = storage.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		adapter: adapter,
		store:   backend,
		cfg:     cfg,
		logger:  logger.With("component", "series"),
		now:     time.Now,
	}
}

// SetClock overrides the clock used for the request range and FetchedAt.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Fetch returns the history for loc. A held snapshot younger than MaxAge is
// returned as is; otherwise the history is collected, normalized and stored,
// replacing any previously held one.
func (s *Store) Fetch(ctx context.Context, loc sst.Location) (sst.Snapshot, error) {
	now := s.now().UTC()
	if snap, ok := s.held(ctx, loc.ID, now); ok {
		return snap, nil
	}

	end := sst.Day(now).AddDate(0, 0, -s.cfg.EndLagDays)
	start := end.AddDate(0, 0, -(s.cfg.HistoryDays - 1))

	df, err := s.adapter.Collect(ctx, adapters.Query{
		Lat:   loc.Coordinates.Lat,
		Lon:   loc.Coordinates.Lon,
		Start: start,
		End:   end,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sst.Snapshot{}, ctxErr
		}
		return sst.Snapshot{}, fmt.Errorf("%w: %s: %v", ErrDataSourceUnavailable, s.adapter.Name(), err)
	}
	if df == nil || len(df.Rows) == 0 {
		return sst.Snapshot{}, fmt.Errorf("%w: %s returned no data for %s", ErrDataSourceUnavailable, s.adapter.Name(), loc.ID)
	}

	readings, dropped := Normalize(df.Rows, s.cfg.MaxGapDays)
	if len(readings) == 0 {
		return sst.Snapshot{}, fmt.Errorf("%w: no usable readings for %s", ErrDataSourceUnavailable, loc.ID)
	}
	if dropped > 0 {
		s.logger.Debug("discarded readings before long gap", "location", loc.ID, "dropped", dropped)
	}
	if len(readings) < s.cfg.MinReadings {
		return sst.Snapshot{}, fmt.Errorf("%w: %s has %d readings, need %d", ErrInsufficientHistory, loc.ID, len(readings), s.cfg.MinReadings)
	}

	snap := sst.Snapshot{
		LocationID: loc.ID,
		Readings:   readings,
		FetchedAt:  now,
	}
	if err := s.store.Put(ctx, snap); err != nil {
		// The snapshot is still valid for this caller.
		s.logger.Warn("failed to store snapshot", "location", loc.ID, "error", err)
	}

	return snap, nil
}

// held returns the stored snapshot for id when it is recent enough to skip
// the upstream. Backend errors fall through to a fetch.
func (s *Store) held(ctx context.Context, id string, now time.Time) (sst.Snapshot, bool) {
	if s.cfg.MaxAge <= 0 {
		return sst.Snapshot{}, false
	}
	snap, found, err := s.store.GetLatest(ctx, id)
	if err != nil {
		s.logger.Warn("failed to read held snapshot", "location", id, "error", err)
		return sst.Snapshot{}, false
	}
	if !found || len(snap.Readings) < s.cfg.MinReadings {
		return sst.Snapshot{}, false
	}
	age := now.Sub(snap.FetchedAt)
	if age < 0 || age > s.cfg.MaxAge {
		return sst.Snapshot{}, false
	}
	s.logger.Debug("serving held snapshot", "location", id, "age", age)
	return snap, true
}

// Latest returns the held snapshot for a location, if any.
func (s *Store) Latest(ctx context.Context, locationID string) (sst.Snapshot, bool, error) {
	return s.store.GetLatest(ctx, locationID)
}

// Normalize turns raw rows into a date-ordered, unique, gap-free daily series.
// Dates are truncated to UTC days, non-finite values are dropped and later
// duplicates win. Runs of up to maxGap missing days are linearly
// interpolated; a longer gap discards everything before it. dropped counts
// readings discarded that way.
func Normalize(rows []adapters.Row, maxGap int) (readings []sst.Reading, dropped int) {
	byDay := make(map[time.Time]float64, len(rows))
	for _, r := range rows {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		byDay[sst.Day(r.Date)] = r.Value
	}
	if len(byDay) == 0 {
		return nil, 0
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	// Start of the trailing run whose gaps are all fillable.
	start := 0
	for i := 1; i < len(days); i++ {
		missing := daysBetween(days[i-1], days[i]) - 1
		if missing > maxGap {
			start = i
		}
	}
	dropped = start
	days = days[start:]

	readings = make([]sst.Reading, 0, daysBetween(days[0], days[len(days)-1])+1)
	readings = append(readings, sst.Reading{Date: days[0], Temperature: byDay[days[0]]})
	for i := 1; i < len(days); i++ {
		prev, cur := days[i-1], days[i]
		pv, cv := byDay[prev], byDay[cur]
		span := daysBetween(prev, cur)
		for k := 1; k < span; k++ {
			frac := float64(k) / float64(span)
			readings = append(readings, sst.Reading{
				Date:        prev.AddDate(0, 0, k),
				Temperature: pv + (cv-pv)*frac,
			})
		}
		readings = append(readings, sst.Reading{Date: cur, Temperature: cv})
	}

	return readings, dropped
}

func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
