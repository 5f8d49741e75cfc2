// Package cache holds one computed result per location and decides, from two
// time-to-live values, whether a request can be served as is, needs a fresh
// prediction from the existing model, or needs a full retrain.
//
// Entries are immutable and published with a single atomic store, so readers
// never observe a partially built entry. Concurrent callers for the same
// location share one in-flight computation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HatiCode/reefcast/pkg/models"
)

// State classifies a location's cache entry at a point in time.
type State int

const (
	// Empty means there is no usable entry: nothing was computed yet or the
	// entry predates an explicit invalidation.
	Empty State = iota
	// Fresh entries are served unchanged.
	Fresh
	// StaleResponse entries need new data and predictions from the same model.
	StaleResponse
	// StaleModel entries need a retrain.
	StaleModel
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Fresh:
		return "fresh"
	case StaleResponse:
		return "stale_response"
	case StaleModel:
		return "stale_model"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultResponseTTL    = 5 * time.Minute
	DefaultModelTTL       = 24 * time.Hour
	DefaultComputeTimeout = 2 * time.Minute
)

// Entry is a published result together with the model that produced it.
// Result's own timestamp must equal CreatedAt.
type Entry[R any] struct {
	Result    R
	Model     *models.TrainedModel
	CreatedAt time.Time

	generation uint64
}

// Request describes why a computation runs.
type Request[R any] struct {
	LocationID string
	// State is Empty, StaleResponse or StaleModel.
	State State
	// Prior is the last published entry, possibly invalidated. Computations
	// may reuse Prior.Model only when State is StaleResponse.
	Prior *Entry[R]
}

// ComputeFunc builds a new entry off to the side. It must not mutate Prior.
type ComputeFunc[R any] func(ctx context.Context, req Request[R]) (*Entry[R], error)

// ErrSuperseded is the cause carried by a DegradedError when every
// computation a caller waited on was overtaken by a later invalidation.
var ErrSuperseded = errors.New("result superseded by a later invalidation")

// DegradedError reports that a computation failed and the caller was served
// the last good entry instead.
type DegradedError struct {
	LocationID string
	Err        error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("serving last good result for %s: %v", e.LocationID, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

// IsDegraded reports whether err carries a DegradedError.
func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}

// Config tunes a Cache. Zero values select the defaults.
type Config struct {
	ResponseTTL    time.Duration
	ModelTTL       time.Duration
	ComputeTimeout time.Duration
	// Now is the clock used for state decisions. Defaults to time.Now.
	Now func() time.Time
	// Observe, if set, is called with the state each Resolve call found.
	Observe func(locationID string, s State)
	Logger  *slog.Logger
}

type cell[R any] struct {
	entry      atomic.Pointer[Entry[R]]
	generation atomic.Uint64
}

// Cache is a per-location result cache. It is safe for concurrent use.
type Cache[R any] struct {
	cfg    Config
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	cells map[string]*cell[R]
}

// New returns an empty cache.
func New[R any](cfg Config) *Cache[R] {
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = DefaultResponseTTL
	}
	if cfg.ModelTTL <= 0 {
		cfg.ModelTTL = DefaultModelTTL
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[R]{
		cfg:    cfg,
		logger: logger.With("component", "cache"),
		cells:  make(map[string]*cell[R]),
	}
}

func (c *Cache[R]) cell(id string) *cell[R] {
	c.mu.RLock()
	cl, ok := c.cells[id]
	c.mu.RUnlock()
	if ok {
		return cl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok = c.cells[id]; !ok {
		cl = &cell[R]{}
		c.cells[id] = cl
	}
	return cl
}

func (c *Cache[R]) classify(cl *cell[R], e *Entry[R], now time.Time) State {
	if e == nil || e.Model == nil || e.generation < cl.generation.Load() {
		return Empty
	}
	if now.Sub(e.CreatedAt) <= c.cfg.ResponseTTL {
		return Fresh
	}
	if now.Sub(e.Model.TrainedAt) > c.cfg.ModelTTL {
		return StaleModel
	}
	return StaleResponse
}

// Resolve returns a Fresh entry for id, computing one with compute when
// needed. Concurrent callers for the same id share a single computation,
// which runs detached from ctx so an abandoned caller does not cancel it.
//
// When the computation fails, or ctx ends first, and an earlier entry exists,
// that entry is returned together with a *DegradedError. Otherwise the error
// is returned with a nil entry. An entry whose generation keeps being
// invalidated while it computes is returned with a DegradedError wrapping
// ErrSuperseded.
func (c *Cache[R]) Resolve(ctx context.Context, id string, compute ComputeFunc[R]) (*Entry[R], error) {
	cl := c.cell(id)

	observed := false
	for attempt := 0; ; attempt++ {
		prior := cl.entry.Load()
		state := c.classify(cl, prior, c.cfg.Now())
		if !observed && c.cfg.Observe != nil {
			c.cfg.Observe(id, state)
			observed = true
		}
		if state == Fresh {
			return prior, nil
		}

		ch := c.group.DoChan(id, func() (any, error) {
			return c.run(ctx, id, cl, compute)
		})

		select {
		case <-ctx.Done():
			if prior != nil {
				return prior, &DegradedError{LocationID: id, Err: ctx.Err()}
			}
			return nil, ctx.Err()

		case res := <-ch:
			if res.Err != nil {
				if last := cl.entry.Load(); last != nil {
					return last, &DegradedError{LocationID: id, Err: res.Err}
				}
				return nil, res.Err
			}
			e := res.Val.(*Entry[R])
			// A shared computation may have started before an invalidation.
			if e.generation < cl.generation.Load() {
				if attempt < 2 {
					continue
				}
				return e, &DegradedError{LocationID: id, Err: ErrSuperseded}
			}
			return e, nil
		}
	}
}

// run executes compute for the current state of cl and publishes the result.
func (c *Cache[R]) run(callerCtx context.Context, id string, cl *cell[R], compute ComputeFunc[R]) (*Entry[R], error) {
	gen := cl.generation.Load()
	prior := cl.entry.Load()
	state := c.classify(cl, prior, c.cfg.Now())
	if state == Fresh {
		return prior, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), c.cfg.ComputeTimeout)
	defer cancel()

	start := time.Now()
	e, err := compute(ctx, Request[R]{LocationID: id, State: state, Prior: prior})
	if err != nil {
		c.logger.Warn("compute failed",
			"location", id,
			"state", state.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, err
	}
	if e == nil || e.Model == nil {
		return nil, fmt.Errorf("compute for %s returned no model", id)
	}

	e.generation = gen
	cl.entry.Store(e)

	c.logger.Debug("entry published",
		"location", id,
		"state", state.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return e, nil
}

// Invalidate marks the current entry of id as unusable for serving fresh
// results. It is kept only as a fallback if the next computation fails.
func (c *Cache[R]) Invalidate(id string) {
	c.cell(id).generation.Add(1)
}

// Peek returns the published entry for id, if any, and its current state.
// It never computes.
func (c *Cache[R]) Peek(id string) (*Entry[R], State) {
	c.mu.RLock()
	cl, ok := c.cells[id]
	c.mu.RUnlock()
	if !ok {
		return nil, Empty
	}
	e := cl.entry.Load()
	return e, c.classify(cl, e, c.cfg.Now())
}

// State returns the current state of id.
func (c *Cache[R]) State(id string) State {
	_, s := c.Peek(id)
	return s
}

// Len returns the number of locations with a published entry.
func (c *Cache[R]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, cl := range c.cells {
		if cl.entry.Load() != nil {
			n++
		}
	}
	return n
}

// ResponseTTL returns the configured response lifetime.
func (c *Cache[R]) ResponseTTL() time.Duration { return c.cfg.ResponseTTL }
