// Package prediction serves per-location SST analyses for a fixed set of reef
// locations. Each location's result is resolved through a shared cache, so
// concurrent requests never trigger more than one fetch and train per
// location, and a failing location degrades to its last good result instead of
// failing the whole request.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/reefcast/pkg/cache"
	"github.com/HatiCode/reefcast/pkg/models"
	"github.com/HatiCode/reefcast/pkg/risk"
	"github.com/HatiCode/reefcast/pkg/series"
	"github.com/HatiCode/reefcast/pkg/sst"
)

var (
	// ErrUnknownLocation is returned for a location id that is not configured.
	ErrUnknownLocation = errors.New("unknown location")
	// ErrAllLocationsFailed is returned when no location produced a result
	// and none had one cached.
	ErrAllLocationsFailed = errors.New("all locations failed")
)

const (
	DefaultPastDays           = 7
	DefaultFutureDays         = 7
	DefaultBleachingThreshold = 29.0
)

// SeriesSource fetches the current historical series for a location.
type SeriesSource interface {
	Fetch(ctx context.Context, loc sst.Location) (sst.Snapshot, error)
}

// Forecaster trains per-location models and predicts with them.
type Forecaster interface {
	Train(ctx context.Context, series []sst.Reading) (*models.TrainedModel, error)
	Predict(model *models.TrainedModel, series []sst.Reading, horizonDays int) ([]sst.Reading, error)
	LearnerName() string
}

// Recorder receives operational measurements. All methods must be safe for
// concurrent use.
type Recorder interface {
	RecordFetch(location string, seconds float64)
	RecordTrain(location string, seconds float64)
	RecordPredict(location string, seconds float64)
	RecordCacheState(location, state string)
	SetRisk(location string, currentTemp, dhw float64, level string)
	RecordError(component, reason string)
}

// Config configures a Service. Zero durations and counts select defaults.
type Config struct {
	Locations          []sst.Location
	ResponseTTL        time.Duration
	ModelTTL           time.Duration
	ComputeTimeout     time.Duration
	PastDays           int
	FutureDays         int
	BleachingThreshold float64
	// Now is the clock for cache decisions and result timestamps.
	Now func() time.Time
}

// Service is the multi-location prediction service. It is safe for
// concurrent use.
type Service struct {
	cfg        Config
	locations  []sst.Location
	byID       map[string]sst.Location
	series     SeriesSource
	forecaster Forecaster
	cache      *cache.Cache[*AnalysisResult]
	logger     *slog.Logger
	metrics    Recorder

	jobs     sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New validates cfg and returns a Service. logger and metrics may be nil.
func New(cfg Config, src SeriesSource, forecaster Forecaster, logger *slog.Logger, metrics Recorder) (*Service, error) {
	if src == nil || forecaster == nil {
		return nil, errors.New("prediction: series source and forecaster are required")
	}
	if len(cfg.Locations) == 0 {
		return nil, errors.New("prediction: at least one location is required")
	}
	if cfg.PastDays <= 0 {
		cfg.PastDays = DefaultPastDays
	}
	if cfg.FutureDays <= 0 {
		cfg.FutureDays = DefaultFutureDays
	}
	if cfg.BleachingThreshold == 0 {
		cfg.BleachingThreshold = DefaultBleachingThreshold
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = cache.DefaultResponseTTL
	}
	if cfg.ModelTTL <= 0 {
		cfg.ModelTTL = cache.DefaultModelTTL
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = cache.DefaultComputeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]sst.Location, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		if !sst.ValidID(loc.ID) {
			return nil, fmt.Errorf("prediction: invalid location id %q", loc.ID)
		}
		if _, dup := byID[loc.ID]; dup {
			return nil, fmt.Errorf("prediction: duplicate location id %q", loc.ID)
		}
		byID[loc.ID] = loc
	}

	s := &Service{
		cfg:        cfg,
		locations:  append([]sst.Location(nil), cfg.Locations...),
		byID:       byID,
		series:     src,
		forecaster: forecaster,
		logger:     logger.With("component", "prediction"),
		metrics:    metrics,
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	s.cache = cache.New[*AnalysisResult](cache.Config{
		ResponseTTL:    cfg.ResponseTTL,
		ModelTTL:       cfg.ModelTTL,
		ComputeTimeout: cfg.ComputeTimeout,
		Now:            cfg.Now,
		Logger:         logger,
		Observe: func(id string, st cache.State) {
			if s.metrics != nil {
				s.metrics.RecordCacheState(id, st.String())
			}
		},
	})

	return s, nil
}

// IsDegraded reports whether err signals that a last good result was served
// in place of a fresh one.
func IsDegraded(err error) bool {
	return cache.IsDegraded(err)
}

// ListLocations returns the configured locations.
func (s *Service) ListLocations() []sst.Location {
	return append([]sst.Location(nil), s.locations...)
}

// ResponseTTL returns how long a result is served without recomputation.
func (s *Service) ResponseTTL() time.Duration { return s.cfg.ResponseTTL }

// IsStale reports whether r is older than the response TTL.
func (s *Service) IsStale(r *AnalysisResult) bool {
	return r != nil && s.cfg.Now().Sub(r.LastUpdated) > s.cfg.ResponseTTL
}

func (s *Service) location(id string) (sst.Location, error) {
	loc, ok := s.byID[id]
	if !ok {
		return sst.Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	return loc, nil
}

// GetAnalysisForLocation resolves one location. On a degraded outcome both
// the last good result and an error satisfying IsDegraded are returned.
func (s *Service) GetAnalysisForLocation(ctx context.Context, id string) (*AnalysisResult, error) {
	loc, err := s.location(id)
	if err != nil {
		return nil, err
	}
	e, err := s.cache.Resolve(ctx, loc.ID, s.computeFor(loc))
	if e == nil {
		return nil, err
	}
	return e.Result, err
}

// GetAnalysis resolves every location concurrently. Failures are reported
// per location in Degraded; the call itself fails only when no location has
// any result.
func (s *Service) GetAnalysis(ctx context.Context) (*AnalysisResponse, error) {
	resp := &AnalysisResponse{
		Locations: make(map[string]*AnalysisResult, len(s.locations)),
		Metadata: Metadata{
			TotalLocations:     len(s.locations),
			PastDays:           s.cfg.PastDays,
			FutureDays:         s.cfg.FutureDays,
			BleachingThreshold: s.cfg.BleachingThreshold,
		},
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, loc := range s.locations {
		g.Go(func() error {
			result, err := s.GetAnalysisForLocation(ctx, loc.ID)

			mu.Lock()
			defer mu.Unlock()
			if result != nil {
				resp.Locations[loc.ID] = result
			}
			if err != nil {
				if resp.Degraded == nil {
					resp.Degraded = make(map[string]string)
				}
				resp.Degraded[loc.ID] = err.Error()
				errs = append(errs, err)
				s.logger.Warn("location degraded", "location", loc.ID, "cached", result != nil, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	resp.GeneratedAt = s.cfg.Now()

	if len(resp.Locations) == 0 {
		return resp, fmt.Errorf("%w: %w", ErrAllLocationsFailed, errors.Join(errs...))
	}
	return resp, nil
}

// GetCurrent returns the present-day view for every location.
func (s *Service) GetCurrent(ctx context.Context) (*CurrentResponse, error) {
	analysis, err := s.GetAnalysis(ctx)
	if analysis == nil {
		return nil, err
	}
	resp := &CurrentResponse{
		Locations:   make(map[string]*CurrentData, len(analysis.Locations)),
		Degraded:    analysis.Degraded,
		GeneratedAt: analysis.GeneratedAt,
	}
	for id, r := range analysis.Locations {
		resp.Locations[id] = currentFrom(r)
	}
	return resp, err
}

// GetCurrentForLocation returns the present-day view for one location.
func (s *Service) GetCurrentForLocation(ctx context.Context, id string) (*CurrentData, error) {
	r, err := s.GetAnalysisForLocation(ctx, id)
	if r == nil {
		return nil, err
	}
	return currentFrom(r), err
}

func currentFrom(r *AnalysisResult) *CurrentData {
	return &CurrentData{
		LocationID:   r.LocationID,
		LocationName: r.LocationName,
		CurrentTemp:  r.CurrentTemp,
		DHW:          r.CurrentDHW,
		RiskLevel:    r.RiskLevel,
		Coordinates:  r.Coordinates,
		LastUpdated:  r.LastUpdated,
	}
}

// Retrain discards the current model of a location and blocks until a new one
// is trained. If training fails the previous result stays available as a
// degraded fallback and the error is returned.
func (s *Service) Retrain(ctx context.Context, id string) error {
	loc, err := s.location(id)
	if err != nil {
		return err
	}

	s.cache.Invalidate(loc.ID)
	_, err = s.cache.Resolve(ctx, loc.ID, s.computeFor(loc))
	if err != nil {
		return fmt.Errorf("retrain %s: %w", loc.ID, err)
	}
	s.logger.Info("model retrained", "location", loc.ID)
	return nil
}

// RetrainAll retrains every location concurrently.
func (s *Service) RetrainAll(ctx context.Context) RetrainReport {
	start := time.Now()

	var (
		mu     sync.Mutex
		report RetrainReport
		g      errgroup.Group
	)
	for _, loc := range s.locations {
		g.Go(func() error {
			err := s.Retrain(ctx, loc.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if report.Failed == nil {
					report.Failed = make(map[string]string)
				}
				report.Failed[loc.ID] = err.Error()
				return nil
			}
			report.Retrained = append(report.Retrained, loc.ID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Retrained)
	report.Duration = time.Since(start)
	return report
}

// TriggerRetrain starts a retrain of one location in the background and
// returns immediately.
func (s *Service) TriggerRetrain(id string) (RetrainJob, error) {
	loc, err := s.location(id)
	if err != nil {
		return RetrainJob{}, err
	}

	job := RetrainJob{
		Status:     "accepted",
		JobID:      uuid.NewString(),
		LocationID: loc.ID,
		AcceptedAt: s.cfg.Now(),
	}
	s.background(job.JobID, func(ctx context.Context) {
		if err := s.Retrain(ctx, loc.ID); err != nil {
			s.logger.Error("background retrain failed", "job_id", job.JobID, "location", loc.ID, "error", err)
			return
		}
		s.logger.Info("background retrain complete", "job_id", job.JobID, "location", loc.ID)
	})
	return job, nil
}

// TriggerRetrainAll starts a retrain of every location in the background and
// returns immediately.
func (s *Service) TriggerRetrainAll() RetrainJob {
	ids := make([]string, len(s.locations))
	for i, loc := range s.locations {
		ids[i] = loc.ID
	}

	job := RetrainJob{
		Status:             "accepted",
		JobID:              uuid.NewString(),
		LocationsProcessed: ids,
		AcceptedAt:         s.cfg.Now(),
	}
	s.background(job.JobID, func(ctx context.Context) {
		report := s.RetrainAll(ctx)
		s.logger.Info("background retrain complete",
			"job_id", job.JobID,
			"retrained", len(report.Retrained),
			"failed", len(report.Failed),
			"duration_ms", report.Duration.Milliseconds(),
		)
	})
	return job
}

func (s *Service) background(jobID string, fn func(ctx context.Context)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.logger.Debug("background job started", "job_id", jobID)
		fn(s.bgCtx)
	}()
}

// Wait blocks until all background jobs have finished.
func (s *Service) Wait() {
	s.jobs.Wait()
}

// Close stops waiting on background jobs and blocks until they return.
// Computations already running finish and populate the cache.
func (s *Service) Close() {
	s.bgCancel()
	s.jobs.Wait()
}

// Status reports the cache state of every location without computing.
func (s *Service) Status() Status {
	st := Status{
		Locations:   make([]LocationStatus, 0, len(s.locations)),
		ResponseTTL: s.cfg.ResponseTTL.String(),
		ModelTTL:    s.cfg.ModelTTL.String(),
		Learner:     s.forecaster.LearnerName(),
		GeneratedAt: s.cfg.Now(),
	}
	for _, loc := range s.locations {
		e, state := s.cache.Peek(loc.ID)
		ls := LocationStatus{LocationID: loc.ID, State: state.String()}
		if e != nil {
			updated := e.CreatedAt
			ls.LastUpdated = &updated
			if e.Model != nil {
				trained := e.Model.TrainedAt
				ls.ModelTrainedAt = &trained
				ls.Learner = e.Model.Learner
				ls.Samples = e.Model.Samples
			}
			st.CachedLocations++
		}
		st.Locations = append(st.Locations, ls)
	}
	return st
}

// Ready reports whether at least one location has a cached result.
func (s *Service) Ready() bool {
	return s.cache.Len() > 0
}

func (s *Service) computeFor(loc sst.Location) cache.ComputeFunc[*AnalysisResult] {
	return func(ctx context.Context, req cache.Request[*AnalysisResult]) (*cache.Entry[*AnalysisResult], error) {
		start := time.Now()
		snap, err := s.series.Fetch(ctx, loc)
		if err != nil {
			s.recordError("series", err)
			return nil, fmt.Errorf("fetch %s: %w", loc.ID, err)
		}
		if s.metrics != nil {
			s.metrics.RecordFetch(loc.ID, time.Since(start).Seconds())
		}

		var model *models.TrainedModel
		if req.State == cache.StaleResponse && req.Prior != nil && req.Prior.Model != nil {
			model = req.Prior.Model
		} else {
			start = time.Now()
			model, err = s.forecaster.Train(ctx, snap.Readings)
			if err != nil {
				s.recordError("model", err)
				return nil, fmt.Errorf("train %s: %w", loc.ID, err)
			}
			model.LocationID = loc.ID
			trainDuration := time.Since(start)
			if s.metrics != nil {
				s.metrics.RecordTrain(loc.ID, trainDuration.Seconds())
			}
			s.logger.Info("model trained",
				"location", loc.ID,
				"learner", model.Learner,
				"samples", model.Samples,
				"reason", req.State.String(),
				"duration_ms", trainDuration.Milliseconds(),
			)
		}

		start = time.Now()
		future, err := s.forecaster.Predict(model, snap.Readings, s.cfg.FutureDays)
		if err != nil {
			s.recordError("model", err)
			return nil, fmt.Errorf("predict %s: %w", loc.ID, err)
		}
		if s.metrics != nil {
			s.metrics.RecordPredict(loc.ID, time.Since(start).Seconds())
		}

		now := s.cfg.Now()
		result := s.buildResult(loc, snap.Readings, future, now)
		if s.metrics != nil {
			s.metrics.SetRisk(loc.ID, result.CurrentTemp, result.CurrentDHW, string(result.RiskLevel))
		}

		return &cache.Entry[*AnalysisResult]{
			Result:    result,
			Model:     model,
			CreatedAt: now,
		}, nil
	}
}

func (s *Service) buildResult(loc sst.Location, history, future []sst.Reading, now time.Time) *AnalysisResult {
	assessment := risk.Assess(sst.Temperatures(history), sst.Temperatures(future), s.cfg.BleachingThreshold)

	past := history
	if len(past) > s.cfg.PastDays {
		past = past[len(past)-s.cfg.PastDays:]
	}

	return &AnalysisResult{
		LocationID:         loc.ID,
		LocationName:       loc.Name,
		Coordinates:        loc.Coordinates,
		PastData:           rounded(past),
		FutureData:         rounded(future),
		BleachingThreshold: s.cfg.BleachingThreshold,
		CurrentTemp:        risk.Round2(assessment.CurrentTemp),
		CurrentDHW:         risk.Round2(assessment.DHW),
		ProjectedDHW:       risk.Round2(assessment.ProjectedDHW),
		Anomaly:            risk.Round2(assessment.Anomaly),
		RiskLevel:          assessment.Level,
		Trend:              assessment.Trend,
		LastUpdated:        now,
	}
}

func rounded(readings []sst.Reading) []sst.Reading {
	out := make([]sst.Reading, len(readings))
	for i, r := range readings {
		r.Temperature = risk.Round2(r.Temperature)
		out[i] = r
	}
	return out
}

func (s *Service) recordError(component string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordError(component, errorReason(err))
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, series.ErrDataSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, series.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, models.ErrTrainingFailed):
		return "training_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
