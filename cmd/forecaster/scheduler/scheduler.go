// Package scheduler runs the daily retrain of every location and keeps a short
// history of runs for the status endpoint.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/HatiCode/reefcast/pkg/prediction"
)

const (
	DefaultHistory = 20
	DefaultTimeout = 30 * time.Minute
)

// Retrainer retrains every location and blocks until done.
type Retrainer interface {
	RetrainAll(ctx context.Context) prediction.RetrainReport
}

// Recorder receives the outcome of each run. It may be nil.
type Recorder interface {
	RecordScheduledRetrain(seconds float64, failed int)
}

// Run is the outcome of one scheduled retrain.
type Run struct {
	JobID      string            `json:"jobId"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Retrained  []string          `json:"retrained"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Config controls when retrains run. Hour and Minute are UTC.
type Config struct {
	Hour    int
	Minute  int
	History int
	Timeout time.Duration
}

// Scheduler triggers RetrainAll once a day. At most one run is in flight.
type Scheduler struct {
	scheduler *gocron.Scheduler
	retrainer Retrainer
	cfg       Config
	logger    *slog.Logger
	metrics   Recorder

	mu      sync.Mutex
	job     *gocron.Job
	history []Run
}

// New creates a stopped Scheduler.
func New(cfg Config, retrainer Retrainer, logger *slog.Logger, metrics Recorder) *Scheduler {
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		retrainer: retrainer,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
		metrics:   metrics,
	}
}

// Expression returns the cron expression of the daily run.
func (s *Scheduler) Expression() string {
	return fmt.Sprintf("%d %d * * *", s.cfg.Minute, s.cfg.Hour)
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	job, err := s.scheduler.Cron(s.Expression()).SingletonMode().Do(func() {
		s.RunNow(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule retrain %q: %w", s.Expression(), err)
	}

	s.mu.Lock()
	s.job = job
	s.mu.Unlock()

	s.scheduler.StartAsync()
	s.logger.Info("daily retrain scheduled",
		"at", fmt.Sprintf("%02d:%02d UTC", s.cfg.Hour, s.cfg.Minute),
		"next_run", job.NextRun(),
	)
	return nil
}

// Stop stops the scheduler. A run already in progress is not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// NextRun returns the time of the next scheduled run, if started.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return time.Time{}, false
	}
	return s.job.NextRun(), true
}

// RunNow retrains every location synchronously and records the run.
func (s *Scheduler) RunNow(ctx context.Context) Run {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	run := Run{JobID: uuid.NewString(), StartedAt: time.Now().UTC()}
	s.logger.Info("scheduled retrain started", "job_id", run.JobID)

	report := s.retrainer.RetrainAll(ctx)
	run.FinishedAt = time.Now().UTC()
	run.Retrained = report.Retrained
	run.Failed = report.Failed

	duration := run.FinishedAt.Sub(run.StartedAt)
	if s.metrics != nil {
		s.metrics.RecordScheduledRetrain(duration.Seconds(), len(report.Failed))
	}

	if len(report.Failed) > 0 {
		s.logger.Warn("scheduled retrain finished with failures",
			"job_id", run.JobID,
			"retrained", len(report.Retrained),
			"failed", report.Failed,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		s.logger.Info("scheduled retrain complete",
			"job_id", run.JobID,
			"retrained", len(report.Retrained),
			"duration_ms", duration.Milliseconds(),
		)
	}

	s.record(run)
	return run
}

func (s *Scheduler) record(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, run)
	if over := len(s.history) - s.cfg.History; over > 0 {
		s.history = append([]Run(nil), s.history[over:]...)
	}
}

// History returns recorded runs, newest first.
func (s *Scheduler) History() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, len(s.history))
	for i, r := range s.history {
		out[len(s.history)-1-i] = r
	}
	return out
}
