// Package models provides the per-location SST forecaster and the learners it
// can be configured with.
//
// A Forecaster turns a daily temperature series into a supervised dataset of
// sliding windows, fits a Learner to it, and predicts recursively: each
// predicted day is appended to the window used for the next one.
package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/HatiCode/reefcast/pkg/sst"
)

const (
	// DefaultWindowSize is the number of past days fed to the learner.
	DefaultWindowSize = 14
	// MinTrainingFactor scales the window into the minimum number of
	// supervised examples needed to train.
	MinTrainingFactor = 10
)

// ErrTrainingFailed is returned when a model cannot be fitted or applied.
var ErrTrainingFailed = errors.New("training failed")

// Regressor predicts the value following a window of consecutive values.
// Implementations must be safe for concurrent use.
type Regressor interface {
	PredictNext(window []float64) float64
}

// Learner fits a Regressor to supervised examples. Row i of X is a window of
// consecutive values and y[i] is the value that followed it.
type Learner interface {
	Name() string
	Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error)
}

// TrainedModel is a fitted forecaster for one location. It is immutable once
// published.
type TrainedModel struct {
	LocationID string
	TrainedAt  time.Time
	WindowSize int
	Learner    string
	Samples    int

	regressor Regressor
}

// NewTrainedModel wraps a fitted regressor. It is mostly useful for tests and
// alternative training pipelines.
func NewTrainedModel(r Regressor, windowSize int, learner string, trainedAt time.Time) *TrainedModel {
	return &TrainedModel{
		TrainedAt:  trainedAt,
		WindowSize: windowSize,
		Learner:    learner,
		regressor:  r,
	}
}

// PredictNext predicts the day after window. window must hold WindowSize values.
func (m *TrainedModel) PredictNext(window []float64) float64 {
	return m.regressor.PredictNext(window)
}

// Forecaster trains and applies per-location models. The zero value is not
// usable; construct with NewForecaster.
type Forecaster struct {
	windowSize int
	minSamples int
	learner    Learner
	now        func() time.Time
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithWindowSize overrides DefaultWindowSize.
func WithWindowSize(n int) Option {
	return func(f *Forecaster) {
		if n > 0 {
			f.windowSize = n
		}
	}
}

// WithClock sets the clock used to stamp TrainedAt.
func WithClock(now func() time.Time) Option {
	return func(f *Forecaster) {
		if now != nil {
			f.now = now
		}
	}
}

// NewForecaster returns a Forecaster that fits learner. A nil learner uses a
// default Forest.
func NewForecaster(learner Learner, opts ...Option) *Forecaster {
	if learner == nil {
		learner = NewForest(ForestConfig{})
	}
	f := &Forecaster{
		windowSize: DefaultWindowSize,
		learner:    learner,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.minSamples = f.windowSize * MinTrainingFactor
	return f
}

// WindowSize returns the number of lagged days per example.
func (f *Forecaster) WindowSize() int { return f.windowSize }

// MinHistory returns the shortest series Train accepts.
func (f *Forecaster) MinHistory() int { return f.windowSize + f.minSamples }

// LearnerName returns the configured learner's name.
func (f *Forecaster) LearnerName() string { return f.learner.Name() }

// Train fits a new model on series. The series must be date-ordered and
// contain at least MinHistory finite values.
func (f *Forecaster) Train(ctx context.Context, series []sst.Reading) (*TrainedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := sst.Temperatures(series)
	if err := checkFinite(values); err != nil {
		return nil, err
	}

	X, y := supervised(values, f.windowSize)
	if len(y) < f.minSamples {
		return nil, fmt.Errorf("%w: need %d examples, got %d", ErrTrainingFailed, f.minSamples, len(y))
	}

	reg, err := f.learner.Fit(ctx, X, y)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTrainingFailed, f.learner.Name(), err)
	}

	return &TrainedModel{
		TrainedAt:  f.now(),
		WindowSize: f.windowSize,
		Learner:    f.learner.Name(),
		Samples:    len(y),
		regressor:  reg,
	}, nil
}

// Predict produces horizonDays readings following the last reading of series.
// Each prediction is fed back into the window for the next day; dates are
// consecutive days after the last historical date.
func (f *Forecaster) Predict(model *TrainedModel, series []sst.Reading, horizonDays int) ([]sst.Reading, error) {
	if model == nil || model.regressor == nil {
		return nil, fmt.Errorf("%w: no model", ErrTrainingFailed)
	}
	if horizonDays <= 0 {
		return []sst.Reading{}, nil
	}

	w := model.WindowSize
	if len(series) < w {
		return nil, fmt.Errorf("%w: need %d readings to predict, got %d", ErrTrainingFailed, w, len(series))
	}

	window := sst.Temperatures(series[len(series)-w:])
	if err := checkFinite(window); err != nil {
		return nil, err
	}

	last := sst.Day(series[len(series)-1].Date)
	out := make([]sst.Reading, horizonDays)
	for i := range horizonDays {
		next := model.PredictNext(window)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return nil, fmt.Errorf("%w: non-finite prediction at day %d", ErrTrainingFailed, i+1)
		}
		out[i] = sst.Reading{
			Date:        last.AddDate(0, 0, i+1),
			Temperature: next,
			IsPredicted: true,
		}
		copy(window, window[1:])
		window[w-1] = next
	}

	return out, nil
}

// supervised builds len(values)-window examples of window consecutive values
// labelled with the value that follows.
func supervised(values []float64, window int) ([][]float64, []float64) {
	n := len(values) - window
	if n <= 0 {
		return nil, nil
	}
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range n {
		X[i] = values[i : i+window : i+window]
		y[i] = values[i+window]
	}
	return X, y
}

func checkFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrTrainingFailed, i)
		}
	}
	return nil
}
