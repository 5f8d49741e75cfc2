// Package metrics provides Prometheus metrics instrumentation for the forecaster.
//
// It exposes operational metrics about the per-location pipeline (fetch, train
// and predict durations), cache behavior, the bleaching indicators last
// published for each location, and error tracking. All metrics are exposed via
// the /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - reefcast_series_fetch_seconds: Histogram of upstream fetch duration
//   - reefcast_model_train_seconds: Histogram of model training duration
//   - reefcast_model_predict_seconds: Histogram of prediction duration
//   - reefcast_cache_resolutions_total: Counter of cache lookups by state
//   - reefcast_current_temperature_celsius: Gauge of the latest observed SST
//   - reefcast_dhw: Gauge of current Degree Heating Weeks
//   - reefcast_risk_level: Gauge of the risk level (0 low, 1 moderate, 2 high)
//   - reefcast_scheduled_retrain_seconds: Histogram of scheduled retrain runs
//   - reefcast_errors_total: Counter of errors by component and reason
//
// Per-location metrics carry a location label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	SeriesFetchSeconds      *prometheus.HistogramVec
	ModelTrainSeconds       *prometheus.HistogramVec
	ModelPredictSeconds     *prometheus.HistogramVec
	CacheResolutionsTotal   *prometheus.CounterVec
	CurrentTemperature      *prometheus.GaugeVec
	DHW                     *prometheus.GaugeVec
	RiskLevel               *prometheus.GaugeVec
	ScheduledRetrainSeconds prometheus.Histogram
	RetrainFailuresTotal    prometheus.Counter
	ErrorsTotal             *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		SeriesFetchSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reefcast_series_fetch_seconds",
			Help:    "Time spent fetching and normalizing the upstream series",
			Buckets: prometheus.DefBuckets,
		}, []string{"location"}),

		ModelTrainSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reefcast_model_train_seconds",
			Help:    "Time spent training a location model",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"location"}),

		ModelPredictSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reefcast_model_predict_seconds",
			Help:    "Time spent predicting future temperatures",
			Buckets: prometheus.DefBuckets,
		}, []string{"location"}),

		CacheResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reefcast_cache_resolutions_total",
			Help: "Cache lookups by location and the state found",
		}, []string{"location", "state"}),

		CurrentTemperature: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reefcast_current_temperature_celsius",
			Help: "Latest observed sea-surface temperature",
		}, []string{"location"}),

		DHW: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reefcast_dhw",
			Help: "Current Degree Heating Weeks",
		}, []string{"location"}),

		RiskLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reefcast_risk_level",
			Help: "Bleaching risk level: 0 low, 1 moderate, 2 high",
		}, []string{"location"}),

		ScheduledRetrainSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reefcast_scheduled_retrain_seconds",
			Help:    "Duration of scheduled retrain runs across all locations",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		RetrainFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "reefcast_scheduled_retrain_failures_total",
			Help: "Locations that failed during scheduled retrain runs",
		}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reefcast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordFetch records the time spent fetching a series.
func (m *Metrics) RecordFetch(location string, seconds float64) {
	m.SeriesFetchSeconds.WithLabelValues(location).Observe(seconds)
}

// RecordTrain records the time spent training.
func (m *Metrics) RecordTrain(location string, seconds float64) {
	m.ModelTrainSeconds.WithLabelValues(location).Observe(seconds)
}

// RecordPredict records the time spent predicting.
func (m *Metrics) RecordPredict(location string, seconds float64) {
	m.ModelPredictSeconds.WithLabelValues(location).Observe(seconds)
}

// RecordCacheState counts a cache lookup.
func (m *Metrics) RecordCacheState(location, state string) {
	m.CacheResolutionsTotal.WithLabelValues(location, state).Inc()
}

// SetRisk publishes the indicators of a freshly computed result.
func (m *Metrics) SetRisk(location string, currentTemp, dhw float64, level string) {
	m.CurrentTemperature.WithLabelValues(location).Set(currentTemp)
	m.DHW.WithLabelValues(location).Set(dhw)
	m.RiskLevel.WithLabelValues(location).Set(levelValue(level))
}

// RecordScheduledRetrain records one scheduled run.
func (m *Metrics) RecordScheduledRetrain(seconds float64, failed int) {
	m.ScheduledRetrainSeconds.Observe(seconds)
	m.RetrainFailuresTotal.Add(float64(failed))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func levelValue(level string) float64 {
	switch level {
	case "high":
		return 2
	case "moderate":
		return 1
	default:
		return 0
	}
}
