// Package router configures HTTP routes for the forecaster's HTTP API.
//
// Routes configured:
//   - GET  /api/v1/analysis            - Analysis for every location
//   - GET  /api/v1/analysis/{id}       - Analysis for one location
//   - GET  /api/v1/current             - Present-day view of every location
//   - GET  /api/v1/current/{id}        - Present-day view of one location
//   - GET  /api/v1/locations           - Configured locations
//   - POST /api/v1/retrain             - Retrain every location in the background
//   - POST /api/v1/retrain/{id}        - Retrain one location in the background
//   - GET  /api/v1/status              - Cache, model and schedule state
//   - GET  /healthz                    - Liveness (always 200 OK)
//   - GET  /readyz                     - Readiness (200 once any location is cached)
//   - GET  /metrics                    - Prometheus metrics endpoint
//
// Results older than the response TTL carry an X-Reefcast-Stale header, and
// results served in place of a failed recomputation carry X-Reefcast-Degraded.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/reefcast/cmd/forecaster/scheduler"
	"github.com/HatiCode/reefcast/pkg/httpx"
	"github.com/HatiCode/reefcast/pkg/models"
	"github.com/HatiCode/reefcast/pkg/prediction"
	"github.com/HatiCode/reefcast/pkg/series"
	"github.com/HatiCode/reefcast/pkg/sst"
)

const (
	StaleHeader    = "X-Reefcast-Stale"
	DegradedHeader = "X-Reefcast-Degraded"

	DefaultRequestTimeout = 30 * time.Second
)

// Service is the subset of prediction.Service the routes need.
type Service interface {
	GetAnalysis(ctx context.Context) (*prediction.AnalysisResponse, error)
	GetAnalysisForLocation(ctx context.Context, id string) (*prediction.AnalysisResult, error)
	GetCurrent(ctx context.Context) (*prediction.CurrentResponse, error)
	GetCurrentForLocation(ctx context.Context, id string) (*prediction.CurrentData, error)
	ListLocations() []sst.Location
	TriggerRetrain(id string) (prediction.RetrainJob, error)
	TriggerRetrainAll() prediction.RetrainJob
	Status() prediction.Status
	IsStale(r *prediction.AnalysisResult) bool
	Ready() bool
}

// Schedule reports the daily retrain state. It may be nil.
type Schedule interface {
	NextRun() (time.Time, bool)
	History() []scheduler.Run
}

// Options configures SetupRoutes.
type Options struct {
	Service  Service
	Schedule Schedule
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type handlers struct {
	svc      Service
	schedule Schedule
	timeout  time.Duration
	logger   *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		svc:      opts.Service,
		schedule: opts.Schedule,
		timeout:  opts.RequestTimeout,
		logger:   logger,
	}
	if h.timeout <= 0 {
		h.timeout = DefaultRequestTimeout
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(func() error {
		if !h.svc.Ready() {
			return errors.New("no location has a cached result yet")
		}
		return nil
	}))

	mux.HandleFunc("GET /api/v1/analysis", h.analysis)
	mux.HandleFunc("GET /api/v1/analysis/{id}", h.analysisForLocation)
	mux.HandleFunc("GET /api/v1/current", h.current)
	mux.HandleFunc("GET /api/v1/current/{id}", h.currentForLocation)
	mux.HandleFunc("GET /api/v1/locations", h.locations)
	mux.HandleFunc("POST /api/v1/retrain", h.retrainAll)
	mux.HandleFunc("POST /api/v1/retrain/{id}", h.retrain)
	mux.HandleFunc("GET /api/v1/status", h.status)

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	var handler http.Handler = mux
	handler = httpx.LoggingMiddleware(logger)(handler)
	handler = httpx.RecoveryMiddleware(logger)(handler)
	return handler
}

func (h *handlers) analysis(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.svc.GetAnalysis(ctx)
	if err != nil {
		h.writeServiceError(w, "", err)
		return
	}

	for _, result := range resp.Locations {
		if h.svc.IsStale(result) {
			w.Header().Set(StaleHeader, "true")
			break
		}
	}
	if len(resp.Degraded) > 0 {
		w.Header().Set(DegradedHeader, "true")
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) analysisForLocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !sst.ValidID(id) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid location id format")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.svc.GetAnalysisForLocation(ctx, id)
	if result == nil {
		h.writeServiceError(w, id, err)
		return
	}
	h.markResult(w, result, err)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handlers) current(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.svc.GetCurrent(ctx)
	if err != nil {
		h.writeServiceError(w, "", err)
		return
	}
	if len(resp.Degraded) > 0 {
		w.Header().Set(DegradedHeader, "true")
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) currentForLocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !sst.ValidID(id) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid location id format")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cur, err := h.svc.GetCurrentForLocation(ctx, id)
	if cur == nil {
		h.writeServiceError(w, id, err)
		return
	}
	if prediction.IsDegraded(err) {
		w.Header().Set(DegradedHeader, "true")
	}
	h.writeJSON(w, http.StatusOK, cur)
}

func (h *handlers) locations(w http.ResponseWriter, r *http.Request) {
	locs := h.svc.ListLocations()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"locations": locs,
		"total":     len(locs),
	})
}

func (h *handlers) retrainAll(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusAccepted, h.svc.TriggerRetrainAll())
}

func (h *handlers) retrain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !sst.ValidID(id) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid location id format")
		return
	}

	job, err := h.svc.TriggerRetrain(id)
	if err != nil {
		h.writeServiceError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

type scheduleStatus struct {
	NextRun *time.Time      `json:"nextRun,omitempty"`
	Runs    []scheduler.Run `json:"runs"`
}

type statusResponse struct {
	prediction.Status
	Schedule *scheduleStatus `json:"schedule,omitempty"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: h.svc.Status()}
	if h.schedule != nil {
		ss := &scheduleStatus{Runs: h.schedule.History()}
		if next, ok := h.schedule.NextRun(); ok {
			ss.NextRun = &next
		}
		resp.Schedule = ss
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) markResult(w http.ResponseWriter, result *prediction.AnalysisResult, err error) {
	if h.svc.IsStale(result) {
		w.Header().Set(StaleHeader, "true")
	}
	if prediction.IsDegraded(err) {
		w.Header().Set(DegradedHeader, "true")
	}
}

func (h *handlers) writeServiceError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, prediction.ErrUnknownLocation):
		httpx.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, prediction.ErrAllLocationsFailed),
		errors.Is(err, series.ErrDataSourceUnavailable),
		errors.Is(err, series.ErrInsufficientHistory),
		errors.Is(err, models.ErrTrainingFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		h.logger.Warn("prediction unavailable", "location", id, "error", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, err)
	default:
		h.logger.Error("prediction failed", "location", id, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := httpx.WriteJSON(w, status, v); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
