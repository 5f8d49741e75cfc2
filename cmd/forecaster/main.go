// Command forecaster implements the reefcast SST prediction service.
//
// For every monitored location the forecaster:
//  1. Collects daily sea-surface temperature history from ERDDAP (or a generic HTTP source)
//  2. Trains a forecasting model on the cleaned series
//  3. Predicts the coming days
//  4. Assesses bleaching risk from degree heating weeks and the temperature trend
//  5. Caches the result and serves it via the HTTP API
//
// The forecaster serves an HTTP API on port 8081 (configurable) providing:
//   - GET  /api/v1/analysis[/{id}] - Past and predicted temperatures with risk
//   - GET  /api/v1/current[/{id}]  - Today's temperature, DHW and risk
//   - GET  /api/v1/locations       - Configured locations
//   - POST /api/v1/retrain[/{id}]  - Background retrain
//   - GET  /api/v1/status          - Cache, model and schedule state
//   - GET  /healthz, /readyz       - Liveness and readiness
//   - GET  /metrics                - Prometheus metrics endpoint
//
// A gRPC health service on port 8082 reports SERVING once any location has a
// cached result.
//
// Usage:
//
//	forecaster \
//	  -locations-file=/etc/reefcast/locations.yaml \
//	  -storage=redis -redis-addr=redis:6379 \
//	  -retrain-hour=6
//
// Environment variables:
//
//	LISTEN              - HTTP listen address (default: :8081)
//	GRPC_LISTEN         - gRPC health listen address (default: :8082)
//	STORAGE             - Snapshot storage: memory, redis (default: memory)
//	REDIS_ADDR          - Redis address (default: localhost:6379)
//	ADAPTER             - Upstream adapter: erddap, http (default: erddap)
//	ADAPTER_*           - Extra adapter settings, e.g. ADAPTER_URL for http
//	ERDDAP_URL          - ERDDAP server base URL
//	ERDDAP_DATASET      - ERDDAP dataset id
//	LOCATIONS_FILE      - YAML location list (default: built-in Andaman sites)
//	LEARNER             - Learner: forest, ar (default: forest)
//	HISTORY_DAYS        - Days of history requested upstream (default: 365)
//	END_LAG_DAYS        - Days the requested range ends before today (default: 2)
//	MAX_GAP_DAYS        - Longest interpolated gap, 0 disables (default: 5)
//	SERIES_MAX_AGE      - Reuse a stored snapshot this young (default: 1h)
//	RESPONSE_TTL        - Result lifetime (default: 5m)
//	MODEL_TTL           - Model lifetime (default: 24h)
//	COMPUTE_TIMEOUT     - Bound on one fetch, train and predict (default: 2m)
//	WARM_INTERVAL       - Periodic refresh of every location (default: 0, startup only)
//	RETRAIN_ENABLED     - Daily retrain (default: true)
//	RETRAIN_HOUR        - UTC hour of the daily retrain (default: 6)
//	TLS_ENABLED         - Serve HTTP and gRPC over TLS (default: false)
//	TLS_CERT_FILE       - TLS certificate file
//	TLS_KEY_FILE        - TLS private key file
//	LOG_LEVEL           - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT          - Logging format: text, json (default: text)
//	ENV_FILE            - Optional dotenv file (default: .env)
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/cmd/forecaster/logger"
	"github.com/HatiCode/reefcast/cmd/forecaster/metrics"
	"github.com/HatiCode/reefcast/cmd/forecaster/models"
	"github.com/HatiCode/reefcast/cmd/forecaster/router"
	"github.com/HatiCode/reefcast/cmd/forecaster/scheduler"
	"github.com/HatiCode/reefcast/cmd/forecaster/store"
	"github.com/HatiCode/reefcast/pkg/httpx"
	"github.com/HatiCode/reefcast/pkg/prediction"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting reefcast forecaster",
		"version", version,
		"locations", len(cfg.Locations),
		"adapter", cfg.Adapter,
		"learner", cfg.Learner,
	)

	tlsConfig, err := cfg.TLS.ServerConfig()
	if err != nil {
		logger.Error("failed to load TLS configuration", "error", err)
		os.Exit(1)
	}
	if tlsConfig != nil {
		logger.Info("TLS enabled", "cert", cfg.TLS.CertFile)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	backend, err := store.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if closer, ok := backend.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		os.Exit(1)
	}

	forecaster, err := models.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create model", "error", err)
		os.Exit(1)
	}

	src, err := buildSeries(cfg, adapter, backend, forecaster.MinHistory(), logger)
	if err != nil {
		logger.Error("invalid series configuration", "error", err)
		os.Exit(1)
	}

	svc, err := prediction.New(prediction.Config{
		Locations:          cfg.Locations,
		ResponseTTL:        cfg.ResponseTTL,
		ModelTTL:           cfg.ModelTTL,
		ComputeTimeout:     cfg.ComputeTimeout,
		PastDays:           cfg.PastDays,
		FutureDays:         cfg.FutureDays,
		BleachingThreshold: cfg.BleachingThreshold,
	}, src, forecaster, logger, m)
	if err != nil {
		logger.Error("failed to create prediction service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	var sched *scheduler.Scheduler
	if cfg.RetrainEnabled {
		sched = scheduler.New(scheduler.Config{
			Hour:    cfg.RetrainHour,
			Minute:  cfg.RetrainMinute,
			History: cfg.JobHistory,
		}, svc, logger, m)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	opts := router.Options{
		Service:        svc,
		Gatherer:       prometheus.DefaultGatherer,
		RequestTimeout: router.DefaultRequestTimeout,
		Logger:         logger,
	}
	if sched != nil {
		opts.Schedule = sched
	}
	httpServer := httpx.NewServer(cfg.Listen, router.SetupRoutes(opts), logger,
		httpx.WithWriteTimeout(cfg.ComputeTimeout+router.DefaultRequestTimeout),
		httpx.WithTLS(tlsConfig))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	var grpcOpts []grpc.ServerOption
	if tlsConfig != nil {
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	grpcServer := grpc.NewServer(grpcOpts...)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCListen)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", cfg.GRPCListen, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	warmer := NewWarmer(svc, cfg.ComputeTimeout, logger)
	go func() {
		if err := warmer.Run(ctx, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("warm loop failed", "error", err)
		}
	}()

	go watchReadiness(ctx, svc, healthServer, logger)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()
	go func() {
		logger.Info("starting gRPC health server", "addr", cfg.GRPCListen)
		serverErr <- grpcServer.Serve(lis)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	healthServer.Shutdown()
	cancel()

	grpcServer.GracefulStop()
	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// watchReadiness flips the gRPC health status to SERVING once the service has
// a cached result for any location.
func watchReadiness(ctx context.Context, svc interface{ Ready() bool }, hs *health.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if svc.Ready() {
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			logger.Info("service ready")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
