// Package config provides configuration parsing and management for the forecaster.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. A .env file, if present, is loaded into
// the environment first and never overrides variables that are already set.
// The Config struct contains all runtime configuration for the forecaster including:
//   - HTTP and gRPC listen addresses
//   - TLS configuration (cert and key files)
//   - Logging configuration (level, format)
//   - Snapshot storage (memory or redis)
//   - Upstream adapter settings (ERDDAP or generic HTTP)
//   - Monitored locations (built-in defaults or a YAML file)
//   - Learner, cache lifetimes and the daily retrain schedule
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables (including .env)
//  3. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/reefcast/pkg/series"
	"github.com/HatiCode/reefcast/pkg/sst"
	"github.com/HatiCode/reefcast/pkg/tls"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string `validate:"required"`
	GRPCListen string `validate:"required"`
	LogFormat  string `validate:"oneof=text json"`
	LogLevel   string `validate:"oneof=debug info warn error"`
	TLS        tls.Config

	Storage       string `validate:"oneof=memory redis"`
	RedisAddr     string `validate:"required_if=Storage redis"`
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	RedisTTL      time.Duration `validate:"gte=0"`

	Adapter        string `validate:"oneof=erddap http"`
	AdapterConfig  map[string]string
	AdapterTimeout time.Duration `validate:"gt=0"`
	ERDDAPURL      string        `validate:"omitempty,url"`
	ERDDAPDataset  string

	LocationsFile string
	Locations     []sst.Location `validate:"required,min=1,dive"`

	Learner     string `validate:"oneof=forest ar"`
	ForestTrees int    `validate:"gte=0"`
	ForestSeed  uint64
	WindowSize  int `validate:"gte=1"`

	HistoryDays  int           `validate:"gte=1"`
	EndLagDays   int           `validate:"gte=0"`
	MaxGapDays   int           `validate:"gte=0"`
	SeriesMaxAge time.Duration `validate:"gte=0"`

	ResponseTTL        time.Duration `validate:"gt=0"`
	ModelTTL           time.Duration `validate:"gtefield=ResponseTTL"`
	ComputeTimeout     time.Duration `validate:"gt=0"`
	PastDays           int           `validate:"gte=1,lte=90"`
	FutureDays         int           `validate:"gte=1,lte=30"`
	BleachingThreshold float64       `validate:"gt=0"`

	WarmInterval   time.Duration `validate:"gte=0"`
	RetrainEnabled bool
	RetrainHour    int `validate:"gte=0,lte=23"`
	RetrainMinute  int `validate:"gte=0,lte=59"`
	JobHistory     int `validate:"gte=1"`
}

var validate = validator.New()

// ParseFlags parses command-line flags and environment variables into a Config.
// It exits the process on invalid configuration.
func ParseFlags() *Config {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
	}

	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse builds a Config from args with environment fallbacks, loads the
// location list and validates the result.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	flags := flag.NewFlagSet("forecaster", flag.ContinueOnError)

	flags.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	flags.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":8082"), "gRPC health listen address")

	flags.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flags.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Serve HTTP and gRPC over TLS")
	flags.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flags.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")

	flags.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Snapshot storage backend: memory or redis")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flags.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flags.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flags.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 24*time.Hour), "Redis snapshot TTL")

	flags.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", "erddap"), "Upstream adapter: erddap or http")
	flags.DurationVar(&cfg.AdapterTimeout, "adapter-timeout", getEnvDuration("ADAPTER_TIMEOUT", 30*time.Second), "Upstream request timeout")
	flags.StringVar(&cfg.ERDDAPURL, "erddap-url", getEnv("ERDDAP_URL", "https://coastwatch.pfeg.noaa.gov/erddap"), "ERDDAP server base URL")
	flags.StringVar(&cfg.ERDDAPDataset, "erddap-dataset", getEnv("ERDDAP_DATASET", "ncdcOisst21Agg_LonPM180"), "ERDDAP griddap dataset id")

	flags.StringVar(&cfg.LocationsFile, "locations-file", getEnv("LOCATIONS_FILE", ""), "YAML file listing monitored locations (default: built-in Andaman sites)")

	flags.StringVar(&cfg.Learner, "learner", getEnv("LEARNER", "forest"), "Learner: forest or ar")
	flags.IntVar(&cfg.ForestTrees, "forest-trees", getEnvInt("FOREST_TREES", 400), "Number of trees in the forest learner")
	flags.Uint64Var(&cfg.ForestSeed, "forest-seed", uint64(getEnvInt("FOREST_SEED", 42)), "Random seed for the forest learner")
	flags.IntVar(&cfg.WindowSize, "window-size", getEnvInt("WINDOW_SIZE", 14), "Lagged days per training example")
	flags.IntVar(&cfg.HistoryDays, "history-days", getEnvInt("HISTORY_DAYS", series.DefaultHistoryDays), "Days of history requested upstream")
	flags.IntVar(&cfg.EndLagDays, "end-lag-days", getEnvInt("END_LAG_DAYS", series.DefaultEndLagDays), "Days between today and the end of the requested range")
	flags.IntVar(&cfg.MaxGapDays, "max-gap-days", getEnvInt("MAX_GAP_DAYS", series.DefaultMaxGapDays), "Longest run of missing days filled by interpolation (0 disables)")
	flags.DurationVar(&cfg.SeriesMaxAge, "series-max-age", getEnvDuration("SERIES_MAX_AGE", series.DefaultMaxAge), "Serve a stored snapshot this young instead of fetching (0 always fetches)")

	flags.DurationVar(&cfg.ResponseTTL, "response-ttl", getEnvDuration("RESPONSE_TTL", 5*time.Minute), "How long a result is served without recomputation")
	flags.DurationVar(&cfg.ModelTTL, "model-ttl", getEnvDuration("MODEL_TTL", 24*time.Hour), "How long a trained model is reused")
	flags.DurationVar(&cfg.ComputeTimeout, "compute-timeout", getEnvDuration("COMPUTE_TIMEOUT", 2*time.Minute), "Upper bound on one fetch, train and predict cycle")
	flags.IntVar(&cfg.PastDays, "past-days", getEnvInt("PAST_DAYS", 7), "Observed days included in each analysis")
	flags.IntVar(&cfg.FutureDays, "future-days", getEnvInt("FUTURE_DAYS", 7), "Predicted days included in each analysis")
	flags.Float64Var(&cfg.BleachingThreshold, "bleaching-threshold", getEnvFloat("BLEACHING_THRESHOLD", 29.0), "Climatological baseline in °C")

	flags.DurationVar(&cfg.WarmInterval, "warm-interval", getEnvDuration("WARM_INTERVAL", 0), "Refresh every location at this interval (0 warms once at startup)")
	flags.BoolVar(&cfg.RetrainEnabled, "retrain-enabled", getEnvBool("RETRAIN_ENABLED", true), "Enable the daily scheduled retrain")
	flags.IntVar(&cfg.RetrainHour, "retrain-hour", getEnvInt("RETRAIN_HOUR", 6), "UTC hour of the daily retrain")
	flags.IntVar(&cfg.RetrainMinute, "retrain-minute", getEnvInt("RETRAIN_MINUTE", 0), "UTC minute of the daily retrain")
	flags.IntVar(&cfg.JobHistory, "job-history", getEnvInt("JOB_HISTORY", 20), "Scheduled retrain runs kept for /status")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg.AdapterConfig = parseAdapterConfig(os.Environ())

	if cfg.LocationsFile != "" {
		locs, err := LoadLocations(cfg.LocationsFile)
		if err != nil {
			return nil, err
		}
		cfg.Locations = locs
	} else {
		cfg.Locations = sst.DefaultLocations()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, TLS files and location identifiers.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	return validateLocations(c.Locations)
}

func validateLocations(locs []sst.Location) error {
	seen := make(map[string]bool, len(locs))
	for i, loc := range locs {
		if !sst.ValidID(loc.ID) {
			return fmt.Errorf("location[%d]: invalid id %q (lowercase letters, digits and dashes)", i, loc.ID)
		}
		if seen[loc.ID] {
			return fmt.Errorf("location[%d]: duplicate id %q", i, loc.ID)
		}
		seen[loc.ID] = true
	}
	return nil
}

type locationsFile struct {
	Locations []sst.Location `yaml:"locations"`
}

// LoadLocations reads a YAML document of the form:
//
//	locations:
//	  - id: jolly-buoy
//	    name: Jolly Buoy
//	    coordinates: {lat: 11.495, lon: 92.61}
func LoadLocations(path string) ([]sst.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var f locationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}
	if len(f.Locations) == 0 {
		return nil, fmt.Errorf("locations file %s: no locations", path)
	}
	if err := validateLocations(f.Locations); err != nil {
		return nil, fmt.Errorf("locations file %s: %w", path, err)
	}
	return f.Locations, nil
}

// parseAdapterConfig collects ADAPTER_* environment variables into the generic
// adapter configuration map, converting names to lowerCamelCase
// (ADAPTER_VALUE_PATH becomes valuePath). ADAPTER_TIMEOUT is a flag, not
// adapter configuration.
func parseAdapterConfig(environ []string) map[string]string {
	config := make(map[string]string)
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "ADAPTER_") || key == "ADAPTER_TIMEOUT" {
			continue
		}
		config[toLowerCamelCase(strings.TrimPrefix(key, "ADAPTER_"))] = value
	}
	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
