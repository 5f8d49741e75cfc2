package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_FLOAT", "29.5")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BOOL", "false")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvInt() with invalid value = %d, want default 1", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 0); got != 29.5 {
		t.Errorf("getEnvFloat() = %v, want 29.5", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvBool("TEST_BOOL", true); got {
		t.Error("getEnvBool() = true, want false")
	}
	if got := getEnvBool("TEST_UNSET_BOOL", true); !got {
		t.Error("getEnvBool() unset = false, want default true")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Listen != ":8081" || cfg.GRPCListen != ":8082" {
		t.Errorf("listen = %q / %q", cfg.Listen, cfg.GRPCListen)
	}
	if cfg.Storage != "memory" || cfg.Adapter != "erddap" || cfg.Learner != "forest" {
		t.Errorf("storage=%q adapter=%q learner=%q", cfg.Storage, cfg.Adapter, cfg.Learner)
	}
	if cfg.ResponseTTL != 5*time.Minute || cfg.ModelTTL != 24*time.Hour {
		t.Errorf("ttls = %v / %v", cfg.ResponseTTL, cfg.ModelTTL)
	}
	if cfg.PastDays != 7 || cfg.FutureDays != 7 || cfg.BleachingThreshold != 29.0 {
		t.Errorf("analysis shape = %d/%d/%v", cfg.PastDays, cfg.FutureDays, cfg.BleachingThreshold)
	}
	if !cfg.RetrainEnabled || cfg.RetrainHour != 6 || cfg.RetrainMinute != 0 {
		t.Errorf("retrain = %v %02d:%02d", cfg.RetrainEnabled, cfg.RetrainHour, cfg.RetrainMinute)
	}
	if len(cfg.Locations) != 4 {
		t.Errorf("got %d default locations, want 4", len(cfg.Locations))
	}
	if cfg.TLS.Enabled {
		t.Error("TLS should be disabled by default")
	}
	if cfg.HistoryDays != 365 || cfg.EndLagDays != 2 || cfg.MaxGapDays != 5 || cfg.SeriesMaxAge != time.Hour {
		t.Errorf("series settings = %d/%d/%d/%v", cfg.HistoryDays, cfg.EndLagDays, cfg.MaxGapDays, cfg.SeriesMaxAge)
	}
	if cfg.ForestTrees != 400 || cfg.ForestSeed != 42 || cfg.WindowSize != 14 {
		t.Errorf("learner settings = %d/%d/%d", cfg.ForestTrees, cfg.ForestSeed, cfg.WindowSize)
	}
}

func TestParse_EnvAndFlags(t *testing.T) {
	t.Setenv("LEARNER", "ar")
	t.Setenv("RESPONSE_TTL", "1m")
	t.Setenv("PAST_DAYS", "14")

	cfg, err := Parse([]string{"-past-days=10", "-retrain-hour=22", "-storage=redis"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Learner != "ar" {
		t.Errorf("Learner = %q, want ar from env", cfg.Learner)
	}
	if cfg.ResponseTTL != time.Minute {
		t.Errorf("ResponseTTL = %v, want 1m from env", cfg.ResponseTTL)
	}
	if cfg.PastDays != 10 {
		t.Errorf("PastDays = %d, want flag value 10 over env", cfg.PastDays)
	}
	if cfg.RetrainHour != 22 || cfg.Storage != "redis" {
		t.Errorf("RetrainHour=%d Storage=%q", cfg.RetrainHour, cfg.Storage)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown learner", []string{"-learner=lstm"}},
		{"unknown storage", []string{"-storage=disk"}},
		{"unknown adapter", []string{"-adapter=prometheus"}},
		{"bad log level", []string{"-log-level=trace"}},
		{"model ttl shorter than response ttl", []string{"-response-ttl=1h", "-model-ttl=30m"}},
		{"zero response ttl", []string{"-response-ttl=0s"}},
		{"retrain hour out of range", []string{"-retrain-hour=24"}},
		{"future days out of range", []string{"-future-days=0"}},
		{"redis without address", []string{"-storage=redis", "-redis-addr="}},
		{"bad erddap url", []string{"-erddap-url=not a url"}},
		{"unknown flag", []string{"-workload=api"}},
		{"missing locations file", []string{"-locations-file=/nonexistent/locations.yaml"}},
		{"negative end lag", []string{"-end-lag-days=-1"}},
		{"negative series max age", []string{"-series-max-age=-1m"}},
		{"tls without cert", []string{"-tls-enabled"}},
		{"tls cert not found", []string{"-tls-enabled", "-tls-cert-file=/nonexistent/tls.crt", "-tls-key-file=/nonexistent/tls.key"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.args); err == nil {
				t.Errorf("Parse(%v) expected error", tt.args)
			}
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLocations(t *testing.T) {
	path := writeFile(t, `
locations:
  - id: lakshadweep
    name: Lakshadweep
    description: Kavaratti lagoon
    coordinates: {lat: 10.566, lon: 72.642}
  - id: gulf-of-mannar
    name: Gulf of Mannar
    coordinates:
      lat: 9.12
      lon: 79.23
`)

	locs, err := LoadLocations(path)
	if err != nil {
		t.Fatalf("LoadLocations() error = %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("got %d locations, want 2", len(locs))
	}
	if locs[0].ID != "lakshadweep" || locs[0].Coordinates.Lat != 10.566 || locs[0].Description != "Kavaratti lagoon" {
		t.Errorf("locs[0] = %+v", locs[0])
	}
	if locs[1].Coordinates.Lon != 79.23 {
		t.Errorf("locs[1] = %+v", locs[1])
	}

	cfg, err := Parse([]string{"-locations-file=" + path})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cfg.Locations) != 2 {
		t.Errorf("Parse() loaded %d locations, want 2", len(cfg.Locations))
	}
}

func TestLoadLocations_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "locations: []\n", "no locations"},
		{"malformed yaml", "locations: [\n", "parse"},
		{"bad id", "locations:\n  - id: Bad_Id\n    name: Bad\n", "invalid id"},
		{"duplicate id", "locations:\n  - id: a\n    name: A\n  - id: a\n    name: B\n", "duplicate id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLocations(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadLocations() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_LocationValidation(t *testing.T) {
	path := writeFile(t, "locations:\n  - id: far-north\n    name: Far North\n    coordinates: {lat: 95, lon: 0}\n")
	if _, err := Parse([]string{"-locations-file=" + path}); err == nil {
		t.Error("Parse() expected error for latitude out of range")
	}

	path = writeFile(t, "locations:\n  - id: nameless\n")
	if _, err := Parse([]string{"-locations-file=" + path}); err == nil {
		t.Error("Parse() expected error for missing name")
	}
}

func TestParseAdapterConfig(t *testing.T) {
	got := parseAdapterConfig([]string{
		"ADAPTER_URL=https://example.org/sst",
		"ADAPTER_VALUE_PATH=data.#.sst",
		"ADAPTER_TIMEOUT=10s",
		"ADAPTER=http",
		"OTHER=1",
	})

	want := map[string]string{
		"url":       "https://example.org/sst",
		"valuePath": "data.#.sst",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("config[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"URL":            "url",
		"VALUE_PATH":     "valuePath",
		"TIMESTAMP_PATH": "timestampPath",
		"TEMPLATE_VARS":  "templateVars",
		"":               "",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}
