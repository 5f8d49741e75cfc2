package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/reefcast/cmd/forecaster/config"
	"github.com/HatiCode/reefcast/pkg/adapters"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAdapter_ERDDAP(t *testing.T) {
	cfg := &config.Config{
		Adapter:        "erddap",
		ERDDAPURL:      "https://erddap.example.org/erddap/",
		ERDDAPDataset:  "customOisst",
		AdapterTimeout: 10 * time.Second,
	}

	a, err := buildAdapter(cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildAdapter failed: %v", err)
	}

	httpAdapter, ok := a.(*adapters.HTTPAdapter)
	if !ok {
		t.Fatalf("expected *adapters.HTTPAdapter, got %T", a)
	}
	if !strings.HasPrefix(httpAdapter.URL, "https://erddap.example.org/erddap/griddap/customOisst.json?sst") {
		t.Errorf("URL = %s", httpAdapter.URL)
	}
	if httpAdapter.Name() != "erddap" {
		t.Errorf("Name() = %q, want erddap", httpAdapter.Name())
	}
	if httpAdapter.HTTPClient == nil || httpAdapter.HTTPClient.Timeout != 10*time.Second {
		t.Error("adapter timeout not applied")
	}
	if httpAdapter.Breaker == nil {
		t.Error("adapter has no circuit breaker")
	}
}

func TestBuildAdapter_HTTPAdapter(t *testing.T) {
	cfg := &config.Config{
		Adapter: "http",
		AdapterConfig: map[string]string{
			"url":             "https://sst.example.org/api?lat={{.Lat}}&lon={{.Lon}}&from={{.Start}}",
			"valuePath":       "data.#.sst",
			"timestampPath":   "data.#.date",
			"timestampFormat": "date",
			"headers":         `{"X-API-Key":"secret"}`,
		},
	}

	a, err := buildAdapter(cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildAdapter failed: %v", err)
	}
	httpAdapter := a.(*adapters.HTTPAdapter)
	if httpAdapter.ValuePath != "data.#.sst" || httpAdapter.TimestampFormat != "date" {
		t.Errorf("adapter = %+v", httpAdapter)
	}
	if httpAdapter.Headers["X-API-Key"] != "secret" {
		t.Errorf("headers = %v", httpAdapter.Headers)
	}
}

func TestBuildAdapter_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"http without url", config.Config{Adapter: "http", AdapterConfig: map[string]string{"valuePath": "a", "timestampPath": "b"}}},
		{"http without paths", config.Config{Adapter: "http", AdapterConfig: map[string]string{"url": "https://example.org"}}},
		{"unknown kind", config.Config{Adapter: "prometheus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildAdapter(&tt.cfg, discardLogger()); err == nil {
				t.Error("buildAdapter() expected error")
			}
		})
	}
}
