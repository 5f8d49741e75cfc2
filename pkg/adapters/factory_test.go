package adapters

import (
	"strings"
	"testing"
	"time"
)

func TestNew_ERDDAP(t *testing.T) {
	config := map[string]string{
		"url":     "https://erddap.example.org/erddap",
		"dataset": "customOisst",
	}

	adapter, err := New("erddap", config, 15*time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h, ok := adapter.(*HTTPAdapter)
	if !ok {
		t.Fatalf("expected *HTTPAdapter, got %T", adapter)
	}
	if !strings.HasPrefix(h.URL, "https://erddap.example.org/erddap/griddap/customOisst.json?sst") {
		t.Errorf("URL = %s", h.URL)
	}
	if h.Name() != "erddap" {
		t.Errorf("Name() = %s, want erddap", h.Name())
	}
	if h.HTTPClient == nil || h.HTTPClient.Timeout != 15*time.Second {
		t.Errorf("expected client with 15s timeout")
	}
	if h.Breaker == nil {
		t.Error("expected circuit breaker")
	}
}

func TestNew_ERDDAPDefaults(t *testing.T) {
	adapter, err := New("erddap", map[string]string{}, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h := adapter.(*HTTPAdapter)
	if !strings.HasPrefix(h.URL, DefaultERDDAPURL+"/griddap/"+DefaultERDDAPDataset) {
		t.Errorf("URL = %s", h.URL)
	}
	if h.HTTPClient != nil {
		t.Error("expected default client to be chosen lazily")
	}
}

func TestNew_HTTP(t *testing.T) {
	config := map[string]string{
		"url":             "http://api.example.com/sst?lat={{.Lat}}",
		"valuePath":       "data.#.value",
		"timestampPath":   "data.#.date",
		"timestampFormat": "date",
		"headers":         `{"X-Api-Key": "{{.Key}}"}`,
		"templateVars":    `{"Key": "abc"}`,
	}

	adapter, err := New("http", config, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h, ok := adapter.(*HTTPAdapter)
	if !ok {
		t.Fatalf("expected *HTTPAdapter, got %T", adapter)
	}
	if h.Method != "GET" {
		t.Errorf("Method = %s, want GET", h.Method)
	}
	if h.TimestampFormat != "date" {
		t.Errorf("TimestampFormat = %s, want date", h.TimestampFormat)
	}
	if h.Headers["X-Api-Key"] != "{{.Key}}" {
		t.Errorf("Headers = %v", h.Headers)
	}
	if h.TemplateVars["Key"] != "abc" {
		t.Errorf("TemplateVars = %v", h.TemplateVars)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		config map[string]string
	}{
		{"unknown kind", "prometheus", map[string]string{}},
		{"http missing url", "http", map[string]string{"valuePath": "v", "timestampPath": "t"}},
		{"http missing paths", "http", map[string]string{"url": "http://x"}},
		{"http bad headers", "http", map[string]string{"url": "http://x", "valuePath": "v", "timestampPath": "t", "headers": "{"}},
		{"http bad format", "http", map[string]string{"url": "http://x", "valuePath": "v", "timestampPath": "t", "timestampFormat": "iso"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.kind, tt.config, 0); err == nil {
				t.Error("expected error")
			}
		})
	}
}
