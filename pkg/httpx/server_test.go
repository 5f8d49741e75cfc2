package httpx

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if strings.TrimSpace(w.Body.String()) != `{"status":"accepted"}` {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestWriteJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusOK, math.NaN()); err == nil {
		t.Fatal("WriteJSON() expected error for NaN")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, errors.New(`unknown location: "reef"`))

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusNotFound || resp.Error != `unknown location: "reef"` {
		t.Errorf("got %d %q", w.Code, resp.Error)
	}
}

func TestHealthHandlerWithCheck(t *testing.T) {
	ready := false
	h := HealthHandlerWithCheck(func() error {
		if !ready {
			return errors.New("warming up")
		}
		return nil
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	ready = true
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	h := LoggingMiddleware(logger)(RecoveryMiddleware(logger)(mux))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", w.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("log output = %q", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	if !strings.Contains(buf.String(), "status=418") {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestServer_StartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("127.0.0.1:0", HealthHandler(), logger, WithWriteTimeout(2*time.Minute))
	if s.server.WriteTimeout != 2*time.Minute {
		t.Errorf("WriteTimeout = %v, want 2m", s.server.WriteTimeout)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() returned %v after graceful stop", err)
	}
}

func TestWithTLS(t *testing.T) {
	s := NewServer(":0", HealthHandler(), nil, WithTLS(&tls.Config{MinVersion: tls.VersionTLS13}))
	if s.server.TLSConfig == nil || s.server.TLSConfig.MinVersion != tls.VersionTLS13 {
		t.Errorf("TLSConfig = %+v, want TLS 1.3 config", s.server.TLSConfig)
	}

	plain := NewServer(":0", HealthHandler(), nil, WithTLS(nil))
	if plain.server.TLSConfig != nil {
		t.Error("WithTLS(nil) should leave the server on plain HTTP")
	}
}
