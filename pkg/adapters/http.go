package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
)

// HTTPAdapter is a generic HTTP adapter that can call any REST API endpoint
// and extract a daily temperature series using JSON path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based URL, headers and body with variables: {{.Lat}}, {{.Lon}}, {{.Start}}, {{.End}}
//   - JSON path extraction for timestamps and values using gjson syntax
//   - Flexible timestamp parsing (RFC3339, plain dates, Unix seconds, Unix milliseconds)
//   - Circuit breaking and retry with backoff on transient upstream failures
//
// Example configuration for a custom SST API:
//
//	adapter := &HTTPAdapter{
//	    URL: "https://api.example.com/sst?lat={{.Lat}}&lon={{.Lon}}&from={{.Start}}&to={{.End}}",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	    },
//	    ValuePath: "data.#.sst",
//	    TimestampPath: "data.#.date",
//	    TimestampFormat: "date",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required). Supports template variables:
	//   {{.Lat}}, {{.Lon}}         - query coordinate
	//   {{.Start}}, {{.End}}       - range as YYYY-MM-DD
	//   {{.StartRFC3339}}, {{.EndRFC3339}}
	URL string

	// Method is the HTTP method (GET, POST, etc.). Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	// Values can use template variables like {{.Token}}.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// ValuePath is the gjson path to extract temperatures from the response.
	// Use "#" for arrays, e.g. "data.#.value" extracts all values from data array.
	ValuePath string

	// TimestampPath is the gjson path to extract timestamps from the response.
	// Must return the same number of elements as ValuePath.
	TimestampPath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "date"       - YYYY-MM-DD strings
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// AdapterName overrides Name(). Defaults to "http".
	AdapterName string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// Breaker is optional; if nil one is created on first use.
	Breaker *gobreaker.CircuitBreaker

	// Backoff controls retries. Zero value uses DefaultBackoff.
	Backoff BackoffConfig

	// TemplateVars are custom variables available in URL, Body and Headers templates.
	// Use this to pass tokens, API keys, etc.
	TemplateVars map[string]string

	breakerOnce sync.Once
}

func (h *HTTPAdapter) Name() string {
	if h.AdapterName != "" {
		return h.AdapterName
	}
	return "http"
}

func (h *HTTPAdapter) breaker() *gobreaker.CircuitBreaker {
	h.breakerOnce.Do(func() {
		if h.Breaker == nil {
			h.Breaker = NewBreaker(h.Name(), 0)
		}
	})
	return h.Breaker
}

// Collect implements Adapter. It calls the configured HTTP endpoint and extracts
// the series using the configured JSON paths. Rows whose value is null or not
// numeric are skipped.
func (h *HTTPAdapter) Collect(ctx context.Context, q Query) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("%s adapter: %w", h.Name(), err)
	}
	if q.End.Before(q.Start) {
		return &DataFrame{}, fmt.Errorf("%s adapter: end %s before start %s", h.Name(), q.End.Format(time.DateOnly), q.Start.Format(time.DateOnly))
	}

	templateData := map[string]any{
		"Lat":          strconv.FormatFloat(q.Lat, 'f', -1, 64),
		"Lon":          strconv.FormatFloat(q.Lon, 'f', -1, 64),
		"Start":        q.Start.UTC().Format(time.DateOnly),
		"End":          q.End.UTC().Format(time.DateOnly),
		"StartRFC3339": q.Start.UTC().Format(time.RFC3339),
		"EndRFC3339":   q.End.UTC().Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	url, err := renderTemplate(h.URL, templateData)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("render url template: %w", err)
	}

	var body string
	if h.Body != "" {
		body, err = renderTemplate(h.Body, templateData)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body template: %w", err)
		}
	}

	headers := make(map[string]string, len(h.Headers))
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		headers[key] = rendered
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := doWithResilience(ctx, cli, h.breaker(), h.Backoff, func(ctx context.Context) (*http.Request, error) {
		var bodyReader io.Reader
		if body != "" {
			bodyReader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}

	return h.parse(respBody)
}

func (h *HTTPAdapter) parse(respBody []byte) (*DataFrame, error) {
	if !gjson.ValidBytes(respBody) {
		return &DataFrame{}, errors.New("response is not valid JSON")
	}

	values := gjson.GetBytes(respBody, h.ValuePath)
	timestamps := gjson.GetBytes(respBody, h.TimestampPath)

	if !values.Exists() {
		return &DataFrame{}, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	if !timestamps.Exists() {
		return &DataFrame{}, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()

	if len(valArray) != len(tsArray) {
		return &DataFrame{}, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	rows := make([]Row, 0, len(valArray))
	for i := range valArray {
		// Land and missing cells come back as null.
		if valArray[i].Type != gjson.Number {
			continue
		}

		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return &DataFrame{}, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}

		rows = append(rows, Row{Date: ts, Value: valArray[i].Float()})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})

	return &DataFrame{Rows: rows}, nil
}

// parseTimestamp parses a timestamp according to the configured format
func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		t, err := time.Parse(time.RFC3339, value.String())
		return t.UTC(), err

	case "date":
		return time.Parse(time.DateOnly, value.String())

	case "unix":
		// Unix seconds (supports both int and float)
		sec := value.Float()
		return time.Unix(int64(sec), 0).UTC(), nil

	case "unix_milli":
		ms := value.Float()
		return time.UnixMilli(int64(ms)).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}

	validFormats := map[string]bool{
		"":           true,
		"rfc3339":    true,
		"date":       true,
		"unix":       true,
		"unix_milli": true,
	}
	if !validFormats[h.TimestampFormat] {
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, date, unix, or unix_milli)", h.TimestampFormat)
	}

	return nil
}
