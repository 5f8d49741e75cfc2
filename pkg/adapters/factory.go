package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultERDDAPURL is NOAA CoastWatch's public ERDDAP server.
	DefaultERDDAPURL = "https://coastwatch.pfeg.noaa.gov/erddap"
	// DefaultERDDAPDataset is the daily 0.25° OISST v2.1 grid on -180..180 longitudes.
	DefaultERDDAPDataset = "ncdcOisst21Agg_LonPM180"
)

// NewERDDAP returns an HTTPAdapter preconfigured for an ERDDAP griddap JSON
// endpoint serving OISST. The response table columns are
// time, zlev, latitude, longitude, sst.
func NewERDDAP(baseURL, dataset string) *HTTPAdapter {
	if baseURL == "" {
		baseURL = DefaultERDDAPURL
	}
	if dataset == "" {
		dataset = DefaultERDDAPDataset
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &HTTPAdapter{
		URL: baseURL + "/griddap/" + dataset + ".json?sst" +
			"[({{.Start}}T12:00:00Z):1:({{.End}}T12:00:00Z)]" +
			"[(0.0):1:(0.0)]" +
			"[({{.Lat}}):1:({{.Lat}})]" +
			"[({{.Lon}}):1:({{.Lon}})]",
		Method:          "GET",
		ValuePath:       "table.rows.#.4",
		TimestampPath:   "table.rows.#.0",
		TimestampFormat: "rfc3339",
		AdapterName:     "erddap",
	}
}

// New creates an adapter based on kind and generic configuration map.
// This is the central extension point for adding new adapter types.
//
// Supported kinds:
//   - "erddap": NOAA OISST through ERDDAP (config: url, dataset)
//   - "http": Generic HTTP adapter
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, timeout time.Duration) (Adapter, error) {
	var a *HTTPAdapter
	var err error

	switch kind {
	case "erddap":
		a = NewERDDAP(config["url"], config["dataset"])
	case "http":
		a, err = newHTTP(config)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be erddap or http)", kind)
	}

	a.Breaker = NewBreaker(a.Name(), 0)
	if timeout > 0 {
		a.HTTPClient = &http.Client{Timeout: timeout}
	}
	return a, nil
}

// newHTTP creates a generic HTTP adapter from generic config.
func newHTTP(config map[string]string) (*HTTPAdapter, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	valuePath := config["valuePath"]
	timestampPath := config["timestampPath"]
	if valuePath == "" || timestampPath == "" {
		return nil, fmt.Errorf("http adapter requires 'valuePath' and 'timestampPath' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	timestampFormat := config["timestampFormat"]
	if timestampFormat == "" {
		timestampFormat = "rfc3339"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	a := &HTTPAdapter{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		ValuePath:       valuePath,
		TimestampPath:   timestampPath,
		TimestampFormat: timestampFormat,
		TemplateVars:    templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
