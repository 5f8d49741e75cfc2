package prediction

import (
	"time"

	"github.com/HatiCode/reefcast/pkg/risk"
	"github.com/HatiCode/reefcast/pkg/sst"
)

// AnalysisResult is the published view of one location: the last PastDays
// observed readings, FutureDays predicted readings and the derived bleaching
// indicators. It is immutable once published; LastUpdated equals the cache
// entry's creation time.
type AnalysisResult struct {
	LocationID         string          `json:"locationId"`
	LocationName       string          `json:"locationName"`
	Coordinates        sst.Coordinates `json:"coordinates"`
	PastData           []sst.Reading   `json:"pastData"`
	FutureData         []sst.Reading   `json:"futureData"`
	BleachingThreshold float64         `json:"bleachingThreshold"`
	CurrentTemp        float64         `json:"currentTemp"`
	CurrentDHW         float64         `json:"currentDHW"`
	ProjectedDHW       float64         `json:"projectedDHW"`
	Anomaly            float64         `json:"anomaly"`
	RiskLevel          risk.Level      `json:"riskLevel"`
	Trend              risk.Trend      `json:"trend"`
	LastUpdated        time.Time       `json:"lastUpdated"`
}

// Metadata describes the shape of an AnalysisResponse.
type Metadata struct {
	TotalLocations     int     `json:"totalLocations"`
	PastDays           int     `json:"pastDays"`
	FutureDays         int     `json:"futureDays"`
	BleachingThreshold float64 `json:"bleachingThreshold"`
}

// AnalysisResponse aggregates results across locations. A location whose
// computation failed is listed in Degraded with the reason; it keeps its
// last good result in Locations when one exists and is omitted otherwise.
type AnalysisResponse struct {
	Locations   map[string]*AnalysisResult `json:"locations"`
	Degraded    map[string]string          `json:"degraded,omitempty"`
	Metadata    Metadata                   `json:"metadata"`
	GeneratedAt time.Time                  `json:"generatedAt"`
}

// CurrentData is the condensed present-day view of a location.
type CurrentData struct {
	LocationID   string          `json:"locationId"`
	LocationName string          `json:"locationName"`
	CurrentTemp  float64         `json:"currentTemp"`
	DHW          float64         `json:"dhw"`
	RiskLevel    risk.Level      `json:"riskLevel"`
	Coordinates  sst.Coordinates `json:"coordinates"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// CurrentResponse aggregates CurrentData across locations.
type CurrentResponse struct {
	Locations   map[string]*CurrentData `json:"locations"`
	Degraded    map[string]string       `json:"degraded,omitempty"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// RetrainJob acknowledges a retrain accepted for background execution.
type RetrainJob struct {
	Status             string    `json:"status"`
	JobID              string    `json:"jobId"`
	LocationID         string    `json:"locationId,omitempty"`
	LocationsProcessed []string  `json:"locationsProcessed,omitempty"`
	AcceptedAt         time.Time `json:"acceptedAt"`
}

// RetrainReport is the outcome of a blocking retrain.
type RetrainReport struct {
	Retrained []string          `json:"retrained"`
	Failed    map[string]string `json:"failed,omitempty"`
	Duration  time.Duration     `json:"-"`
}

// LocationStatus reports the cache state of a location without computing.
type LocationStatus struct {
	LocationID     string     `json:"locationId"`
	State          string     `json:"state"`
	LastUpdated    *time.Time `json:"lastUpdated,omitempty"`
	ModelTrainedAt *time.Time `json:"modelTrainedAt,omitempty"`
	Learner        string     `json:"learner,omitempty"`
	Samples        int        `json:"samples,omitempty"`
}

// Status summarizes the service's cache.
type Status struct {
	Locations       []LocationStatus `json:"locations"`
	CachedLocations int              `json:"cachedLocations"`
	ResponseTTL     string           `json:"responseTTL"`
	ModelTTL        string           `json:"modelTTL"`
	Learner         string           `json:"learner"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
