// Package sst defines the sea-surface-temperature domain types shared by the
// reefcast packages: daily readings, monitored reef locations and the
// historical series snapshots fetched for them.
package sst

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the wire format for reading dates.
const DateLayout = "2006-01-02"

// Reading is a single daily temperature observation or prediction.
// Date is always a UTC midnight.
type Reading struct {
	Date        time.Time `json:"date"`
	Temperature float64   `json:"temperature"`
	IsPredicted bool      `json:"isPredicted"`
}

type readingJSON struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
	IsPredicted bool    `json:"isPredicted"`
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		Date:        r.Date.UTC().Format(DateLayout),
		Temperature: r.Temperature,
		IsPredicted: r.IsPredicted,
	})
}

// UnmarshalJSON parses the YYYY-MM-DD date written by MarshalJSON.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("parse reading date %q: %w", raw.Date, err)
	}
	r.Date = d
	r.Temperature = raw.Temperature
	r.IsPredicted = raw.IsPredicted
	return nil
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// Location is a monitored reef site. Locations are static for the lifetime of
// the process.
type Location struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Coordinates Coordinates `json:"coordinates" yaml:"coordinates"`
}

var locationIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// ValidID reports whether id is a well-formed location slug.
func ValidID(id string) bool {
	return locationIDRegex.MatchString(id)
}

// Snapshot is the most recently fetched historical series for a location.
// Readings are date-ordered, unique per date and never predicted.
// A Snapshot is replaced wholesale on refetch and must not be mutated.
type Snapshot struct {
	LocationID string    `json:"locationId"`
	Readings   []Reading `json:"readings"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// Temperatures returns the temperature column of the snapshot.
func (s Snapshot) Temperatures() []float64 {
	return Temperatures(s.Readings)
}

// Last returns the most recent reading, or false when the snapshot is empty.
func (s Snapshot) Last() (Reading, bool) {
	if len(s.Readings) == 0 {
		return Reading{}, false
	}
	return s.Readings[len(s.Readings)-1], true
}

// Temperatures extracts the temperature values of readings in order.
func Temperatures(readings []Reading) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = r.Temperature
	}
	return out
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultLocations returns the Andaman Islands reef sites monitored out of the box.
func DefaultLocations() []Location {
	return []Location{
		{
			ID:          "jolly-buoy",
			Name:        "Jolly Buoy",
			Description: "Primary monitoring site",
			Coordinates: Coordinates{Lat: 11.495, Lon: 92.610},
		},
		{
			ID:          "neel-islands",
			Name:        "Neel Islands",
			Description: "Northern reef system",
			Coordinates: Coordinates{Lat: 11.832919, Lon: 93.052612},
		},
		{
			ID:          "mahatma-gandhi",
			Name:        "Mahatma Gandhi Marine National Park",
			Description: "Protected marine area",
			Coordinates: Coordinates{Lat: 11.5690, Lon: 92.6542},
		},
		{
			ID:          "havelock",
			Name:        "Havelock",
			Description: "Tourist diving area",
			Coordinates: Coordinates{Lat: 11.96, Lon: 93.0},
		},
	}
}
