// Package risk computes coral bleaching stress indicators from daily
// sea-surface temperatures: Degree Heating Weeks, a discrete risk level and a
// short-term trend. All functions are pure and safe for concurrent use.
package risk

import "math"

// Level is a discrete bleaching risk category.
type Level string

const (
	Low      Level = "low"
	Moderate Level = "moderate"
	High     Level = "high"
)

// Trend is the direction of recent temperature movement.
type Trend string

const (
	Stable     Trend = "stable"
	Increasing Trend = "increasing"
	Decreasing Trend = "decreasing"
)

const (
	// DefaultWindowWeeks is the DHW accumulation window.
	DefaultWindowWeeks = 12
	// HotspotThreshold is the minimum excess over the mean, in °C, that counts
	// toward DHW.
	HotspotThreshold = 1.0

	HighDHW         = 4.0
	ModerateDHW     = 2.0
	HighAnomaly     = 2.0
	ModerateAnomaly = 1.0

	// DefaultTrendWindow is the lookback, in days, for ComputeTrend.
	DefaultTrendWindow = 3
	trendThreshold     = 0.5
)

// ComputeDHW returns Degree Heating Weeks over the last windowWeeks*7 values of
// temps: the sum of daily hotspots (t - mean) of at least HotspotThreshold,
// divided by 7. A shorter series uses all of its values. windowWeeks <= 0
// uses DefaultWindowWeeks. The result is never negative.
func ComputeDHW(temps []float64, mean float64, windowWeeks int) float64 {
	if windowWeeks <= 0 {
		windowWeeks = DefaultWindowWeeks
	}
	days := windowWeeks * 7
	if len(temps) > days {
		temps = temps[len(temps)-days:]
	}

	var sum float64
	for _, t := range temps {
		hotspot := t - mean
		if hotspot >= HotspotThreshold {
			sum += hotspot
		}
	}
	return sum / 7
}

// AssessRisk classifies bleaching risk from accumulated stress and the current
// anomaly (currentTemp - mean).
func AssessRisk(dhw, currentTemp, mean float64) Level {
	anomaly := currentTemp - mean
	switch {
	case dhw >= HighDHW || anomaly >= HighAnomaly:
		return High
	case dhw >= ModerateDHW || anomaly >= ModerateAnomaly:
		return Moderate
	default:
		return Low
	}
}

// ComputeTrend compares the last value with the one window steps earlier.
// window <= 0 uses DefaultTrendWindow. Too few points yields Stable.
func ComputeTrend(temps []float64, window int) Trend {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	if len(temps) < window+1 {
		return Stable
	}
	delta := temps[len(temps)-1] - temps[len(temps)-1-window]
	switch {
	case delta > trendThreshold:
		return Increasing
	case delta < -trendThreshold:
		return Decreasing
	default:
		return Stable
	}
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Assessment bundles the indicators reported for a location.
type Assessment struct {
	Mean         float64
	CurrentTemp  float64
	Anomaly      float64
	DHW          float64
	ProjectedDHW float64
	Level        Level
	Trend        Trend
}

// Assess computes the full set of indicators. DHW and the risk level use the
// observed history only; ProjectedDHW extends the window over forecast.
// mean is the climatological baseline for the location.
func Assess(history, forecast []float64, mean float64) Assessment {
	a := Assessment{Mean: mean, Level: Low, Trend: Stable}
	if len(history) == 0 {
		return a
	}

	a.CurrentTemp = history[len(history)-1]
	a.Anomaly = a.CurrentTemp - mean
	a.DHW = ComputeDHW(history, mean, DefaultWindowWeeks)
	a.Level = AssessRisk(a.DHW, a.CurrentTemp, mean)
	a.Trend = ComputeTrend(history, DefaultTrendWindow)

	combined := make([]float64, 0, len(history)+len(forecast))
	combined = append(combined, history...)
	combined = append(combined, forecast...)
	a.ProjectedDHW = ComputeDHW(combined, mean, DefaultWindowWeeks)

	return a
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
