package risk

import (
	"math"
	"math/rand/v2"
	"testing"
)

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeDHW(t *testing.T) {
	tests := []struct {
		name  string
		temps []float64
		mean  float64
		weeks int
		want  float64
	}{
		{"empty", nil, 28, 12, 0},
		{"at mean", constant(100, 28.0), 28, 12, 0},
		{"below hotspot threshold", constant(84, 28.9), 28, 12, 0},
		{"exactly at threshold", constant(7, 29.0), 28, 12, 1},
		{"84 days at +2", constant(84, 30.0), 28, 12, 24},
		{"window truncates", constant(200, 30.0), 28, 12, 24},
		{"default window", constant(200, 30.0), 28, 0, 24},
		{"one week window", constant(30, 31.0), 28, 1, 3},
		{"shorter than window", constant(14, 30.0), 28, 12, 4},
		{"mixed", []float64{28, 29.5, 27, 30.5, 28.99}, 28, 12, (1.5 + 2.5) / 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDHW(tt.temps, tt.mean, tt.weeks)
			if !approx(got, tt.want) {
				t.Errorf("ComputeDHW() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeDHW_NonNegative(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		temps := make([]float64, r.IntN(120))
		for j := range temps {
			temps[j] = 20 + r.Float64()*15
		}
		if got := ComputeDHW(temps, 28, 12); got < 0 {
			t.Fatalf("ComputeDHW() = %v, want >= 0", got)
		}
	}
}

func TestComputeDHW_Monotone(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		temps := make([]float64, 84)
		for j := range temps {
			temps[j] = 26 + r.Float64()*6
		}
		before := ComputeDHW(temps, 28, 12)

		raised := append([]float64(nil), temps...)
		raised[r.IntN(len(raised))] += r.Float64() * 3
		after := ComputeDHW(raised, 28, 12)

		if after < before {
			t.Fatalf("raising a reading lowered DHW: %v -> %v", before, after)
		}
	}
}

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		name        string
		dhw         float64
		currentTemp float64
		mean        float64
		want        Level
	}{
		{"calm", 0, 28, 28, Low},
		{"dhw moderate", 2, 28, 28, Moderate},
		{"dhw just under moderate", 1.99, 28, 28, Low},
		{"dhw high", 4, 28, 28, High},
		{"anomaly moderate", 0, 29, 28, Moderate},
		{"anomaly high", 0, 30, 28, High},
		{"anomaly high beats low dhw", 1, 30.5, 28, High},
		{"negative anomaly", 0, 25, 28, Low},
		{"both moderate", 3, 29.5, 28, Moderate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssessRisk(tt.dhw, tt.currentTemp, tt.mean); got != tt.want {
				t.Errorf("AssessRisk(%v, %v, %v) = %v, want %v", tt.dhw, tt.currentTemp, tt.mean, got, tt.want)
			}
		})
	}
}

func TestComputeTrend(t *testing.T) {
	tests := []struct {
		name   string
		temps  []float64
		window int
		want   Trend
	}{
		{"too short", []float64{28, 29, 30}, 3, Stable},
		{"flat", []float64{28, 28, 28, 28}, 3, Stable},
		{"small rise", []float64{28, 28.2, 28.4, 28.5}, 3, Stable},
		{"rising", []float64{28, 28.3, 28.6, 28.9}, 3, Increasing},
		{"falling", []float64{29, 28.7, 28.4, 28.1}, 3, Decreasing},
		{"default window", []float64{28, 28, 28, 29}, 0, Increasing},
		{"window 1", []float64{30, 28, 29}, 1, Increasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTrend(tt.temps, tt.window); got != tt.want {
				t.Errorf("ComputeTrend() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssess(t *testing.T) {
	t.Run("steady at mean", func(t *testing.T) {
		a := Assess(constant(100, 28.0), constant(7, 28.0), 28.0)
		if a.DHW != 0 || a.ProjectedDHW != 0 {
			t.Errorf("DHW = %v, ProjectedDHW = %v, want 0", a.DHW, a.ProjectedDHW)
		}
		if a.Level != Low {
			t.Errorf("Level = %v, want low", a.Level)
		}
		if a.Trend != Stable {
			t.Errorf("Trend = %v, want stable", a.Trend)
		}
	})

	t.Run("sustained heat", func(t *testing.T) {
		history := append(constant(100, 28.0), constant(84, 30.0)...)
		a := Assess(history, constant(7, 30.0), 28.0)
		if !approx(a.DHW, 24) {
			t.Errorf("DHW = %v, want 24", a.DHW)
		}
		if a.Level != High {
			t.Errorf("Level = %v, want high", a.Level)
		}
		if !approx(a.Anomaly, 2) {
			t.Errorf("Anomaly = %v, want 2", a.Anomaly)
		}
		if a.CurrentTemp != 30 {
			t.Errorf("CurrentTemp = %v, want 30", a.CurrentTemp)
		}
	})

	t.Run("forecast only affects projection", func(t *testing.T) {
		a := Assess(constant(84, 28.0), constant(7, 31.0), 28.0)
		if a.DHW != 0 {
			t.Errorf("DHW = %v, want 0", a.DHW)
		}
		if !approx(a.ProjectedDHW, 3) {
			t.Errorf("ProjectedDHW = %v, want 3", a.ProjectedDHW)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		a := Assess(nil, nil, 28)
		if a.Level != Low || a.DHW != 0 {
			t.Errorf("unexpected assessment %+v", a)
		}
	})
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		28.123:  28.12,
		28.125:  28.13,
		3.0:     3,
		24.0001: 24,
	}
	for in, want := range tests {
		if got := Round2(in); !approx(got, want) {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestReferenceScenarios(t *testing.T) {
	const threshold = 29.0

	cool := constant(100, 28.0)
	dhw := ComputeDHW(cool, threshold, 12)
	if dhw != 0 {
		t.Errorf("100 days at 28.0: DHW = %v, want 0", dhw)
	}
	if lvl := AssessRisk(dhw, cool[len(cool)-1], threshold); lvl != Low {
		t.Errorf("100 days at 28.0: level = %v, want low", lvl)
	}

	hot := constant(84, threshold+2)
	dhw = ComputeDHW(hot, threshold, 12)
	if !approx(dhw, 24) {
		t.Errorf("84 days at +2: DHW = %v, want 24", dhw)
	}
	if lvl := AssessRisk(dhw, hot[len(hot)-1], threshold); lvl != High {
		t.Errorf("84 days at +2: level = %v, want high", lvl)
	}

	if lvl := AssessRisk(5, threshold+0.1, threshold); lvl != High {
		t.Errorf("dhw 5 with small anomaly: level = %v, want high", lvl)
	}
	if lvl := AssessRisk(0, threshold+2.5, threshold); lvl != High {
		t.Errorf("dhw 0 with anomaly 2.5: level = %v, want high", lvl)
	}
}
