package models

import (
	"context"
	"errors"
	"fmt"
)

// AR is a linear autoregressive learner. Coefficients are estimated from the
// sample autocorrelation with the Yule-Walker equations, solved by
// Levinson-Durbin recursion. The order equals the window size.
//
// AR assumes the supervised examples come from one series in order, as built
// by Forecaster: X[0] followed by y is the original series.
type AR struct{}

// NewAR returns an autoregressive learner.
func NewAR() *AR { return &AR{} }

func (a *AR) Name() string { return "ar" }

// Fit estimates AR(p) coefficients with p = len(X[0]).
func (a *AR) Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, errors.New("ar: empty or mismatched training set")
	}

	p := len(X[0])
	series := make([]float64, 0, p+len(y))
	series = append(series, X[0]...)
	series = append(series, y...)

	if len(series) < 2*p {
		return nil, fmt.Errorf("ar: need at least %d points for order %d, got %d", 2*p, p, len(series))
	}

	mean := computeMean(series)
	centered := make([]float64, len(series))
	for i, v := range series {
		centered[i] = v - mean
	}

	coeffs, err := fitAR(centered, p)
	if err != nil {
		return nil, fmt.Errorf("ar: %w", err)
	}

	return &arRegressor{mean: mean, coeffs: coeffs}, nil
}

type arRegressor struct {
	mean   float64
	coeffs []float64 // coeffs[i] applies to lag i+1
}

func (r *arRegressor) PredictNext(window []float64) float64 {
	pred := r.mean
	n := len(window)
	for i := 0; i < len(r.coeffs) && i < n; i++ {
		pred += r.coeffs[i] * (window[n-1-i] - r.mean)
	}
	return pred
}

// computeMean calculates the arithmetic mean of a series
func computeMean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// computeVariance calculates the variance of a series
func computeVariance(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	mean := computeMean(series)
	var sumSq float64
	for _, v := range series {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(series))
}

// fitAR estimates AR coefficients using Yule-Walker equations with
// Levinson-Durbin. A constant series yields all-zero coefficients, so the
// model predicts the mean.
func fitAR(centered []float64, p int) ([]float64, error) {
	if p == 0 {
		return []float64{}, nil
	}

	if computeVariance(centered) < 1e-10 {
		return make([]float64, p), nil
	}

	acf := make([]float64, p+1)
	for k := 0; k <= p; k++ {
		acf[k] = autocorr(centered, k)
	}

	return levinsonDurbin(acf, p)
}

// autocorr computes autocorrelation at given lag
func autocorr(series []float64, lag int) float64 {
	if lag < 0 || lag >= len(series) {
		return 0
	}

	n := len(series)
	mean := computeMean(series)

	var c0, ck float64
	for i := range n {
		c0 += (series[i] - mean) * (series[i] - mean)
	}

	for i := 0; i < n-lag; i++ {
		ck += (series[i] - mean) * (series[i+lag] - mean)
	}

	if c0 == 0 {
		return 0
	}

	return ck / c0
}

// levinsonDurbin solves the Yule-Walker equations for p coefficients.
func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	prev := make([]float64, p+1)
	cur := make([]float64, p+1)
	v := acf[0]

	for k := 1; k <= p; k++ {
		if v <= 0 {
			return nil, errors.New("numerical instability in Levinson-Durbin")
		}

		num := acf[k]
		for j := 1; j < k; j++ {
			num -= prev[j] * acf[k-j]
		}
		reflection := num / v

		cur[k] = reflection
		for j := 1; j < k; j++ {
			cur[j] = prev[j] - reflection*prev[k-j]
		}

		v *= 1 - reflection*reflection
		if v < 0 {
			return nil, errors.New("negative variance in Levinson-Durbin")
		}
		copy(prev, cur)
	}

	return append([]float64(nil), cur[1:]...), nil
}
