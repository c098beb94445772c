package analytics

import (
	"fmt"
	"math"

	"github.com/gregtusar/pairs/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// Spread computes y_t - beta_t*x_t - alpha_t. A static estimate applies the
// same beta and alpha to every step.
func Spread(y, x []float64, h models.HedgeEstimate) ([]float64, error) {
	if len(y) != len(x) {
		return nil, fmt.Errorf("%w: y has %d observations, x has %d", ErrDimensionMismatch, len(y), len(x))
	}
	if h.Adaptive() {
		if len(h.Betas) != len(y) {
			return nil, fmt.Errorf("%w: %d hedge ratios for %d observations", ErrDimensionMismatch, len(h.Betas), len(y))
		}
		if h.Alphas != nil && len(h.Alphas) != len(y) {
			return nil, fmt.Errorf("%w: %d intercepts for %d observations", ErrDimensionMismatch, len(h.Alphas), len(y))
		}
	}

	spread := make([]float64, len(y))
	for i := range y {
		beta, alpha := h.Beta, h.Alpha
		if h.Adaptive() {
			beta = h.Betas[i]
			alpha = 0
			if h.Alphas != nil {
				alpha = h.Alphas[i]
			}
		}
		spread[i] = y[i] - beta*x[i] - alpha
	}
	return spread, nil
}

// ZScore normalizes the spread by its own mean and sample standard deviation
// over the whole supplied window. A constant spread has no defined Z-score
// and yields ErrDegenerateVariance.
func ZScore(spread []float64) ([]float64, error) {
	return standardize(spread, false)
}

// PopulationZScore is ZScore with the population standard deviation. The
// cointegration scan reports its latest Z-score on this scale.
func PopulationZScore(spread []float64) ([]float64, error) {
	return standardize(spread, true)
}

func standardize(spread []float64, population bool) ([]float64, error) {
	if len(spread) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 observations for a z-score, got %d", ErrInsufficientData, len(spread))
	}

	var mean, std float64
	if population {
		var variance float64
		mean, variance = stat.PopMeanVariance(spread, nil)
		std = math.Sqrt(variance)
	} else {
		mean, std = stat.MeanStdDev(spread, nil)
	}
	if std == 0 || math.IsNaN(std) {
		return nil, fmt.Errorf("%w: spread standard deviation is %v", ErrDegenerateVariance, std)
	}

	z := make([]float64, len(spread))
	for i, s := range spread {
		z[i] = (s - mean) / std
	}
	return z, nil
}

// LatestZScore returns the last Z-score of the spread built from y, x and h.
func LatestZScore(y, x []float64, h models.HedgeEstimate) (float64, error) {
	spread, err := Spread(y, x, h)
	if err != nil {
		return 0, err
	}
	z, err := ZScore(spread)
	if err != nil {
		return 0, err
	}
	return z[len(z)-1], nil
}

// ZeroCrossings counts the steps where the sign of the spread changes.
// A step into or out of an exact zero counts as a change.
func ZeroCrossings(spread []float64) int {
	crossings := 0
	for i := 1; i < len(spread); i++ {
		if sign(spread[i]) != sign(spread[i-1]) {
			crossings++
		}
	}
	return crossings
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
