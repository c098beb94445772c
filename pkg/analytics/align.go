package analytics

import (
	"fmt"
	"math"

	"github.com/gregtusar/pairs/pkg/models"
)

// Align inner-joins two price series on their time index and drops any
// observation where either side is not finite. Series without an index are
// aligned positionally and must have equal length.
func Align(a, b *models.PriceSeries) (y, x []float64, err error) {
	if a == nil || b == nil {
		return nil, nil, fmt.Errorf("%w: nil series", ErrInsufficientData)
	}

	if a.Times == nil || b.Times == nil {
		if a.Len() != b.Len() {
			return nil, nil, fmt.Errorf("%w: %s has %d observations, %s has %d",
				ErrDimensionMismatch, a.Symbol, a.Len(), b.Symbol, b.Len())
		}
		y = make([]float64, 0, a.Len())
		x = make([]float64, 0, b.Len())
		for i := range a.Values {
			if finite(a.Values[i]) && finite(b.Values[i]) {
				y = append(y, a.Values[i])
				x = append(x, b.Values[i])
			}
		}
		return y, x, nil
	}

	if len(a.Times) != len(a.Values) || len(b.Times) != len(b.Values) {
		return nil, nil, fmt.Errorf("%w: index and values differ in length", ErrDimensionMismatch)
	}

	index := make(map[int64]int, len(b.Times))
	for i, t := range b.Times {
		index[t] = i
	}

	y = make([]float64, 0, a.Len())
	x = make([]float64, 0, a.Len())
	for i, t := range a.Times {
		j, ok := index[t]
		if !ok {
			continue
		}
		if finite(a.Values[i]) && finite(b.Values[j]) {
			y = append(y, a.Values[i])
			x = append(x, b.Values[j])
		}
	}
	return y, x, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
