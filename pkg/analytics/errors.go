// Package analytics implements the statistical core of the pairs scanner:
// spread construction, hedge-ratio estimation, the Engle-Granger
// cointegration test and the composite ranking of cointegrated pairs.
//
// Every function here is pure. Callers own logging and failure isolation.
package analytics

import "errors"

var (
	// ErrDimensionMismatch is returned when two series disagree in length or index.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInsufficientData is returned when too few observations remain for an estimate.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateVariance is returned when a zero-variance input makes a statistic undefined.
	ErrDegenerateVariance = errors.New("degenerate variance")
)
