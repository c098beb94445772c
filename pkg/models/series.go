package models

import (
	"time"
)

// PriceSeries is a time-ordered sequence of closing prices for one instrument.
// Times holds the bar open time in unix milliseconds and may be nil when the
// series carries no index, in which case alignment is positional.
type PriceSeries struct {
	Symbol   string
	Interval string
	Times    []int64
	Values   []float64
}

func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// Last returns the most recent observation.
func (s *PriceSeries) Last() float64 {
	if s.Len() == 0 {
		return 0
	}
	return s.Values[len(s.Values)-1]
}

func (s *PriceSeries) End() time.Time {
	if len(s.Times) == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.Times[len(s.Times)-1])
}

// HedgeEstimate is the output of a hedge-ratio estimator. Static estimates
// carry a single Beta/Alpha; adaptive estimates carry one value per step in
// Betas/Alphas and leave Beta/Alpha unset.
type HedgeEstimate struct {
	Beta   float64
	Alpha  float64
	Betas  []float64
	Alphas []float64
}

func StaticHedge(beta float64) HedgeEstimate {
	return HedgeEstimate{Beta: beta}
}

func (h HedgeEstimate) Adaptive() bool {
	return h.Betas != nil
}
