package models

import (
	"encoding/json"
	"math"
)

// CointegrationResult is the outcome of one Engle-Granger scan of a pair.
type CointegrationResult struct {
	Pair
	Cointegrated  bool    `json:"cointegration_flag"`
	PValue        float64 `json:"p_value"`
	TStat         float64 `json:"t_value"`
	CriticalValue float64 `json:"critical_value"`
	HedgeRatio    float64 `json:"hedge_ratio"`
	ZeroCrossings int     `json:"zero_crossings"`
	LatestZScore  float64 `json:"latest_zscore"`
}

// ComponentScores are the min-max normalized ranking inputs.
type ComponentScores struct {
	PValue        float64 `json:"score_p"`
	ZScore        float64 `json:"score_z"`
	ZeroCrossings float64 `json:"score_cross"`
	HedgeRatio    float64 `json:"score_hedge"`
	TStat         float64 `json:"score_t"`
}

// Vector returns the scores in ranking-matrix column order.
func (c ComponentScores) Vector() []float64 {
	return []float64{c.PValue, c.ZScore, c.ZeroCrossings, c.HedgeRatio, c.TStat}
}

// RankedPair is a cointegrated pair with its composite ranking score.
type RankedPair struct {
	CointegrationResult
	Scores     ComponentScores `json:"scores"`
	FinalScore float64         `json:"final_score"`
}

type cointegrationJSON struct {
	Pair
	Cointegrated  bool     `json:"cointegration_flag"`
	PValue        float64  `json:"p_value"`
	TStat         *float64 `json:"t_value"`
	CriticalValue float64  `json:"critical_value"`
	HedgeRatio    float64  `json:"hedge_ratio"`
	ZeroCrossings int      `json:"zero_crossings"`
	LatestZScore  float64  `json:"latest_zscore"`
}

func (c CointegrationResult) toJSON() cointegrationJSON {
	out := cointegrationJSON{
		Pair:          c.Pair,
		Cointegrated:  c.Cointegrated,
		PValue:        c.PValue,
		CriticalValue: c.CriticalValue,
		HedgeRatio:    c.HedgeRatio,
		ZeroCrossings: c.ZeroCrossings,
		LatestZScore:  c.LatestZScore,
	}
	// A perfect fit has t = -Inf, which JSON cannot carry.
	if !math.IsInf(c.TStat, 0) && !math.IsNaN(c.TStat) {
		t := c.TStat
		out.TStat = &t
	}
	return out
}

func (c CointegrationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toJSON())
}

func (r RankedPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		cointegrationJSON
		Scores     ComponentScores `json:"scores"`
		FinalScore float64         `json:"final_score"`
	}{r.CointegrationResult.toJSON(), r.Scores, r.FinalScore})
}
