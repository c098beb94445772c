package analytics

import (
	"fmt"
	"math"

	"github.com/gregtusar/pairs/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// SignificanceLevel is the p-value a pair must beat to be flagged cointegrated.
const SignificanceLevel = 0.05

// perfectFitR2 marks a regression so tight that its residual carries no
// information for a unit-root test.
var perfectFitR2 = 1 - 100*math.Sqrt(2.220446049250313e-16)

// EngleGrangerResult is the residual-based cointegration test of y on x.
type EngleGrangerResult struct {
	TStat          float64
	PValue         float64
	CriticalValues CriticalValues
	Hedge          models.HedgeEstimate
	UsedLag        int
}

// EngleGranger regresses y on x with a constant and tests the residual for a
// unit root.
func EngleGranger(y, x []float64) (EngleGrangerResult, error) {
	hedge, err := StaticHedgeRatio(y, x)
	if err != nil {
		return EngleGrangerResult{}, err
	}

	res := EngleGrangerResult{
		Hedge:          hedge,
		CriticalValues: EngleGrangerCriticalValues(len(y) - 1),
	}

	if stat.RSquared(x, y, nil, hedge.Alpha, hedge.Beta) >= perfectFitR2 {
		res.TStat = math.Inf(-1)
		res.PValue = 0
		return res, nil
	}

	resid, err := Spread(y, x, hedge)
	if err != nil {
		return EngleGrangerResult{}, err
	}
	adf, err := ADF(resid)
	if err != nil {
		return EngleGrangerResult{}, fmt.Errorf("residual unit-root test: %w", err)
	}

	res.TStat = adf.TStat
	res.PValue = EngleGrangerPValue(adf.TStat)
	res.UsedLag = adf.UsedLag
	return res, nil
}

// IsCointegrated requires both a p-value strictly below the significance
// level and a statistic beyond the 5% critical value.
func IsCointegrated(pValue, tStat, criticalValue float64) bool {
	return pValue < SignificanceLevel && tStat < criticalValue
}

// TestPair aligns two price series, runs the Engle-Granger test and scores
// the spread built from the adaptive hedge-ratio path. The reported hedge
// ratio is the mean of that path.
func TestPair(s1, s2 *models.PriceSeries, delta float64) (*models.CointegrationResult, error) {
	y, x, err := Align(s1, s2)
	if err != nil {
		return nil, err
	}
	return TestAligned(models.NewPair(s1.Symbol, s2.Symbol), y, x, delta)
}

// TestAligned is TestPair for series that are already aligned.
func TestAligned(pair models.Pair, y, x []float64, delta float64) (*models.CointegrationResult, error) {
	eg, err := EngleGranger(y, x)
	if err != nil {
		return nil, err
	}

	hedge, err := AdaptiveHedgeRatios(y, x, delta)
	if err != nil {
		return nil, err
	}
	spread, err := Spread(y, x, hedge)
	if err != nil {
		return nil, err
	}
	z, err := PopulationZScore(spread)
	if err != nil {
		return nil, err
	}

	crit := eg.CriticalValues.FivePercent
	return &models.CointegrationResult{
		Pair:          pair,
		Cointegrated:  IsCointegrated(eg.PValue, eg.TStat, crit),
		PValue:        eg.PValue,
		TStat:         eg.TStat,
		CriticalValue: crit,
		HedgeRatio:    stat.Mean(hedge.Betas, nil),
		ZeroCrossings: ZeroCrossings(spread),
		LatestZScore:  z[len(z)-1],
	}, nil
}
