package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ADFResult is an augmented Dickey-Fuller regression without deterministic terms.
type ADFResult struct {
	TStat   float64
	UsedLag int
	NObs    int
	AIC     float64
}

// maxADFLag is Schwert's rule ceil(12*(n/100)^(1/4)), capped so the
// regression keeps enough rows.
func maxADFLag(n int) int {
	lag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 1; limit < lag {
		lag = limit
	}
	return lag
}

// ADF tests x for a unit root with no constant or trend, choosing the number
// of lagged differences by minimum AIC over a common sample.
func ADF(x []float64) (ADFResult, error) {
	maxLag := maxADFLag(len(x))
	if maxLag < 0 {
		return ADFResult{}, fmt.Errorf("%w: %d observations are too few for a unit-root test", ErrInsufficientData, len(x))
	}

	diff := make([]float64, len(x)-1)
	for i := range diff {
		diff[i] = x[i+1] - x[i]
	}

	bestLag, bestAIC := -1, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		dep, design := adfDesign(x, diff, maxLag, lag)
		fit, err := fitOLS(dep, design)
		if err != nil {
			continue
		}
		if aic := fit.aic(); aic < bestAIC {
			bestLag, bestAIC = lag, aic
		}
	}
	if bestLag < 0 {
		return ADFResult{}, fmt.Errorf("%w: no lag order could be estimated", ErrInsufficientData)
	}

	dep, design := adfDesign(x, diff, bestLag, bestLag)
	fit, err := fitOLS(dep, design)
	if err != nil {
		return ADFResult{}, err
	}

	return ADFResult{
		TStat:   fit.tvalue(0),
		UsedLag: bestLag,
		NObs:    fit.nobs,
		AIC:     bestAIC,
	}, nil
}

// adfDesign builds Δx_{t+1} on [x_t, Δx_t, ..., Δx_{t-lag+1}] for the rows
// that have trim lagged differences available. Lag selection trims every
// candidate to the largest lag so the AIC values share a sample.
func adfDesign(x, diff []float64, trim, lag int) ([]float64, *mat.Dense) {
	rows := len(diff) - trim
	dep := make([]float64, rows)
	design := mat.NewDense(rows, lag+1, nil)
	for r := 0; r < rows; r++ {
		t := trim + r
		dep[r] = diff[t]
		design.Set(r, 0, x[t])
		for j := 1; j <= lag; j++ {
			design.Set(r, j, diff[t-j])
		}
	}
	return dep, design
}

// MacKinnon (1994) response surface for the Engle-Granger test with a
// constant and two variables.
const (
	egTauMax  = 0.92
	egTauMin  = -18.86
	egTauStar = -2.62
)

var (
	egSmallP   = []float64{2.92, 1.5012, 0.039796}
	egLargeP   = []float64{2.1945, 0.64695, -0.29198, -0.042377}
	normalDist = distuv.UnitNormal
)

// EngleGrangerPValue returns the asymptotic p-value of an Engle-Granger
// t-statistic for two series with a constant.
func EngleGrangerPValue(tstat float64) float64 {
	switch {
	case math.IsNaN(tstat):
		return math.NaN()
	case tstat > egTauMax:
		return 1
	case tstat < egTauMin:
		return 0
	case tstat <= egTauStar:
		return normalDist.CDF(polyval(egSmallP, tstat))
	default:
		return normalDist.CDF(polyval(egLargeP, tstat))
	}
}

// CriticalValues are the finite-sample rejection thresholds at 1%, 5% and 10%.
type CriticalValues struct {
	OnePercent  float64
	FivePercent float64
	TenPercent  float64
}

// MacKinnon (2010) coefficients, two variables with a constant.
var egCritical = [3][]float64{
	{-3.89644, -10.9519, -22.527},
	{-3.33613, -6.1101, -6.823},
	{-3.04445, -4.2412, -2.720},
}

// EngleGrangerCriticalValues evaluates the response surface at nobs.
func EngleGrangerCriticalValues(nobs int) CriticalValues {
	inv := 1 / float64(nobs)
	return CriticalValues{
		OnePercent:  polyval(egCritical[0], inv),
		FivePercent: polyval(egCritical[1], inv),
		TenPercent:  polyval(egCritical[2], inv),
	}
}

// polyval evaluates c[0] + c[1]*v + c[2]*v^2 + ...
func polyval(c []float64, v float64) float64 {
	out := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		out = out*v + c[i]
	}
	return out
}
