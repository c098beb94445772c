package analytics

import (
	"fmt"
	"math"

	"github.com/gregtusar/pairs/pkg/models"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinRegressionObservations is the smallest sample the static estimator accepts.
const MinRegressionObservations = 3

// StaticHedgeRatio fits y = alpha + beta*x by ordinary least squares.
func StaticHedgeRatio(y, x []float64) (models.HedgeEstimate, error) {
	if len(y) != len(x) {
		return models.HedgeEstimate{}, fmt.Errorf("%w: y has %d observations, x has %d", ErrDimensionMismatch, len(y), len(x))
	}
	if len(y) < MinRegressionObservations {
		return models.HedgeEstimate{}, fmt.Errorf("%w: %d paired observations, need %d", ErrInsufficientData, len(y), MinRegressionObservations)
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return models.HedgeEstimate{}, fmt.Errorf("%w: regressor has no variance", ErrDegenerateVariance)
	}
	return models.HedgeEstimate{Beta: beta, Alpha: alpha}, nil
}

// olsFit is a multiple regression without an implicit constant.
type olsFit struct {
	params []float64
	bse    []float64
	ssr    float64
	nobs   int
	k      int
}

func fitOLS(y []float64, design *mat.Dense) (*olsFit, error) {
	n, k := design.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d rows for %d observations", ErrDimensionMismatch, n, len(y))
	}
	if n <= k {
		return nil, fmt.Errorf("%w: %d observations for %d regressors", ErrInsufficientData, n, k)
	}

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateVariance, err)
	}

	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(design.T(), yv)
	var params mat.VecDense
	params.MulVec(&inv, &xty)

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &params)
	resid.SubVec(yv, &fitted)
	ssr := mat.Dot(&resid, &resid)

	sigma2 := ssr / float64(n-k)
	bse := make([]float64, k)
	for i := range bse {
		bse[i] = math.Sqrt(sigma2 * inv.At(i, i))
	}

	return &olsFit{
		params: mat.Col(nil, 0, &params),
		bse:    bse,
		ssr:    ssr,
		nobs:   n,
		k:      k,
	}, nil
}

func (f *olsFit) tvalue(i int) float64 {
	return f.params[i] / f.bse[i]
}

// aic is the Akaike criterion of a Gaussian likelihood with no constant term.
func (f *olsFit) aic() float64 {
	nobs := float64(f.nobs)
	llf := -nobs/2*math.Log(2*math.Pi) - nobs/2*math.Log(f.ssr/nobs) - nobs/2
	return -2*llf + 2*float64(f.k)
}
