package analytics

import (
	"fmt"

	"github.com/gregtusar/pairs/pkg/models"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultKalmanDelta controls how fast the hedge ratio adapts. Smaller
	// values give a smoother, slower-moving estimate.
	DefaultKalmanDelta = 1e-5
	// DefaultObservationVariance is the fixed measurement noise of y_t.
	DefaultObservationVariance = 1.0
)

// KalmanHedge tracks the state [beta, alpha] of y_t = beta_t*x_t + alpha_t + v_t
// under a random-walk transition. It filters forward only.
type KalmanHedge struct {
	obsVar  float64
	q       *mat.SymDense
	state   *mat.VecDense
	cov     *mat.SymDense
	started bool
}

// NewKalmanHedge starts from state mean [0, 0] and identity covariance with
// process noise delta/(1-delta)*I.
func NewKalmanHedge(delta float64) *KalmanHedge {
	if delta <= 0 || delta >= 1 {
		delta = DefaultKalmanDelta
	}
	q := delta / (1 - delta)

	return &KalmanHedge{
		obsVar: DefaultObservationVariance,
		q:      mat.NewSymDense(2, []float64{q, 0, 0, q}),
		state:  mat.NewVecDense(2, []float64{0, 0}),
		cov:    mat.NewSymDense(2, []float64{1, 0, 0, 1}),
	}
}

// Update folds one observation into the filter and returns the filtered
// hedge ratio and intercept. The first observation corrects the initial
// state directly; later ones are predicted forward before correction.
func (k *KalmanHedge) Update(y, x float64) (beta, alpha float64) {
	if k.started {
		// Identity transition leaves the mean unchanged and inflates the covariance.
		k.cov.AddSym(k.cov, k.q)
	}
	k.started = true

	h := mat.NewVecDense(2, []float64{x, 1})
	innovation := y - mat.Dot(h, k.state)

	var ph mat.VecDense
	ph.MulVec(k.cov, h)
	s := mat.Dot(h, &ph) + k.obsVar

	k.state.AddScaledVec(k.state, innovation/s, &ph)
	k.cov.SymRankOne(k.cov, -1/s, &ph)

	return k.state.AtVec(0), k.state.AtVec(1)
}

// State returns the current filtered hedge ratio and intercept.
func (k *KalmanHedge) State() (beta, alpha float64) {
	return k.state.AtVec(0), k.state.AtVec(1)
}

// AdaptiveHedgeRatios runs the filter over the aligned pair and returns one
// (beta_t, alpha_t) per observation.
func AdaptiveHedgeRatios(y, x []float64, delta float64) (models.HedgeEstimate, error) {
	if len(y) != len(x) {
		return models.HedgeEstimate{}, fmt.Errorf("%w: y has %d observations, x has %d", ErrDimensionMismatch, len(y), len(x))
	}
	if len(y) == 0 {
		return models.HedgeEstimate{}, fmt.Errorf("%w: empty series", ErrInsufficientData)
	}

	kf := NewKalmanHedge(delta)
	betas := make([]float64, len(y))
	alphas := make([]float64, len(y))
	for i := range y {
		betas[i], alphas[i] = kf.Update(y[i], x[i])
	}
	return models.HedgeEstimate{Betas: betas, Alphas: alphas}, nil
}
