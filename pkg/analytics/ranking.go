package analytics

import (
	"math"
	"sort"

	"github.com/gregtusar/pairs/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// MaxHedgeRatio excludes pairs whose hedge ratio comes from a numerically
	// degenerate regression.
	MaxHedgeRatio = 10000.0
	// DefaultTopK is the size of the trading selection.
	DefaultTopK = 5
)

const numComponents = 5

// WithinHedgeLimit applies the outlier filter |hedge_ratio| < limit.
func WithinHedgeLimit(hedgeRatio, limit float64) bool {
	return math.Abs(hedgeRatio) < limit
}

// Eligible keeps cointegrated results that pass the outlier filter.
func Eligible(results []models.CointegrationResult, limit float64) []models.CointegrationResult {
	out := make([]models.CointegrationResult, 0, len(results))
	for _, r := range results {
		if r.Cointegrated && WithinHedgeLimit(r.HedgeRatio, limit) {
			out = append(out, r)
		}
	}
	return out
}

// Ranking is the outcome of one composite ranking run. Weights is the
// first-principal-component direction fitted to this candidate set and
// rescaled to sum to one.
type Ranking struct {
	Pairs   []models.RankedPair
	Weights []float64
}

// Top returns the first k ranked pairs.
func (r *Ranking) Top(k int) []models.RankedPair {
	if k < 0 || k > len(r.Pairs) {
		k = len(r.Pairs)
	}
	return r.Pairs[:k]
}

// Rank scores every eligible candidate and sorts them by descending final score.
func Rank(results []models.CointegrationResult, hedgeLimit float64) *Ranking {
	candidates := Eligible(results, hedgeLimit)
	if len(candidates) == 0 {
		return &Ranking{Weights: equalWeights()}
	}

	raw := mat.NewDense(len(candidates), numComponents, nil)
	for i, c := range candidates {
		raw.SetRow(i, rawScores(c))
	}

	features := mat.NewDense(len(candidates), numComponents, nil)
	for j := 0; j < numComponents; j++ {
		features.SetCol(j, MinMax(mat.Col(nil, j, raw)))
	}

	weights := principalWeights(features)

	ranked := make([]models.RankedPair, len(candidates))
	for i, c := range candidates {
		row := features.RawRowView(i)
		ranked[i] = models.RankedPair{
			CointegrationResult: c,
			Scores: models.ComponentScores{
				PValue:        row[0],
				ZScore:        row[1],
				ZeroCrossings: row[2],
				HedgeRatio:    row[3],
				TStat:         row[4],
			},
			FinalScore: floats.Dot(row, weights),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return &Ranking{Pairs: ranked, Weights: weights}
}

func rawScores(r models.CointegrationResult) []float64 {
	return []float64{
		1 - r.PValue,
		math.Abs(r.LatestZScore),
		float64(r.ZeroCrossings),
		-math.Log1p(math.Abs(r.HedgeRatio)),
		-r.TStat,
	}
}

// MinMax rescales v to [0, 1] using the range of its finite values. +Inf
// maps to 1, -Inf and NaN map to 0. A column without finite spread maps its
// finite values to 0.
func MinMax(v []float64) []float64 {
	out := make([]float64, len(v))
	finite := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsInf(x, 0) && !math.IsNaN(x) {
			finite = append(finite, x)
		}
	}

	var lo, span float64
	if len(finite) > 0 {
		lo = floats.Min(finite)
		span = floats.Max(finite) - lo
	}
	for i, x := range v {
		switch {
		case math.IsInf(x, 1):
			out[i] = 1
		case math.IsInf(x, -1), math.IsNaN(x), span == 0:
			out[i] = 0
		default:
			out[i] = (x - lo) / span
		}
	}
	return out
}

// principalWeights returns the first principal axis of the feature matrix
// scaled to sum to one. Dividing by the sum also removes the arbitrary sign
// of the SVD. Pools too small or too flat for a direction get equal weights.
func principalWeights(features *mat.Dense) []float64 {
	rows, _ := features.Dims()
	if rows < 2 {
		return equalWeights()
	}

	var pc stat.PC
	if !pc.PrincipalComponents(features, nil) {
		return equalWeights()
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	w := mat.Col(nil, 0, &vecs)
	sum := floats.Sum(w)
	if math.Abs(sum) < 1e-12 || math.IsNaN(sum) {
		return equalWeights()
	}
	floats.Scale(1/sum, w)
	return w
}

func equalWeights() []float64 {
	w := make([]float64, numComponents)
	for i := range w {
		w[i] = 1.0 / numComponents
	}
	return w
}
