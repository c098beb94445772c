package analytics

import (
	"fmt"
	"math"
	"testing"

	"github.com/gregtusar/pairs/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func candidate(i int, p, tstat, hedge, z float64, crossings int) models.CointegrationResult {
	return models.CointegrationResult{
		Pair:          models.NewPair(fmt.Sprintf("A%dUSDT", i), fmt.Sprintf("B%dUSDT", i)),
		Cointegrated:  true,
		PValue:        p,
		TStat:         tstat,
		CriticalValue: -3.36,
		HedgeRatio:    hedge,
		ZeroCrossings: crossings,
		LatestZScore:  z,
	}
}

func candidatePool() []models.CointegrationResult {
	return []models.CointegrationResult{
		candidate(0, 0.001, -5.1, 0.8, 2.4, 40),
		candidate(1, 0.020, -3.9, 1.6, -0.3, 22),
		candidate(2, 0.004, -4.6, 12.0, 1.1, 35),
		candidate(3, 0.030, -3.6, 0.2, -2.8, 18),
		candidate(4, 0.010, -4.2, 3.1, 0.7, 29),
		candidate(5, 0.045, -3.4, 55.0, -1.9, 12),
		candidate(6, 0.002, -4.9, 0.5, 0.1, 44),
	}
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, MinMax([]float64{2, 4, 6}))
	assert.Equal(t, []float64{0, 0, 0}, MinMax([]float64{7, 7, 7}))
	assert.Empty(t, MinMax(nil))
	assert.Equal(t, []float64{1, 0, 0.5, 1, 0}, MinMax([]float64{math.Inf(1), 2, 4, 6, math.Inf(-1)}))
	assert.Equal(t, []float64{1, 0, 0}, MinMax([]float64{math.Inf(1), 3, 3}))
	assert.Equal(t, []float64{0, 1}, MinMax([]float64{math.NaN(), math.Inf(1)}))
}

func TestRankPerfectFitKeepsTStatScores(t *testing.T) {
	baseline := Rank(candidatePool(), MaxHedgeRatio)
	want := make(map[string]float64, len(baseline.Pairs))
	for _, rp := range baseline.Pairs {
		want[rp.Key()] = rp.Scores.TStat
	}

	perfect := candidate(7, 0, math.Inf(-1), 1.1, 1.5, 30)
	ranking := Rank(append(candidatePool(), perfect), MaxHedgeRatio)
	require.Len(t, ranking.Pairs, 8)

	for _, rp := range ranking.Pairs {
		if rp.Pair == perfect.Pair {
			assert.Equal(t, 1.0, rp.Scores.TStat)
			continue
		}
		assert.InDelta(t, want[rp.Key()], rp.Scores.TStat, 1e-12, rp.Key())
	}
	for _, w := range ranking.Weights {
		assert.False(t, math.IsNaN(w))
	}
}

func TestEligible(t *testing.T) {
	pool := candidatePool()
	pool[1].Cointegrated = false
	pool[2].HedgeRatio = 10000
	pool[3].HedgeRatio = -25000

	got := Eligible(pool, MaxHedgeRatio)
	require.Len(t, got, 4)
	for _, r := range got {
		assert.True(t, r.Cointegrated)
		assert.True(t, WithinHedgeLimit(r.HedgeRatio, MaxHedgeRatio))
	}
}

func TestRankOrdersByFinalScore(t *testing.T) {
	ranking := Rank(candidatePool(), MaxHedgeRatio)
	require.Len(t, ranking.Pairs, 7)
	assert.InDelta(t, 1, floats.Sum(ranking.Weights), 1e-9)

	for i := 1; i < len(ranking.Pairs); i++ {
		assert.GreaterOrEqual(t, ranking.Pairs[i-1].FinalScore, ranking.Pairs[i].FinalScore)
	}

	for _, rp := range ranking.Pairs {
		for _, v := range rp.Scores.Vector() {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.InDelta(t, floats.Dot(rp.Scores.Vector(), ranking.Weights), rp.FinalScore, 1e-12)
	}

	top := ranking.Top(DefaultTopK)
	assert.Len(t, top, DefaultTopK)
	assert.Equal(t, ranking.Pairs[:5], top)
}

func TestRankIsIdempotent(t *testing.T) {
	first := Rank(candidatePool(), MaxHedgeRatio)
	second := Rank(candidatePool(), MaxHedgeRatio)

	require.Len(t, second.Pairs, len(first.Pairs))
	for i := range first.Pairs {
		assert.Equal(t, first.Pairs[i].Pair, second.Pairs[i].Pair)
		assert.Equal(t, first.Pairs[i].FinalScore, second.Pairs[i].FinalScore)
	}
	assert.Equal(t, first.Weights, second.Weights)
}

func TestRankConstantComponent(t *testing.T) {
	pool := candidatePool()
	for i := range pool {
		pool[i].ZeroCrossings = 25
	}

	var ranking *Ranking
	require.NotPanics(t, func() { ranking = Rank(pool, MaxHedgeRatio) })
	for _, rp := range ranking.Pairs {
		assert.Equal(t, 0.0, rp.Scores.ZeroCrossings)
	}
}

func TestRankSmallPools(t *testing.T) {
	empty := Rank(nil, MaxHedgeRatio)
	assert.Empty(t, empty.Pairs)
	assert.Empty(t, empty.Top(DefaultTopK))

	single := Rank(candidatePool()[:1], MaxHedgeRatio)
	require.Len(t, single.Pairs, 1)
	assert.InDelta(t, 1, floats.Sum(single.Weights), 1e-12)
	assert.Equal(t, 0.0, single.Pairs[0].FinalScore)
}

func TestRankExcludesOutliers(t *testing.T) {
	pool := candidatePool()
	pool[0].HedgeRatio = 20000

	ranking := Rank(pool, MaxHedgeRatio)
	require.Len(t, ranking.Pairs, 6)
	for _, rp := range ranking.Pairs {
		assert.NotEqual(t, pool[0].Pair, rp.Pair)
	}
}
