package backtest

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/gregtusar/pairs/pkg/models"
)

// RandomWalk returns cumsum(N(0,1)) + 100 drawn from the given seed.
func RandomWalk(limit int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, limit)
	level := 100.0
	for i := range out {
		level += rng.NormFloat64()
		out[i] = level
	}
	return out
}

// SyntheticProvider serves seeded random walks for offline runs. Each symbol
// must be given its seed explicitly.
type SyntheticProvider struct {
	Seeds map[string]int64
}

func (p *SyntheticProvider) Fetch(_ context.Context, symbol, interval string, limit int) (*models.PriceSeries, error) {
	seed, ok := p.Seeds[symbol]
	if !ok {
		return nil, fmt.Errorf("no seed configured for %s", symbol)
	}
	return &models.PriceSeries{
		Symbol:   symbol,
		Interval: interval,
		Values:   RandomWalk(limit, seed),
	}, nil
}

// SeedSymbols assigns base, base+1, ... to symbols in order.
func SeedSymbols(symbols []string, base int64) map[string]int64 {
	seeds := make(map[string]int64, len(symbols))
	for i, s := range symbols {
		seeds[s] = base + int64(i)
	}
	return seeds
}
