package analytics

import (
	"math/rand"
)

// randomWalk returns cumsum(N(0,1)) + start for a fixed seed.
func randomWalk(n int, start float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	level := start
	for i := range out {
		level += rng.NormFloat64()
		out[i] = level
	}
	return out
}

// cointegratedPair builds y = beta*x + alpha + AR(1) noise around a random-walk x.
func cointegratedPair(n int, beta, alpha float64, seed int64) (y, x []float64) {
	x = randomWalk(n, 100, seed)
	rng := rand.New(rand.NewSource(seed + 1))
	y = make([]float64, n)
	noise := 0.0
	for i := range x {
		noise = 0.5*noise + rng.NormFloat64()
		y[i] = beta*x[i] + alpha + noise
	}
	return y, x
}
