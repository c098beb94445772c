// Package backtest replays the Z-score entry/exit rules over historical
// prices with a fixed hedge ratio and reports realized P&L per trade.
package backtest

import (
	"fmt"

	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/models"
)

const (
	DefaultEntryThreshold = 2.0
	DefaultExitThreshold  = 0.0
)

const (
	flat  = 0
	long  = 1
	short = -1
)

type Config struct {
	EntryThreshold float64
	ExitThreshold  float64
}

func DefaultConfig() Config {
	return Config{EntryThreshold: DefaultEntryThreshold, ExitThreshold: DefaultExitThreshold}
}

// Frame is the aligned history a backtest runs on.
type Frame struct {
	Price1     []float64
	Price2     []float64
	Spread     []float64
	ZScore     []float64
	HedgeRatio float64
}

// NewFrame estimates the static OLS hedge ratio and builds the spread
// y - beta*x and its Z-score over the whole window.
func NewFrame(y, x []float64) (*Frame, error) {
	hedge, err := analytics.StaticHedgeRatio(y, x)
	if err != nil {
		return nil, err
	}
	spread, err := analytics.Spread(y, x, models.StaticHedge(hedge.Beta))
	if err != nil {
		return nil, err
	}
	z, err := analytics.ZScore(spread)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Price1:     y,
		Price2:     x,
		Spread:     spread,
		ZScore:     z,
		HedgeRatio: hedge.Beta,
	}, nil
}

// Simulate walks the frame once holding at most one position. A short is
// opened above +entry and closed at or below -exit; a long is opened below
// -entry and closed at or above +exit. Entries while a position is open
// are ignored, and a position still open at the end is not realized.
func Simulate(f *Frame, cfg Config) ([]models.Trade, error) {
	n := len(f.ZScore)
	if len(f.Price1) != n || len(f.Price2) != n {
		return nil, fmt.Errorf("%w: %d z-scores for %d/%d prices", analytics.ErrDimensionMismatch, n, len(f.Price1), len(f.Price2))
	}

	var trades []models.Trade
	position := flat
	var open models.Trade

	for i, z := range f.ZScore {
		p1, p2 := f.Price1[i], f.Price2[i]

		switch position {
		case flat:
			switch {
			case z > cfg.EntryThreshold:
				position = short
			case z < -cfg.EntryThreshold:
				position = long
			default:
				continue
			}
			open = models.Trade{Side: position, EntryIndex: i, EntryPrice1: p1, EntryPrice2: p2}

		case long:
			if z >= cfg.ExitThreshold {
				trades = append(trades, closeTrade(open, i, p1, p2, f.HedgeRatio))
				position = flat
			}

		case short:
			if z <= -cfg.ExitThreshold {
				trades = append(trades, closeTrade(open, i, p1, p2, f.HedgeRatio))
				position = flat
			}
		}
	}
	return trades, nil
}

// closeTrade realizes side * ((p1_exit - p1_entry) - hedge * (p2_exit - p2_entry)).
func closeTrade(t models.Trade, i int, p1, p2, hedge float64) models.Trade {
	t.ExitIndex = i
	t.ExitPrice1 = p1
	t.ExitPrice2 = p2
	t.RealizedPnL = float64(t.Side) * ((p1 - t.EntryPrice1) - hedge*(p2-t.EntryPrice2))
	return t
}

// PnLs returns the realized P&L of each trade in order.
func PnLs(trades []models.Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.RealizedPnL
	}
	return out
}

// Summarize aggregates trades into the per-pair report row.
func Summarize(pair models.Pair, hedgeRatio float64, trades []models.Trade) models.BacktestSummary {
	s := models.BacktestSummary{Pair: pair, HedgeRatio: hedgeRatio, Trades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	wins := 0
	for _, t := range trades {
		s.TotalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	s.MeanPnL = s.TotalPnL / float64(len(trades))
	s.WinRate = float64(wins) / float64(len(trades))
	return s
}
