package models

// Trade is one simulated round trip in a backtest.
type Trade struct {
	Side        int     `json:"side"` // 1 long spread, -1 short spread
	EntryIndex  int     `json:"entry_index"`
	EntryPrice1 float64 `json:"entry_price_1"`
	EntryPrice2 float64 `json:"entry_price_2"`
	ExitIndex   int     `json:"exit_index"`
	ExitPrice1  float64 `json:"exit_price_1"`
	ExitPrice2  float64 `json:"exit_price_2"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// BacktestSummary aggregates the closed trades of one pair.
type BacktestSummary struct {
	Pair
	HedgeRatio float64 `json:"hedge_ratio"`
	Trades     int     `json:"trades"`
	TotalPnL   float64 `json:"total_pnl"`
	MeanPnL    float64 `json:"mean_pnl"`
	WinRate    float64 `json:"win_rate"`
	Error      string  `json:"error,omitempty"`
}
