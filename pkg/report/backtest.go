package report

import (
	"strconv"

	"github.com/gregtusar/pairs/pkg/backtest"
	"github.com/gregtusar/pairs/pkg/models"
)

var backtestHeader = []string{
	"symbol_1", "symbol_2", "hedge_ratio", "trades", "total_pnl", "mean_pnl", "win_rate", "error",
}

// WriteBacktest writes one row per pair. Failed pairs keep their error text
// and zero statistics.
func WriteBacktest(path string, summaries []models.BacktestSummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Symbol1,
			s.Symbol2,
			formatFloat(s.HedgeRatio),
			strconv.Itoa(s.Trades),
			formatFloat(s.TotalPnL),
			formatFloat(s.MeanPnL),
			formatFloat(s.WinRate),
			s.Error,
		})
	}
	return writeCSV(path, backtestHeader, rows)
}

var frameHeader = []string{"price_1", "price_2", "spread", "zscore"}

func WriteFrame(path string, f *backtest.Frame) error {
	rows := make([][]string, len(f.ZScore))
	for i := range f.ZScore {
		rows[i] = []string{
			formatFloat(f.Price1[i]),
			formatFloat(f.Price2[i]),
			formatFloat(f.Spread[i]),
			formatFloat(f.ZScore[i]),
		}
	}
	return writeCSV(path, frameHeader, rows)
}

var tradeHeader = []string{
	"side", "entry_index", "entry_price_1", "entry_price_2",
	"exit_index", "exit_price_1", "exit_price_2", "realized_pnl",
}

func WriteTrades(path string, trades []models.Trade) error {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		side := "long"
		if t.Side < 0 {
			side = "short"
		}
		rows = append(rows, []string{
			side,
			strconv.Itoa(t.EntryIndex),
			formatFloat(t.EntryPrice1),
			formatFloat(t.EntryPrice2),
			strconv.Itoa(t.ExitIndex),
			formatFloat(t.ExitPrice1),
			formatFloat(t.ExitPrice2),
			formatFloat(t.RealizedPnL),
		})
	}
	return writeCSV(path, tradeHeader, rows)
}
