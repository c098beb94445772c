package backtest

import (
	"context"
	"fmt"

	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/sirupsen/logrus"
)

type SeriesSource interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) (*models.PriceSeries, error)
}

// Runner backtests a list of pairs, one independent simulation per pair.
type Runner struct {
	source   SeriesSource
	cfg      Config
	interval string
	limit    int
	logger   *logrus.Logger
	metrics  *metrics.Registry
}

func NewRunner(source SeriesSource, cfg Config, interval string, limit int, logger *logrus.Logger, m *metrics.Registry) *Runner {
	return &Runner{
		source:   source,
		cfg:      cfg,
		interval: interval,
		limit:    limit,
		logger:   logger,
		metrics:  m,
	}
}

// Frame fetches and aligns both legs and builds the backtest frame.
func (r *Runner) Frame(ctx context.Context, pair models.Pair) (*Frame, error) {
	s1, err := r.source.Fetch(ctx, pair.Symbol1, r.interval, r.limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pair.Symbol1, err)
	}
	s2, err := r.source.Fetch(ctx, pair.Symbol2, r.interval, r.limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pair.Symbol2, err)
	}
	y, x, err := analytics.Align(s1, s2)
	if err != nil {
		return nil, err
	}
	return NewFrame(y, x)
}

// RunPair backtests one pair.
func (r *Runner) RunPair(ctx context.Context, pair models.Pair) (models.BacktestSummary, []models.Trade, error) {
	frame, err := r.Frame(ctx, pair)
	if err != nil {
		return models.BacktestSummary{Pair: pair, Error: err.Error()}, nil, err
	}
	trades, err := Simulate(frame, r.cfg)
	if err != nil {
		return models.BacktestSummary{Pair: pair, Error: err.Error()}, nil, err
	}
	r.metrics.ObserveTrades(len(trades))
	return Summarize(pair, frame.HedgeRatio, trades), trades, nil
}

// Run backtests every pair. A failing pair yields a summary row carrying
// its error and does not stop the batch.
func (r *Runner) Run(ctx context.Context, pairs []models.Pair) []models.BacktestSummary {
	summaries := make([]models.BacktestSummary, 0, len(pairs))
	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		summary, _, err := r.RunPair(ctx, pair)
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"symbol_1": pair.Symbol1,
				"symbol_2": pair.Symbol2,
			}).Error("Backtest failed")
		} else {
			r.logger.WithFields(logrus.Fields{
				"pair":      pair.String(),
				"trades":    summary.Trades,
				"total_pnl": summary.TotalPnL,
			}).Info("Backtest complete")
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
