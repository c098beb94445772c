package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/backtest"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/gregtusar/pairs/pkg/notify"
	"github.com/gregtusar/pairs/pkg/report"
	"github.com/gregtusar/pairs/pkg/scanner"
	"github.com/gregtusar/pairs/pkg/signal"
	"github.com/sirupsen/logrus"
)

// ErrNoRanking is returned while no scan has produced a selection yet.
var ErrNoRanking = errors.New("no ranking available")

type Universe interface {
	SortedUniverse(ctx context.Context, max int) ([]string, error)
}

type Broadcaster interface {
	Broadcast(event notify.Event)
}

type Options struct {
	MaxSymbols    int
	TopK          int
	MaxHedgeRatio float64
	ScanEvery     time.Duration
	SignalEvery   time.Duration
	// Output files are skipped when empty.
	ScanPath    string
	RankingPath string
}

// PairsTrader runs the scan, rank and monitor stages on their own tickers
// and keeps the latest outcome of each for the API.
type PairsTrader struct {
	universe   Universe
	scanner    *scanner.Scanner
	monitor    *signal.Monitor
	backtester *backtest.Runner
	store      signal.PositionStore
	events     Broadcaster
	opts       Options
	logger     *logrus.Logger

	mu        sync.RWMutex
	lastScan  *scanner.Batch
	ranking   *analytics.Ranking
	lastCycle *signal.CycleReport

	scanCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPairsTrader(universe Universe, sc *scanner.Scanner, monitor *signal.Monitor, runner *backtest.Runner, store signal.PositionStore, events Broadcaster, opts Options, logger *logrus.Logger) *PairsTrader {
	if opts.TopK <= 0 {
		opts.TopK = analytics.DefaultTopK
	}
	if opts.MaxHedgeRatio <= 0 {
		opts.MaxHedgeRatio = analytics.MaxHedgeRatio
	}
	return &PairsTrader{
		universe:   universe,
		scanner:    sc,
		monitor:    monitor,
		backtester: runner,
		store:      store,
		events:     events,
		opts:       opts,
		logger:     logger,
		scanCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the scan and monitor loops. A scan runs immediately.
func (pt *PairsTrader) Start(ctx context.Context) error {
	if pt.opts.ScanEvery <= 0 || pt.opts.SignalEvery <= 0 {
		return fmt.Errorf("scan and signal intervals must be positive")
	}
	pt.logger.WithFields(logrus.Fields{
		"scan_every":   pt.opts.ScanEvery.String(),
		"signal_every": pt.opts.SignalEvery.String(),
	}).Info("Starting pairs trader")

	pt.TriggerScan()

	pt.wg.Add(2)
	go pt.scanLoop(ctx)
	go pt.monitorLoop(ctx)
	return nil
}

// Stop ends both loops and waits for a running stage to finish.
func (pt *PairsTrader) Stop() {
	pt.stopOnce.Do(func() {
		pt.logger.Info("Stopping pairs trader")
		close(pt.stopCh)
	})
	pt.wg.Wait()
}

// TriggerScan requests a scan outside the schedule. It reports false when
// one is already pending.
func (pt *PairsTrader) TriggerScan() bool {
	select {
	case pt.scanCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (pt *PairsTrader) scanLoop(ctx context.Context) {
	defer pt.wg.Done()
	ticker := time.NewTicker(pt.opts.ScanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pt.stopCh:
			return
		case <-ticker.C:
		case <-pt.scanCh:
		}
		if _, err := pt.RunScan(ctx); err != nil {
			pt.logger.WithError(err).Error("Scan failed")
		}
	}
}

func (pt *PairsTrader) monitorLoop(ctx context.Context) {
	defer pt.wg.Done()
	ticker := time.NewTicker(pt.opts.SignalEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pt.stopCh:
			return
		case <-ticker.C:
			if _, err := pt.RunSignalCycle(ctx); err != nil {
				if errors.Is(err, ErrNoRanking) {
					pt.logger.Debug("Skipping monitoring cycle until first scan completes")
					continue
				}
				pt.logger.WithError(err).Error("Monitoring cycle failed")
			}
		}
	}
}

// RunScan scans the symbol universe, ranks the cointegrated pairs and
// writes the scan and ranking files.
func (pt *PairsTrader) RunScan(ctx context.Context) (*scanner.Batch, error) {
	symbols, err := pt.universe.SortedUniverse(ctx, pt.opts.MaxSymbols)
	if err != nil {
		return nil, fmt.Errorf("load symbol universe: %w", err)
	}

	batch := pt.scanner.Scan(ctx, symbols)
	cointegrated := batch.Cointegrated()
	scanner.SortForExport(cointegrated)
	ranking := analytics.Rank(cointegrated, pt.opts.MaxHedgeRatio)

	if pt.opts.ScanPath != "" {
		if err := report.WriteScan(pt.opts.ScanPath, cointegrated); err != nil {
			return nil, fmt.Errorf("write scan results: %w", err)
		}
	}
	if pt.opts.RankingPath != "" {
		if err := report.WriteRanking(pt.opts.RankingPath, ranking.Top(pt.opts.TopK)); err != nil {
			return nil, fmt.Errorf("write ranking: %w", err)
		}
	}

	pt.mu.Lock()
	pt.lastScan = batch
	pt.ranking = ranking
	pt.mu.Unlock()

	pt.broadcast(notify.EventScan, map[string]interface{}{
		"symbols":      len(symbols),
		"pairs":        len(batch.Results),
		"cointegrated": len(cointegrated),
		"failed":       len(batch.Failed()),
		"selected":     ranking.Top(pt.opts.TopK),
	})
	return batch, nil
}

// RunSignalCycle evaluates the current selection once.
func (pt *PairsTrader) RunSignalCycle(ctx context.Context) (*signal.CycleReport, error) {
	selection := pt.Selection()
	if selection == nil {
		return nil, ErrNoRanking
	}

	cycle, err := pt.monitor.RunCycle(ctx, selection)
	if err != nil {
		return nil, err
	}

	pt.mu.Lock()
	pt.lastCycle = cycle
	pt.mu.Unlock()

	pt.broadcast(notify.EventCycle, cycle)
	return cycle, nil
}

func (pt *PairsTrader) broadcast(eventType string, data interface{}) {
	if pt.events == nil {
		return
	}
	pt.events.Broadcast(notify.NewEvent(eventType, "", data))
}

func (pt *PairsTrader) LastScan() *scanner.Batch {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.lastScan
}

// Selection returns the top-K ranked pairs, or nil before the first scan.
func (pt *PairsTrader) Selection() []models.RankedPair {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if pt.ranking == nil {
		return nil
	}
	top := pt.ranking.Top(pt.opts.TopK)
	return append(make([]models.RankedPair, 0, len(top)), top...)
}

func (pt *PairsTrader) Ranking() *analytics.Ranking {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.ranking
}

func (pt *PairsTrader) LastCycle() *signal.CycleReport {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.lastCycle
}

func (pt *PairsTrader) Positions(ctx context.Context) (models.Positions, error) {
	return pt.store.Load(ctx)
}

func (pt *PairsTrader) Backtest(ctx context.Context, pair models.Pair) (models.BacktestSummary, []models.Trade, error) {
	return pt.backtester.RunPair(ctx, pair)
}
