package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	resultCointegrated    = "cointegrated"
	resultNotCointegrated = "not_cointegrated"
	resultFailed          = "failed"
)

type PriceProvider interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) (*models.PriceSeries, error)
}

type Config struct {
	Interval    string
	Limit       int
	Workers     int
	KalmanDelta float64
}

func DefaultConfig() Config {
	return Config{
		Interval:    "1h",
		Limit:       200,
		Workers:     4,
		KalmanDelta: analytics.DefaultKalmanDelta,
	}
}

// Result is the outcome of scanning one pair. Exactly one of Result and
// Err is set.
type Result struct {
	Pair   models.Pair
	Result *models.CointegrationResult
	Err    error
}

// Batch holds one Result per scanned pair, in pair order.
type Batch struct {
	Results  []Result
	Started  time.Time
	Duration time.Duration
}

// Cointegrated returns the flagged results.
func (b *Batch) Cointegrated() []models.CointegrationResult {
	var out []models.CointegrationResult
	for _, r := range b.Results {
		if r.Err == nil && r.Result.Cointegrated {
			out = append(out, *r.Result)
		}
	}
	return out
}

// Analyzed returns every result that completed, flagged or not.
func (b *Batch) Analyzed() []models.CointegrationResult {
	var out []models.CointegrationResult
	for _, r := range b.Results {
		if r.Err == nil {
			out = append(out, *r.Result)
		}
	}
	return out
}

func (b *Batch) Failed() []Result {
	var out []Result
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Combinations returns every unordered pair of symbols. Symbols are sorted
// first so a pair always has the same orientation and key.
func Combinations(symbols []string) []models.Pair {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	pairs := make([]models.Pair, 0, len(sorted)*(len(sorted)-1)/2)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] == sorted[j] {
				continue
			}
			pairs = append(pairs, models.NewPair(sorted[i], sorted[j]))
		}
	}
	return pairs
}

// SortForExport orders results by ascending p-value, then by descending
// zero-crossing count.
func SortForExport(results []models.CointegrationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].PValue != results[j].PValue {
			return results[i].PValue < results[j].PValue
		}
		return results[i].ZeroCrossings > results[j].ZeroCrossings
	})
}

type Scanner struct {
	provider PriceProvider
	cfg      Config
	logger   *logrus.Logger
	metrics  *metrics.Registry
}

func New(provider PriceProvider, cfg Config, logger *logrus.Logger, m *metrics.Registry) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.KalmanDelta <= 0 {
		cfg.KalmanDelta = analytics.DefaultKalmanDelta
	}
	return &Scanner{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// FetchUniverse downloads every symbol once. Symbols whose series cannot be
// fetched are logged and left out.
func (s *Scanner) FetchUniverse(ctx context.Context, symbols []string) map[string]*models.PriceSeries {
	type fetched struct {
		symbol string
		series *models.PriceSeries
	}

	jobs := make(chan string)
	out := make(chan fetched)
	var wg sync.WaitGroup

	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				series, err := s.provider.Fetch(ctx, symbol, s.cfg.Interval, s.cfg.Limit)
				if err != nil {
					s.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to fetch price series")
					continue
				}
				out <- fetched{symbol: symbol, series: series}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, symbol := range symbols {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	universe := make(map[string]*models.PriceSeries, len(symbols))
	for f := range out {
		universe[f.symbol] = f.series
	}
	return universe
}

// Scan tests every combination of symbols. A pair fails on its own when
// either leg is missing from the fetched universe or the test errors.
func (s *Scanner) Scan(ctx context.Context, symbols []string) *Batch {
	start := time.Now()
	universe := s.FetchUniverse(ctx, symbols)

	s.logger.WithFields(logrus.Fields{
		"requested": len(symbols),
		"fetched":   len(universe),
	}).Info("Price universe loaded")

	batch := s.ScanPairs(ctx, Combinations(symbols), universe)
	batch.Started = start
	batch.Duration = time.Since(start)
	s.metrics.ObserveScan(batch.Duration)

	s.logger.WithFields(logrus.Fields{
		"pairs":        len(batch.Results),
		"cointegrated": len(batch.Cointegrated()),
		"failed":       len(batch.Failed()),
		"duration":     batch.Duration.String(),
	}).Info("Scan complete")
	return batch
}

// ScanPairs runs the cointegration test for each pair over the given
// series. Pairs not reached before ctx is done are reported with ctx.Err().
func (s *Scanner) ScanPairs(ctx context.Context, pairs []models.Pair, universe map[string]*models.PriceSeries) *Batch {
	results := make([]Result, len(pairs))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.scanPair(pairs[i], universe)
			}
		}()
	}

	next := 0
feed:
	for ; next < len(pairs); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(pairs); i++ {
		results[i] = Result{Pair: pairs[i], Err: ctx.Err()}
		s.metrics.ObservePair(resultFailed)
	}

	return &Batch{Results: results}
}

func (s *Scanner) scanPair(pair models.Pair, universe map[string]*models.PriceSeries) Result {
	res := Result{Pair: pair}

	s1, s2 := universe[pair.Symbol1], universe[pair.Symbol2]
	switch {
	case s1 == nil:
		res.Err = &MissingSeriesError{Symbol: pair.Symbol1}
	case s2 == nil:
		res.Err = &MissingSeriesError{Symbol: pair.Symbol2}
	default:
		res.Result, res.Err = analytics.TestPair(s1, s2, s.cfg.KalmanDelta)
	}

	switch {
	case res.Err != nil:
		s.logger.WithError(res.Err).WithFields(logrus.Fields{
			"symbol_1": pair.Symbol1,
			"symbol_2": pair.Symbol2,
		}).Warn("Pair scan failed")
		s.metrics.ObservePair(resultFailed)
	case res.Result.Cointegrated:
		s.metrics.ObservePair(resultCointegrated)
	default:
		s.metrics.ObservePair(resultNotCointegrated)
	}
	return res
}

// MissingSeriesError reports a leg whose price series was not available.
type MissingSeriesError struct {
	Symbol string
}

func (e *MissingSeriesError) Error() string {
	return "no price series for " + e.Symbol
}
