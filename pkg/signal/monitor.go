package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/sirupsen/logrus"
)

// ErrPositionStore marks a failure to read or persist the position map.
// Unlike per-pair failures it aborts the cycle.
var ErrPositionStore = errors.New("position store failure")

// persistTimeout bounds the final save of a cycle whose context was cancelled.
const persistTimeout = 5 * time.Second

type PriceProvider interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) (*models.PriceSeries, error)
}

// PositionStore loads and replaces the whole position map atomically.
type PositionStore interface {
	Load(ctx context.Context) (models.Positions, error)
	Save(ctx context.Context, positions models.Positions) error
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type Config struct {
	Thresholds    Thresholds
	Interval      string
	Limit         int
	MaxHedgeRatio float64
}

func DefaultConfig() Config {
	return Config{
		Thresholds:    DefaultThresholds(),
		Interval:      "1h",
		Limit:         200,
		MaxHedgeRatio: analytics.MaxHedgeRatio,
	}
}

// PairSignal is the evaluation of one pair in a cycle.
type PairSignal struct {
	models.Pair
	HedgeRatio float64 `json:"hedge_ratio"`
	ZScore     float64 `json:"zscore"`
	Transition
}

type PairFailure struct {
	models.Pair
	Err error
}

func (f PairFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		models.Pair
		Error string `json:"error"`
	}{f.Pair, msg})
}

// CycleReport summarizes one monitoring cycle.
type CycleReport struct {
	ID        string           `json:"id"`
	StartedAt time.Time        `json:"started_at"`
	Signals   []PairSignal     `json:"signals"`
	Failures  []PairFailure    `json:"failures"`
	Positions models.Positions `json:"positions"`
}

// Idle returns the pairs that were watched without a position or a signal.
func (r *CycleReport) Idle() []PairSignal {
	var idle []PairSignal
	for _, s := range r.Signals {
		if s.Event == models.EventIdle {
			idle = append(idle, s)
		}
	}
	return idle
}

// Monitor evaluates the selected pairs against live prices once per cycle.
type Monitor struct {
	provider PriceProvider
	store    PositionStore
	notifier Notifier
	cfg      Config
	logger   *logrus.Logger
	metrics  *metrics.Registry
}

func NewMonitor(provider PriceProvider, store PositionStore, notifier Notifier, cfg Config, logger *logrus.Logger, m *metrics.Registry) *Monitor {
	return &Monitor{
		provider: provider,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// RunCycle loads the position map, evaluates every candidate, sends entry,
// exit and idle notifications and saves the full updated map in one write.
// Pairs that cannot be evaluated, and open positions outside the candidate
// list, keep their prior state.
func (m *Monitor) RunCycle(ctx context.Context, candidates []models.RankedPair) (*CycleReport, error) {
	report := &CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := m.logger.WithField("cycle_id", report.ID)

	prior, err := m.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("%w: load: %v", ErrPositionStore, err)
		m.alert(ctx, err)
		return nil, err
	}

	updated := make(models.Positions, len(prior))
	for key, state := range prior {
		if state.Active() {
			updated[key] = state
		}
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Monitoring cycle interrupted, keeping remaining positions")
			break
		}

		if !analytics.WithinHedgeLimit(c.HedgeRatio, m.cfg.MaxHedgeRatio) {
			log.WithFields(logrus.Fields{
				"pair":        c.Pair.String(),
				"hedge_ratio": c.HedgeRatio,
			}).Debug("Skipping pair outside hedge ratio limit")
			continue
		}

		key := c.Key()
		z, err := m.zscore(ctx, c.Pair, c.HedgeRatio)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"symbol_1": c.Symbol1,
				"symbol_2": c.Symbol2,
			}).Error("Failed to evaluate pair")
			report.Failures = append(report.Failures, PairFailure{Pair: c.Pair, Err: err})
			m.metrics.ObserveSignal("failed")
			continue
		}

		tr := m.cfg.Thresholds.Next(z, prior.Get(key))
		if tr.Next.Active() {
			updated[key] = tr.Next
		} else {
			delete(updated, key)
		}

		sig := PairSignal{Pair: c.Pair, HedgeRatio: c.HedgeRatio, ZScore: z, Transition: tr}
		report.Signals = append(report.Signals, sig)
		m.metrics.ObserveSignal(string(tr.Event))

		log.WithFields(logrus.Fields{
			"pair":   c.Pair.String(),
			"zscore": z,
			"prior":  string(tr.Prior),
			"next":   string(tr.Next),
			"event":  string(tr.Event),
		}).Info("Evaluated pair")

		if tr.Alerting() {
			m.send(ctx, FormatSignal(sig))
		}
	}

	// An interrupted cycle still persists what it evaluated.
	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
	} else if idle := report.Idle(); len(idle) > 0 {
		m.send(ctx, FormatIdle(idle))
	}

	if err := m.store.Save(persistCtx, updated); err != nil {
		err = fmt.Errorf("%w: save: %v", ErrPositionStore, err)
		m.alert(persistCtx, err)
		return nil, err
	}

	report.Positions = updated
	m.metrics.SetOpenPositions(len(updated))
	return report, nil
}

func (m *Monitor) zscore(ctx context.Context, pair models.Pair, hedgeRatio float64) (float64, error) {
	s1, err := m.provider.Fetch(ctx, pair.Symbol1, m.cfg.Interval, m.cfg.Limit)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", pair.Symbol1, err)
	}
	s2, err := m.provider.Fetch(ctx, pair.Symbol2, m.cfg.Interval, m.cfg.Limit)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", pair.Symbol2, err)
	}

	y, x, err := analytics.Align(s1, s2)
	if err != nil {
		return 0, err
	}
	return analytics.LatestZScore(y, x, models.StaticHedge(hedgeRatio))
}

func (m *Monitor) send(ctx context.Context, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, message); err != nil {
		m.logger.WithError(err).Error("Failed to deliver notification")
	}
}

func (m *Monitor) alert(ctx context.Context, err error) {
	m.logger.WithError(err).Error("Signal generation failed")
	m.send(ctx, "Signal generation failed: "+err.Error())
}

// FormatSignal renders an entry or exit event.
func FormatSignal(s PairSignal) string {
	msg := fmt.Sprintf("[%s - %s]\nZ-score: %.3f\n", s.Symbol1, s.Symbol2, round3(s.ZScore))
	switch s.Event {
	case models.EventEnterShort:
		return msg + fmt.Sprintf("Entry signal: SHORT %s / LONG %s", s.Symbol1, s.Symbol2)
	case models.EventEnterLong:
		return msg + fmt.Sprintf("Entry signal: LONG %s / SHORT %s", s.Symbol1, s.Symbol2)
	case models.EventExit:
		return msg + "Exit signal: mean reversion reached"
	default:
		return msg + "State: " + string(s.Next)
	}
}

// FormatIdle renders the batched summary of watched pairs without a signal.
func FormatIdle(idle []PairSignal) string {
	var b strings.Builder
	b.WriteString("Monitored pairs with no signal and no position:")
	for _, s := range idle {
		fmt.Fprintf(&b, "\n- %s - %s | Z-score: %.3f", s.Symbol1, s.Symbol2, round3(s.ZScore))
	}
	return b.String()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
