package signal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/gregtusar/pairs/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	series map[string][]float64
	fail   map[string]error
}

func (f *fakeProvider) Fetch(_ context.Context, symbol, _ string, _ int) (*models.PriceSeries, error) {
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	values, ok := f.series[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return &models.PriceSeries{Symbol: symbol, Values: values}, nil
}

type memStore struct {
	positions models.Positions
	loadErr   error
	saveErr   error
	saves     int
	saveCtx   error
}

func (s *memStore) Load(context.Context) (models.Positions, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.positions.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, p models.Positions) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.saveCtx = ctx.Err()
	s.positions = p.Clone()
	return nil
}

// cancelOn cancels the cycle context once the given symbol is fetched.
type cancelOn struct {
	*fakeProvider
	symbol string
	cancel context.CancelFunc
}

func (c *cancelOn) Fetch(ctx context.Context, symbol, interval string, limit int) (*models.PriceSeries, error) {
	if symbol == c.symbol {
		c.cancel()
	}
	return c.fakeProvider.Fetch(ctx, symbol, interval, limit)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// With a zero hedge ratio the spread is the first leg itself.
var (
	spikeUp   = append(make([]float64, 19), 10)  // last z = 19/sqrt(20) > 2
	spikeDown = append(make([]float64, 19), -10) // last z < -2
	atMean    = []float64{1, -1, 1, -1, 0}       // last z = 0
	flatHedge = []float64{1, 1, 1, 1, 1}
)

func ranked(symbol1, symbol2 string, hedge float64) models.RankedPair {
	return models.RankedPair{CointegrationResult: models.CointegrationResult{
		Pair:         models.NewPair(symbol1, symbol2),
		Cointegrated: true,
		HedgeRatio:   hedge,
	}}
}

func newTestMonitor(p *fakeProvider, s *memStore, n *recordingNotifier) *Monitor {
	return NewMonitor(p, s, n, DefaultConfig(), quietLogger(), nil)
}

func TestRunCycleEntersShort(t *testing.T) {
	provider := &fakeProvider{series: map[string][]float64{
		"AUSDT": spikeUp,
		"BUSDT": make([]float64, 20),
	}}
	store := &memStore{positions: models.Positions{}}
	notifier := &recordingNotifier{}

	report, err := newTestMonitor(provider, store, notifier).RunCycle(context.Background(), []models.RankedPair{ranked("AUSDT", "BUSDT", 0)})
	require.NoError(t, err)

	require.Len(t, report.Signals, 1)
	assert.Equal(t, models.EventEnterShort, report.Signals[0].Event)
	assert.Equal(t, models.Positions{"AUSDT_BUSDT": models.PositionShort}, store.positions)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Entry signal: SHORT AUSDT / LONG BUSDT")
	assert.Contains(t, notifier.messages[0], "[AUSDT - BUSDT]")
}

func TestRunCycleHoldsWithoutRepeatAlert(t *testing.T) {
	provider := &fakeProvider{series: map[string][]float64{
		"AUSDT": spikeDown,
		"BUSDT": make([]float64, 20),
	}}
	store := &memStore{positions: models.Positions{"AUSDT_BUSDT": models.PositionLong}}
	notifier := &recordingNotifier{}

	report, err := newTestMonitor(provider, store, notifier).RunCycle(context.Background(), []models.RankedPair{ranked("AUSDT", "BUSDT", 0)})
	require.NoError(t, err)

	assert.Equal(t, models.EventHold, report.Signals[0].Event)
	assert.Equal(t, models.PositionLong, store.positions["AUSDT_BUSDT"])
	assert.Empty(t, notifier.messages)
}

func TestRunCycleExits(t *testing.T) {
	provider := &fakeProvider{series: map[string][]float64{
		"AUSDT": atMean,
		"BUSDT": flatHedge,
	}}
	store := &memStore{positions: models.Positions{"AUSDT_BUSDT": models.PositionShort}}
	notifier := &recordingNotifier{}

	report, err := newTestMonitor(provider, store, notifier).RunCycle(context.Background(), []models.RankedPair{ranked("AUSDT", "BUSDT", 0)})
	require.NoError(t, err)

	assert.Equal(t, models.EventExit, report.Signals[0].Event)
	assert.Empty(t, store.positions)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Exit signal")
}

func TestRunCycleBatchesIdlePairs(t *testing.T) {
	provider := &fakeProvider{series: map[string][]float64{
		"AUSDT": atMean,
		"BUSDT": flatHedge,
		"CUSDT": atMean,
		"DUSDT": flatHedge,
	}}
	store := &memStore{positions: models.Positions{}}
	notifier := &recordingNotifier{}

	report, err := newTestMonitor(provider, store, notifier).RunCycle(context.Background(), []models.RankedPair{
		ranked("AUSDT", "BUSDT", 0),
		ranked("CUSDT", "DUSDT", 0),
	})
	require.NoError(t, err)

	assert.Len(t, report.Idle(), 2)
	require.Len(t, notifier.messages, 1)
	assert.True(t, strings.HasPrefix(notifier.messages[0], "Monitored pairs with no signal and no position:"))
	assert.Contains(t, notifier.messages[0], "- AUSDT - BUSDT | Z-score: 0.000")
	assert.Contains(t, notifier.messages[0], "- CUSDT - DUSDT | Z-score: 0.000")
	assert.Equal(t, 1, store.saves)
}

func TestRunCycleIsolatesPairFailures(t *testing.T) {
	provider := &fakeProvider{
		series: map[string][]float64{
			"BUSDT": make([]float64, 20),
			"CUSDT": spikeUp,
			"DUSDT": make([]float64, 20),
		},
		fail: map[string]error{"AUSDT": errors.New("provider unavailable")},
	}
	store := &memStore{positions: models.Positions{
		"AUSDT_BUSDT": models.PositionLong,
		"XUSDT_YUSDT": models.PositionShort,
	}}
	notifier := &recordingNotifier{}

	report, err := newTestMonitor(provider, store, notifier).RunCycle(context.Background(), []models.RankedPair{
		ranked("AUSDT", "BUSDT", 0),
		ranked("CUSDT", "DUSDT", 0),
	})
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, models.NewPair("AUSDT", "BUSDT"), report.Failures[0].Pair)
	assert.Equal(t, models.Positions{
		"AUSDT_BUSDT": models.PositionLong,
		"XUSDT_YUSDT": models.PositionShort,
		"CUSDT_DUSDT": models.PositionShort,
	}, store.positions)
}

func TestRunCycleSkipsHedgeOutliers(t *testing.T) {
	provider := &fakeProvider{series: map[string][]float64{}}
	store := &memStore{positions: models.Positions{}}
	notifier := &recordingNotifier{}

	report, err := newTestMonitor(provider, store, notifier).RunCycle(context.Background(), []models.RankedPair{ranked("AUSDT", "BUSDT", 25000)})
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Empty(t, report.Failures)
}

func TestRunCycleStoreFailuresAlert(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		store := &memStore{loadErr: errors.New("disk gone")}
		notifier := &recordingNotifier{}

		_, err := newTestMonitor(&fakeProvider{}, store, notifier).RunCycle(context.Background(), nil)
		require.ErrorIs(t, err, ErrPositionStore)
		require.Len(t, notifier.messages, 1)
		assert.Contains(t, notifier.messages[0], "Signal generation failed")
	})

	t.Run("save", func(t *testing.T) {
		store := &memStore{positions: models.Positions{}, saveErr: errors.New("read-only")}
		notifier := &recordingNotifier{}

		_, err := newTestMonitor(&fakeProvider{}, store, notifier).RunCycle(context.Background(), nil)
		require.ErrorIs(t, err, ErrPositionStore)
		require.Len(t, notifier.messages, 1)
		assert.Contains(t, notifier.messages[0], "read-only")
	})
}

func TestRunCycleInterruptedStillSaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &cancelOn{
		fakeProvider: &fakeProvider{series: map[string][]float64{
			"AUSDT": spikeUp,
			"BUSDT": make([]float64, 20),
			"CUSDT": atMean,
			"DUSDT": flatHedge,
		}},
		symbol: "BUSDT",
		cancel: cancel,
	}
	store := &memStore{positions: models.Positions{"CUSDT_DUSDT": models.PositionLong}}
	notifier := &recordingNotifier{}

	m := NewMonitor(provider, store, notifier, DefaultConfig(), quietLogger(), nil)
	report, err := m.RunCycle(ctx, []models.RankedPair{
		ranked("AUSDT", "BUSDT", 0),
		ranked("CUSDT", "DUSDT", 0),
	})
	require.NoError(t, err)

	require.Len(t, report.Signals, 1)
	assert.Equal(t, 1, store.saves)
	assert.NoError(t, store.saveCtx)
	assert.Equal(t, models.Positions{
		"AUSDT_BUSDT": models.PositionShort,
		"CUSDT_DUSDT": models.PositionLong,
	}, store.positions)
	for _, msg := range notifier.messages {
		assert.NotContains(t, msg, "Signal generation failed")
	}
}

func TestCycleReportJSON(t *testing.T) {
	report := CycleReport{
		ID: "c1",
		Signals: []PairSignal{{
			Pair:       models.NewPair("AUSDT", "BUSDT"),
			HedgeRatio: 1.5,
			ZScore:     2.5,
			Transition: Transition{Prior: models.PositionNone, Next: models.PositionShort, Event: models.EventEnterShort},
		}},
		Failures: []PairFailure{{Pair: models.NewPair("CUSDT", "DUSDT"), Err: errors.New("provider unavailable")}},
	}

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded struct {
		ID      string `json:"id"`
		Signals []struct {
			Symbol1 string  `json:"symbol_1"`
			ZScore  float64 `json:"zscore"`
			Next    string  `json:"next"`
			Event   string  `json:"event"`
		} `json:"signals"`
		Failures []struct {
			Symbol1 string `json:"symbol_1"`
			Symbol2 string `json:"symbol_2"`
			Error   string `json:"error"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "c1", decoded.ID)
	require.Len(t, decoded.Signals, 1)
	assert.Equal(t, "AUSDT", decoded.Signals[0].Symbol1)
	assert.Equal(t, string(models.PositionShort), decoded.Signals[0].Next)
	assert.Equal(t, string(models.EventEnterShort), decoded.Signals[0].Event)
	require.Len(t, decoded.Failures, 1)
	assert.Equal(t, "CUSDT", decoded.Failures[0].Symbol1)
	assert.Equal(t, "DUSDT", decoded.Failures[0].Symbol2)
	assert.Equal(t, "provider unavailable", decoded.Failures[0].Error)
}

func TestFormatSignal(t *testing.T) {
	sig := PairSignal{
		Pair:       models.NewPair("AUSDT", "BUSDT"),
		ZScore:     -2.34567,
		Transition: Transition{Next: models.PositionLong, Event: models.EventEnterLong},
	}
	assert.Equal(t, "[AUSDT - BUSDT]\nZ-score: -2.346\nEntry signal: LONG AUSDT / SHORT BUSDT", FormatSignal(sig))
}
