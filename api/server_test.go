package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/gregtusar/pairs/pkg/scanner"
	"github.com/gregtusar/pairs/pkg/signal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	batch     *scanner.Batch
	ranking   *analytics.Ranking
	cycle     *signal.CycleReport
	positions models.Positions
	posErr    error
	triggered int
}

func (f *fakeEngine) LastScan() *scanner.Batch         { return f.batch }
func (f *fakeEngine) Ranking() *analytics.Ranking      { return f.ranking }
func (f *fakeEngine) LastCycle() *signal.CycleReport   { return f.cycle }
func (f *fakeEngine) Positions(context.Context) (models.Positions, error) {
	return f.positions, f.posErr
}

func (f *fakeEngine) Backtest(_ context.Context, pair models.Pair) (models.BacktestSummary, []models.Trade, error) {
	if pair.Symbol2 == "NOPE" {
		return models.BacktestSummary{}, nil, errors.New("fetch NOPE: price provider unavailable")
	}
	trades := []models.Trade{{Side: -1, EntryIndex: 3, ExitIndex: 7, RealizedPnL: 1.5}}
	return models.BacktestSummary{Pair: pair, HedgeRatio: 0.9, Trades: 1, TotalPnL: 1.5, MeanPnL: 1.5, WinRate: 1}, trades, nil
}

func (f *fakeEngine) TriggerScan() bool {
	f.triggered++
	return f.triggered == 1
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func loadedEngine() *fakeEngine {
	good := &models.CointegrationResult{
		Pair: models.NewPair("BTCUSDT", "ETHUSDT"), Cointegrated: true,
		PValue: 0.01, TStat: -4, CriticalValue: -3.36, HedgeRatio: 16, ZeroCrossings: 20, LatestZScore: 2.2,
	}
	return &fakeEngine{
		batch: &scanner.Batch{
			Started:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			Duration: 2 * time.Second,
			Results: []scanner.Result{
				{Pair: good.Pair, Result: good},
				{Pair: models.NewPair("BTCUSDT", "XRPUSDT"), Err: &scanner.MissingSeriesError{Symbol: "XRPUSDT"}},
			},
		},
		ranking: analytics.Rank([]models.CointegrationResult{*good}, analytics.MaxHedgeRatio),
		cycle: &signal.CycleReport{
			ID:        "cycle-1",
			StartedAt: time.Now(),
			Signals: []signal.PairSignal{{
				Pair:       good.Pair,
				HedgeRatio: 16,
				ZScore:     2.2,
				Transition: signal.Transition{Prior: models.PositionNone, Next: models.PositionShort, Event: models.EventEnterShort},
			}},
		},
		positions: models.Positions{"BTCUSDT_ETHUSDT": models.PositionShort},
	}
}

func do(t *testing.T, h http.Handler, method, path, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestEndpoints(t *testing.T) {
	engine := loadedEngine()
	h := NewServer(engine, metrics.NewRegistry(), Options{AllowedOrigins: []string{"*"}}, quietLogger()).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, body = do(t, h, http.MethodGet, "/api/pairs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["analyzed"])
	require.Len(t, body["cointegrated"], 1)
	require.Len(t, body["failed"], 1)
	assert.Equal(t, "no price series for XRPUSDT", body["failed"].([]interface{})[0].(map[string]interface{})["error"])

	rec, body = do(t, h, http.MethodGet, "/api/ranking", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["weights"], 5)
	assert.Len(t, body["pairs"], 1)

	rec, _ = do(t, h, http.MethodGet, "/api/ranking?top=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/signals", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	sig := body["signals"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "enter_short", sig["event"])
	assert.Equal(t, "short", sig["next"])

	rec, body = do(t, h, http.MethodGet, "/api/positions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "short", body["BTCUSDT_ETHUSDT"])

	rec, body = do(t, h, http.MethodGet, "/api/backtest/btcusdt/ethusdt", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "BTCUSDT", summary["symbol_1"])
	assert.Equal(t, 1.5, summary["total_pnl"])
	assert.Len(t, body["trades"], 1)

	rec, _ = do(t, h, http.MethodGet, "/api/backtest/BTCUSDT/NOPE", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/backtest/BTCUSDT/BTCUSDT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/scan", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, body["queued"])
	_, body = do(t, h, http.MethodPost, "/api/scan", "")
	assert.Equal(t, false, body["queued"])

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodOptions, "/api/pairs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointsBeforeFirstScan(t *testing.T) {
	h := NewServer(&fakeEngine{posErr: errors.New("disk")}, nil, Options{}, quietLogger()).Handler()

	for _, path := range []string{"/api/pairs", "/api/ranking", "/api/signals"} {
		rec, body := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.NotEmpty(t, body["error"], path)
	}

	rec, _ := do(t, h, http.MethodGet, "/api/positions", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/health", "")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthenticator("s3cret", "pairs-trader", time.Hour)
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := NewServer(loadedEngine(), nil, Options{Auth: auth, Events: events}, quietLogger()).Handler()

	token, err := auth.IssueToken("dashboard")
	require.NoError(t, err)

	subject, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", subject)

	rec, _ := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/positions", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/positions", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	other, err := NewAuthenticator("different", "pairs-trader", time.Hour).IssueToken("x")
	require.NoError(t, err)
	rec, _ = do(t, h, http.MethodGet, "/api/positions", other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer, err := NewAuthenticator("s3cret", "someone-else", time.Hour).IssueToken("x")
	require.NoError(t, err)
	rec, _ = do(t, h, http.MethodGet, "/api/positions", wrongIssuer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/ws?token="+token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestExpiredToken(t *testing.T) {
	auth := NewAuthenticator("s3cret", "pairs-trader", time.Hour)
	auth.ttl = -time.Minute
	token, err := auth.IssueToken("late")
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.Error(t, err)
}
