package binance

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesFixture = `[
  [1700000000000, "100.0", "101.0", "99.0", "100.5", "10", 1700003599999, "1000", 5, "5", "500", "0"],
  [1700003600000, "100.5", "102.0", "100.0", "101.25", "12", 1700007199999, "1200", 6, "6", "600", "0"],
  [1700007200000, "101.25", "101.5", "99.5", "99.75", "8", 1700010799999, "800", 4, "4", "400", "0"]
]`

const exchangeInfoFixture = `{
  "symbols": [
    {"symbol": "ETHUSDT", "quoteAsset": "USDT", "contractType": "PERPETUAL", "status": "TRADING"},
    {"symbol": "BTCUSDT", "quoteAsset": "USDT", "contractType": "PERPETUAL", "status": "TRADING"},
    {"symbol": "BTCUSDT_240628", "quoteAsset": "USDT", "contractType": "CURRENT_QUARTER", "status": "TRADING"},
    {"symbol": "ETHBUSD", "quoteAsset": "BUSD", "contractType": "PERPETUAL", "status": "TRADING"},
    {"symbol": "LUNAUSDT", "quoteAsset": "USDT", "contractType": "PERPETUAL", "status": "SETTLING"},
    {"symbol": "ADAUSDT", "quoteAsset": "USDT", "contractType": "PERPETUAL", "status": "TRADING"}
  ]
}`

func testClient(url string) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(Options{BaseURL: url, RequestsPerSecond: 1000}, logger, nil)
}

func TestFetchKlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(klinesFixture))
	}))
	defer server.Close()

	series, err := testClient(server.URL).Fetch(context.Background(), "BTCUSDT", "1h", 3)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", series.Symbol)
	assert.Equal(t, []int64{1700000000000, 1700003600000, 1700007200000}, series.Times)
	assert.Equal(t, []float64{100.5, 101.25, 99.75}, series.Values)
	assert.Equal(t, 99.75, series.Last())
}

func TestFetchFailuresAreProviderUnavailable(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := testClient(server.URL).Fetch(context.Background(), "NOPE", "1h", 3)
		require.ErrorIs(t, err, ErrProviderUnavailable)
		assert.Contains(t, err.Error(), "Invalid symbol")
	})

	t.Run("malformed row", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[[1700000000000, "1", "2"]]`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).Fetch(context.Background(), "BTCUSDT", "1h", 1)
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(server.URL)
	for i := 0; i < 8; i++ {
		_, err := client.Fetch(context.Background(), "BTCUSDT", "1h", 10)
		require.ErrorIs(t, err, ErrProviderUnavailable)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestPerpetualSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		w.Write([]byte(exchangeInfoFixture))
	}))
	defer server.Close()

	client := testClient(server.URL)

	symbols, err := client.PerpetualSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT", "ADAUSDT"}, symbols)

	universe, err := client.SortedUniverse(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, universe)
}
