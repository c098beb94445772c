package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrProviderUnavailable wraps every failure to obtain a price series.
var ErrProviderUnavailable = errors.New("price provider unavailable")

const (
	DefaultBaseURL           = "https://fapi.binance.com"
	DefaultRequestsPerSecond = 10
	klinesPath               = "/fapi/v1/klines"
	exchangeInfoPath         = "/fapi/v1/exchangeInfo"
	closeField               = 4
)

// Client reads USDT-M futures market data. Requests share one rate limiter
// and one circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
	metrics    *metrics.Registry
}

type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

func NewClient(opts Options, logger *logrus.Logger, m *metrics.Registry) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:     "binance",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker:    gobreaker.NewCircuitBreaker(st),
		logger:     logger,
		metrics:    m,
	}
}

// Fetch returns closing prices indexed by bar open time.
func (c *Client) Fetch(ctx context.Context, symbol, interval string, limit int) (*models.PriceSeries, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.get(ctx, klinesPath, q, &rows); err != nil {
		c.metrics.ObserveProviderError(symbol)
		return nil, fmt.Errorf("%w: klines %s: %v", ErrProviderUnavailable, symbol, err)
	}

	series := &models.PriceSeries{
		Symbol:   symbol,
		Interval: interval,
		Times:    make([]int64, 0, len(rows)),
		Values:   make([]float64, 0, len(rows)),
	}
	for i, row := range rows {
		openTime, closePrice, err := parseKline(row)
		if err != nil {
			c.metrics.ObserveProviderError(symbol)
			return nil, fmt.Errorf("%w: kline %d of %s: %v", ErrProviderUnavailable, i, symbol, err)
		}
		series.Times = append(series.Times, openTime)
		series.Values = append(series.Values, closePrice)
	}
	return series, nil
}

func parseKline(row []json.RawMessage) (int64, float64, error) {
	if len(row) <= closeField {
		return 0, 0, fmt.Errorf("expected at least %d fields, got %d", closeField+1, len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return 0, 0, fmt.Errorf("open time: %w", err)
	}
	var closeStr string
	if err := json.Unmarshal(row[closeField], &closeStr); err != nil {
		return 0, 0, fmt.Errorf("close: %w", err)
	}
	closePrice, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("close: %w", err)
	}
	return openTime, closePrice, nil
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol       string `json:"symbol"`
	QuoteAsset   string `json:"quoteAsset"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
}

// PerpetualSymbols lists USDT-quoted perpetual contracts that are trading,
// in exchange order.
func (c *Client) PerpetualSymbols(ctx context.Context) ([]string, error) {
	var info exchangeInfo
	if err := c.get(ctx, exchangeInfoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("%w: exchange info: %v", ErrProviderUnavailable, err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset == "USDT" && s.ContractType == "PERPETUAL" && s.Status == "TRADING" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// SortedUniverse returns the first max perpetual symbols, sorted so pair
// orientation is stable between runs.
func (c *Client) SortedUniverse(ctx context.Context, max int) ([]string, error) {
	symbols, err := c.PerpetualSymbols(ctx)
	if err != nil {
		return nil, err
	}
	if max > 0 && len(symbols) > max {
		symbols = symbols[:max]
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, path, query, out)
	})
	return err
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
