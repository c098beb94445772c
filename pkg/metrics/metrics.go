// Package metrics holds the prometheus collectors of the pairs engine. A nil
// *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry *prometheus.Registry

	PairsScanned   *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	ProviderErrors *prometheus.CounterVec
	SignalEvents   *prometheus.CounterVec
	OpenPositions  prometheus.Gauge
	BacktestTrades prometheus.Counter
}

func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		PairsScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairs_scanned_total",
				Help: "Pairs analyzed by the cointegration scan, by outcome",
			},
			[]string{"result"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pairs_scan_duration_seconds",
				Help:    "Wall-clock duration of a full cointegration scan",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairs_provider_errors_total",
				Help: "Price-series fetch failures by symbol",
			},
			[]string{"symbol"},
		),

		SignalEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairs_signal_events_total",
				Help: "Signal state machine outcomes by event",
			},
			[]string{"event"},
		),

		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pairs_open_positions",
				Help: "Pairs with an open long or short position after the last cycle",
			},
		),

		BacktestTrades: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pairs_backtest_trades_total",
				Help: "Closed trades produced by backtest runs",
			},
		),
	}

	r.registry.MustRegister(
		r.PairsScanned,
		r.ScanDuration,
		r.ProviderErrors,
		r.SignalEvents,
		r.OpenPositions,
		r.BacktestTrades,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) ObservePair(result string) {
	if r == nil {
		return
	}
	r.PairsScanned.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveScan(d time.Duration) {
	if r == nil {
		return
	}
	r.ScanDuration.Observe(d.Seconds())
}

func (r *Registry) ObserveProviderError(symbol string) {
	if r == nil {
		return
	}
	r.ProviderErrors.WithLabelValues(symbol).Inc()
}

func (r *Registry) ObserveSignal(event string) {
	if r == nil {
		return
	}
	r.SignalEvents.WithLabelValues(event).Inc()
}

func (r *Registry) SetOpenPositions(n int) {
	if r == nil {
		return
	}
	r.OpenPositions.Set(float64(n))
}

func (r *Registry) ObserveTrades(n int) {
	if r == nil {
		return
	}
	r.BacktestTrades.Add(float64(n))
}
