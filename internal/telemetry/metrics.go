// Package telemetry holds the Prometheus metrics for the recommendation
// engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the engine's metric set, registered against one registry so
// tests can use an isolated one.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions prometheus.Counter
	QuotePulls     *prometheus.CounterVec

	StrategyRuns   *prometheus.CounterVec
	StrategyErrors *prometheus.CounterVec
	Drafts         *prometheus.CounterVec

	SweepDuration *prometheus.HistogramVec
	Executions    *prometheus.CounterVec

	ActiveSubscriptions prometheus.Gauge
}

// New creates the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_price_cache_hits_total",
				Help: "Price cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_price_cache_misses_total",
				Help: "Price cache misses by tier",
			},
			[]string{"tier"},
		),
		CacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stockpulse_price_cache_evictions_total",
				Help: "Symbols evicted from the push subscription set",
			},
		),
		QuotePulls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_quote_pulls_total",
				Help: "External quote pull attempts by result",
			},
			[]string{"result"},
		),
		StrategyRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_strategy_runs_total",
				Help: "Strategy analyze calls by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		StrategyErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_strategy_errors_total",
				Help: "Errors recorded against strategies",
			},
			[]string{"strategy"},
		),
		Drafts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_drafts_total",
				Help: "Recommendation drafts emitted by strategy and action",
			},
			[]string{"strategy", "action"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockpulse_sweep_duration_seconds",
				Help:    "Duration of lifecycle sweeps",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"sweep"},
		),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockpulse_executions_total",
				Help: "Broker execution attempts by result",
			},
			[]string{"result"},
		),
		ActiveSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockpulse_price_feed_subscriptions",
				Help: "Symbols currently subscribed on the push feed",
			},
		),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheEvictions, m.QuotePulls,
		m.StrategyRuns, m.StrategyErrors, m.Drafts,
		m.SweepDuration, m.Executions, m.ActiveSubscriptions,
	)
	return m
}
