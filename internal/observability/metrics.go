// Package observability provides Prometheus metrics for the treasury cycle.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "treasury"

// Metrics records cycle outcomes. It implements orchestrator.Recorder.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	StepFailuresTotal  *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	TreasuryBalanceSOL prometheus.Gauge
	LastCycleTimestamp prometheus.Gauge
	TradesObserved     *prometheus.CounterVec
}

// NewMetrics registers every metric on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of finished cycles by terminal status",
		}, []string{"status"}),
		StepFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Total number of failed cycle steps by step",
		}, []string{"step"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a cycle",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		TreasuryBalanceSOL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "balance_sol",
			Help:      "Treasury balance after fee collection",
		}),
		LastCycleTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp",
			Help:      "Unix time of the last finished cycle",
		}),
		TradesObserved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "trades_observed_total",
			Help:      "Trades seen by the listener by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) CycleFinished(status string, duration time.Duration) {
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycleTimestamp.SetToCurrentTime()
}

func (m *Metrics) StepFailed(step string) {
	m.StepFailuresTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) TreasuryBalance(sol float64) {
	m.TreasuryBalanceSOL.Set(sol)
}

// TradeObserved counts one listener observation; outcome is qualified, ignored, duplicate or error.
func (m *Metrics) TradeObserved(outcome string) {
	m.TradesObserved.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
