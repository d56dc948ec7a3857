// Package metrics holds kasbon's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	deliveries   *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	ledgerErrors prometheus.Counter
	lastFired    prometheus.Gauge
}

// New registers the instruments on a private registry together with the
// process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kasbon_deliveries_total",
			Help: "Channel delivery attempts by outcome.",
		}, []string{"channel", "status", "reason"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kasbon_runs_total",
			Help: "Engine firings by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kasbon_run_duration_seconds",
			Help:    "Wall time of one engine firing.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ledgerErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kasbon_ledger_write_errors_total",
			Help: "Delivery history writes that failed.",
		}),
		lastFired: f.NewGauge(prometheus.GaugeOpts{
			Name: "kasbon_last_fired_timestamp_seconds",
			Help: "Unix time of the last completed firing.",
		}),
	}
}

// Gatherer exposes the registry for the diagnostics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

func (m *Metrics) Delivery(channel, status, reason string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status, reason).Inc()
}

// Run records a finished (or aborted) firing.
func (m *Metrics) Run(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(took.Seconds())
}

func (m *Metrics) LedgerWriteError(error) {
	if m == nil {
		return
	}
	m.ledgerErrors.Inc()
}

func (m *Metrics) Fired(at time.Time) {
	if m == nil {
		return
	}
	m.lastFired.Set(float64(at.Unix()))
}
