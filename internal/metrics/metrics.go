// Package metrics provides Prometheus metrics for the calsync agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	ItemsTotal    *prometheus.CounterVec
	StoreOpsTotal *prometheus.CounterVec
	RunsTotal     prometheus.Counter
	RunDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calsync_items_total",
				Help: "Total items processed by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calsync_store_operations_total",
				Help: "Calendar store operations by operation and status.",
			},
			[]string{"op", "status"},
		),
		RunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calsync_runs_total",
				Help: "Total reconciliation runs.",
			},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "calsync_run_duration_seconds",
				Help:    "Duration of a full reconciliation run.",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.ItemsTotal)
	reg.MustRegister(m.StoreOpsTotal)
	reg.MustRegister(m.RunsTotal)
	reg.MustRegister(m.RunDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordItem increments the item counter.
func (m *Metrics) RecordItem(kind, outcome string) {
	m.ItemsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStoreOp increments the store operation counter.
func (m *Metrics) RecordStoreOp(op, status string) {
	m.StoreOpsTotal.WithLabelValues(op, status).Inc()
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(seconds float64) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(seconds)
}
