// Package metrics defines the Prometheus instrumentation for the ranking
// service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// PreviewsTotal counts dry-run ingestion previews.
	PreviewsTotal prometheus.Counter

	// AppliesTotal counts applied ingestions, by result.
	AppliesTotal *prometheus.CounterVec

	// DegradedTotal counts analyses that degraded to an empty delta set.
	DegradedTotal prometheus.Counter

	// PublishesTotal counts snapshot publishes, including those performed
	// as part of an apply.
	PublishesTotal prometheus.Counter

	// ApplyDuration observes end-to-end apply latency in seconds.
	ApplyDuration prometheus.Histogram

	// RankedTools tracks the number of tools in the current snapshot.
	RankedTools prometheus.Gauge
}

// New creates and registers the service metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PreviewsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolrank_ingestion_previews_total",
			Help: "Total number of dry-run ingestion previews.",
		}),
		AppliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolrank_ingestion_applies_total",
			Help: "Total number of apply attempts, by result.",
		}, []string{"result"}),
		DegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolrank_degraded_analyses_total",
			Help: "Total number of analyses degraded to an empty delta set.",
		}),
		PublishesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolrank_snapshot_publishes_total",
			Help: "Total number of published ranking snapshots.",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolrank_apply_duration_seconds",
			Help:    "End-to-end latency of applied ingestions.",
			Buckets: prometheus.DefBuckets,
		}),
		RankedTools: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolrank_ranked_tools",
			Help: "Number of tools in the current ranking snapshot.",
		}),
	}

	registry.MustRegister(
		m.PreviewsTotal,
		m.AppliesTotal,
		m.DegradedTotal,
		m.PublishesTotal,
		m.ApplyDuration,
		m.RankedTools,
	)
	return m
}

// Registry exposes the underlying registerer so auxiliary components can
// add their collectors to the same /metrics endpoint.
func (m *Metrics) Registry() prometheus.Registerer {
	return m.registry
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
