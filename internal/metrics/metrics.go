// Package metrics owns the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Metrics groups the collectors used across the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	FetchRequests *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	FetchedRows   prometheus.Counter
	CacheHits     prometheus.Counter
	CacheErrors   *prometheus.CounterVec
	LabeledRows   *prometheus.CounterVec
	ExcludedRows  prometheus.Counter
	PersistedRows prometheus.Counter
	ModelAccuracy prometheus.Gauge
}

// New builds the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "fetch_requests_total",
			Help:      "Upstream state fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skymind",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of upstream state fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		FetchedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "fetched_rows_total",
			Help:      "State rows received from upstream.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "fetch_cache_hits_total",
			Help:      "Fetches served from the snapshot cache.",
		}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "fetch_cache_backend_errors_total",
			Help:      "Snapshot cache backend failures by operation.",
		}, []string{"op"}),
		LabeledRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "labeled_rows_total",
			Help:      "Rows labeled, by rule and label.",
		}, []string{"rule", "delay"}),
		ExcludedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "excluded_rows_total",
			Help:      "Rows skipped because velocity or geo_altitude was null.",
		}),
		PersistedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skymind",
			Name:      "persisted_rows_total",
			Help:      "Rows appended to the history store.",
		}),
		ModelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skymind",
			Name:      "model_accuracy_ratio",
			Help:      "Held-out accuracy of the last trained predictor.",
		}),
	}
	reg.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.FetchedRows,
		m.CacheHits,
		m.CacheErrors,
		m.LabeledRows,
		m.ExcludedRows,
		m.PersistedRows,
		m.ModelAccuracy,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
