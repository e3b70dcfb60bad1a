// Package metrics exposes run counters for the connector. A batch job has
// no scrape window, so the registry is pushed to a Pushgateway when a run ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "nvd_etl"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	fetchAttempts    *prometheus.CounterVec
	endpointFailures *prometheus.CounterVec
	recordsLoaded    *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	endpointDuration *prometheus.HistogramVec
	lastSuccess      *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "Upstream fetch attempts by outcome (ok, rate_limited, http_error, transport_error)",
	}, []string{"endpoint", "outcome"})
	m.endpointFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "endpoint_failures_total",
		Help:      "Endpoints that ended with an error, by error kind",
	}, []string{"endpoint", "kind"})
	m.recordsLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_loaded_total",
		Help:      "Documents written, by operation (inserted, modified)",
	}, []string{"endpoint", "op"})
	m.recordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Records dropped because no upsert key could be derived",
	}, []string{"endpoint"})
	m.endpointDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "endpoint_duration_seconds",
		Help:      "Wall time spent on one endpoint, extract through load",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"endpoint"})
	m.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last endpoint run without error",
	}, []string{"endpoint"})

	m.registry.MustRegister(
		m.fetchAttempts,
		m.endpointFailures,
		m.recordsLoaded,
		m.recordsSkipped,
		m.endpointDuration,
		m.lastSuccess,
	)
	return m
}

// Registry is exposed for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FetchAttempt(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) EndpointFailed(endpoint, kind string) {
	if m == nil {
		return
	}
	m.endpointFailures.WithLabelValues(endpoint, kind).Inc()
}

func (m *Metrics) Loaded(endpoint string, inserted, modified, skipped int) {
	if m == nil {
		return
	}
	m.recordsLoaded.WithLabelValues(endpoint, "inserted").Add(float64(inserted))
	m.recordsLoaded.WithLabelValues(endpoint, "modified").Add(float64(modified))
	m.recordsSkipped.WithLabelValues(endpoint).Add(float64(skipped))
}

func (m *Metrics) EndpointDone(endpoint string, d time.Duration, ok bool, now time.Time) {
	if m == nil {
		return
	}
	m.endpointDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	if ok {
		m.lastSuccess.WithLabelValues(endpoint).Set(float64(now.Unix()))
	}
}

// Push sends the registry to a Pushgateway under the given job name.
func (m *Metrics) Push(url, job, runID string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, job).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		Push()
}
