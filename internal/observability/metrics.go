package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	searchCandidates prometheus.Histogram
	comparisons      *prometheus.CounterVec
	sessionsSwept    prometheus.Counter
}

// NewMetrics creates and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint", "status"},
		),
		searchCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_search_candidates",
				Help:    "Products fetched from storage per search.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		comparisons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_comparisons_total",
				Help: "Comparison matrices served, by cache outcome.",
			},
			[]string{"cache"},
		),
		sessionsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_sessions_swept_total",
				Help: "Expired comparison sessions removed by the sweeper.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.searchCandidates,
		m.comparisons,
		m.sessionsSwept,
	)
	return m
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := classifyStatus(statusCode)
	m.httpRequests.WithLabelValues(method, endpoint, status).Inc()
	m.httpDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// ObserveSearch records the candidate count of a search.
func (m *Metrics) ObserveSearch(candidates int) {
	if m == nil {
		return
	}
	m.searchCandidates.Observe(float64(candidates))
}

// CountComparison records a served matrix. cached tells whether it came
// from the cache.
func (m *Metrics) CountComparison(cached bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if cached {
		outcome = "hit"
	}
	m.comparisons.WithLabelValues(outcome).Inc()
}

// AddSessionsSwept records sweeper evictions.
func (m *Metrics) AddSessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}
