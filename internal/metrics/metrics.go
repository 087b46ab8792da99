// Package metrics defines the Prometheus collectors shared by the HTTP surface
// and the classification gateway.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodjournal"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Metrics bundles the service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	gatherer        prometheus.Gatherer
	requestTotal    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	rateLimitHits   *prometheus.CounterVec
	classifications *prometheus.CounterVec
	classifyLatency prometheus.Histogram
}

// New creates the collectors and registers them on reg. Collectors already
// registered on reg are reused.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Classification calls by outcome",
		}, []string{"outcome"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "request_duration_seconds",
			Help:      "Latency of remote classification calls",
			Buckets:   histogramBuckets,
		}),
	}
	if reg == nil {
		return m
	}
	m.requestTotal = register(reg, m.requestTotal)
	m.requestLatency = register(reg, m.requestLatency)
	m.rateLimitHits = register(reg, m.rateLimitHits)
	m.classifications = register(reg, m.classifications)
	m.classifyLatency = register(reg, m.classifyLatency)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// Handler exposes the gathered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

// RateLimitHit records a rejected request.
func (m *Metrics) RateLimitHit(route, key string) {
	if m == nil {
		return
	}
	m.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

// Classification records a classification outcome (ok, fallback reason) and its latency.
func (m *Metrics) Classification(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.classifications.With(prometheus.Labels{"outcome": outcome}).Inc()
	m.classifyLatency.Observe(duration.Seconds())
}
