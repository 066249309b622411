// Package observability exposes the engine's Prometheus instruments.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
)

const namespace = "sitewatch"

// Metrics owns an independent registry so tests can create as many as they
// like without collector conflicts.
type Metrics struct {
	registry *prometheus.Registry

	sessionsOpened  *prometheus.CounterVec
	sessionsClosed  prometheus.Counter
	sessionOpenTime prometheus.Histogram
	tsFallbacks     *prometheus.CounterVec
	siteFailures    *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "sessions_opened_total",
			Help:      "Tenant store sessions opened, by outcome.",
		}, []string{"outcome"}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "sessions_closed_total",
			Help:      "Tenant store sessions closed.",
		}),
		sessionOpenTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "session_open_seconds",
			Help:      "Time to open a tenant store session, including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		tsFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readings",
			Name:      "timestamp_fallbacks_total",
			Help:      "Reading timestamps replaced by the current time, by reason.",
		}, []string{"reason"}),
		siteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "site_failures_total",
			Help:      "Sites dropped from a multi-site operation, by operation and kind.",
		}, []string{"op", "kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsOpened,
		m.sessionsClosed,
		m.sessionOpenTime,
		m.tsFallbacks,
		m.siteFailures,
		m.requests,
		m.requestDuration,
	)
	return m
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionOpened implements mongo.Observer.
func (m *Metrics) SessionOpened(_ string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sessionsOpened.WithLabelValues(outcome).Inc()
	m.sessionOpenTime.Observe(took.Seconds())
}

// SessionClosed implements mongo.Observer.
func (m *Metrics) SessionClosed(string) {
	m.sessionsClosed.Inc()
}

// TimestampFallback matches timestamp.FallbackFunc.
func (m *Metrics) TimestampFallback(_ timestamp.Raw, reason string) {
	m.tsFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) SiteFailed(op, kind string) {
	m.siteFailures.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) ObserveRequest(route string, status int, took time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(took.Seconds())
}
