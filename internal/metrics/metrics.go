package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors on a private registry so tests
// can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	exports           *prometheus.CounterVec
	consistencyIssues *prometheus.GaugeVec
	notifications     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinship",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kinship",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinship",
			Name:      "exports_total",
			Help:      "GEDCOM exports by destination and outcome.",
		}, []string{"target", "outcome"}),
		consistencyIssues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kinship",
			Name:      "consistency_issues",
			Help:      "Issues found by the most recent consistency check, by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinship",
			Name:      "notifications_total",
			Help:      "Notifications delivered by channel.",
		}, []string{"channel"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.exports,
		m.consistencyIssues,
		m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveExport counts a GEDCOM export. target is "download", "cli" or
// "archive".
func (m *Metrics) ObserveExport(target string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.exports.WithLabelValues(target, outcome).Inc()
}

// SetConsistencyIssues replaces the per-kind gauge values. Kinds absent from
// counts are reset to zero.
func (m *Metrics) SetConsistencyIssues(counts map[string]int) {
	if m == nil {
		return
	}
	m.consistencyIssues.Reset()
	for kind, n := range counts {
		m.consistencyIssues.WithLabelValues(kind).Set(float64(n))
	}
}

func (m *Metrics) NotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel).Inc()
}
