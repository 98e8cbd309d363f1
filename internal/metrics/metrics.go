// Package metrics exposes Prometheus collectors for the HTTP layer and the
// domain services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	failureReports *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	maintenance    prometheus.Counter
	modelCalls     *prometheus.CounterVec
}

// New registers every collector on a private registry, so tests can build
// as many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medequip",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medequip",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		failureReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medequip",
			Name:      "failure_reports_created_total",
			Help:      "Failure reports filed, by severity.",
		}, []string{"severity"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medequip",
			Name:      "failure_report_resolutions_total",
			Help:      "Resolve attempts by outcome.",
		}, []string{"outcome"}),
		maintenance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medequip",
			Name:      "maintenance_entries_created_total",
			Help:      "Maintenance ledger entries written.",
		}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medequip",
			Name:      "assistant_model_calls_total",
			Help:      "Language model calls by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.failureReports, m.resolutions, m.maintenance, m.modelCalls,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) FailureReported(severity string) {
	if m == nil {
		return
	}
	m.failureReports.WithLabelValues(severity).Inc()
}

// Resolution records a resolve attempt; outcome is "ok", "conflict" or
// "error".
func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MaintenanceLogged() {
	if m == nil {
		return
	}
	m.maintenance.Inc()
}

func (m *Metrics) ModelCall(outcome string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(outcome).Inc()
}
