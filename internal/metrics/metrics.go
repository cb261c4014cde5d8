// Package metrics holds the Prometheus collectors of the dossier service.
package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const countTimeout = time.Second

// Metrics holds the collectors shared by the dispatcher and the HTTP server.
//
// Every Metrics owns its registry so that tests can create as many as they like without duplicate registration
// panics.
type Metrics struct {
	registry *prometheus.Registry

	// Dispatcher
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
//
// Metrics:
//   - dossier_requests_total{method,tool,outcome} - dispatched requests
//   - dossier_request_duration_seconds{method} - dispatch latency
//   - dossier_http_requests_total{code} - HTTP responses by status code
//   - dossier_http_request_duration_seconds{path} - HTTP latency
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dossier_requests_total",
				Help: "Total number of dispatched protocol requests",
			},
			[]string{"method", "tool", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dossier_request_duration_seconds",
				Help:    "Duration of protocol request dispatch in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), //nolint:mnd // 0.5ms to ~1s
			},
			[]string{"method"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dossier_http_requests_total",
				Help: "Total number of HTTP responses by status code",
			},
			[]string{"code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dossier_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}
}

// RecordRequest records one dispatched request.
//
// tool is empty for methods other than tools/call. outcome is "success" or a short error kind.
func (m *Metrics) RecordRequest(method, tool, outcome string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, tool, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTP records one HTTP response.
func (m *Metrics) RecordHTTP(path string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RegisterDossierCount exposes dossier_stored as a gauge evaluated with count at scrape time.
//
// A failing count is reported as NaN.
func (m *Metrics) RegisterDossierCount(count func(ctx context.Context) (int, error)) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dossier_stored",
			Help: "Number of dossiers in the store",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
			defer cancel()
			n, err := count(ctx)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		},
	)
}

// Handler serves the Prometheus exposition format for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
