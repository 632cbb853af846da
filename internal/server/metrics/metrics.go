// Package metrics holds the Prometheus collectors of the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filegate"

// Metrics is a private registry plus the request collectors. A private
// registry lets tests build as many instances as they like.
type Metrics struct {
	Registry       *prometheus.Registry
	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	registry.MustRegister(
		requests,
		latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:       registry,
		RequestsTotal:  requests,
		RequestLatency: latency,
	}
}

// Observe records one finished request.
func (m *Metrics) Observe(route, method string, code int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.RequestLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
