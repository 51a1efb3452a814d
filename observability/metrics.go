// Package observability holds the process-wide Prometheus collectors shared by
// the HTTP daemons.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request traffic for a daemon's HTTP surface.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
	throttled *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// HTTP returns the lazily registered HTTP collectors.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ssov",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Requests served, by route and status code.",
			}, []string{"service", "route", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ssov",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Handler latency by route.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, []string{"service", "route"}),
			inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ssov",
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Requests currently being handled.",
			}, []string{"service"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ssov",
				Subsystem: "http",
				Name:      "throttled_total",
				Help:      "Requests rejected before reaching a handler.",
			}, []string{"service", "reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.latency,
			httpRegistry.inFlight,
			httpRegistry.throttled,
		)
	})
	return httpRegistry
}

// Begin marks a request as in flight. The returned func must be called once
// the response has been written.
func (m *HTTPMetrics) Begin(service string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.inFlight.WithLabelValues(label(service))
	gauge.Inc()
	return gauge.Dec
}

// Observe records a completed request. Unmatched routes share one label so
// arbitrary paths cannot grow the series count.
func (m *HTTPMetrics) Observe(service, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	service, route = label(service), label(route)
	m.requests.WithLabelValues(service, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(service, route).Observe(elapsed.Seconds())
}

// Throttled counts a request rejected by an admission policy such as
// "rate_limit".
func (m *HTTPMetrics) Throttled(service, reason string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(label(service), label(reason)).Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
