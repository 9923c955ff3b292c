// Package metrics exposes the service's Prometheus instrumentation and a
// cheap in-process view of the request error rate for the adaptive monitor.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cheuk209/inference-lab/pkg/rolling"
)

// Metrics holds the service registry and the per-request instruments.
type Metrics struct {
	Registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds a registry with the standard process/Go collectors, the request
// instruments, and a collector that surfaces the rolling window's
// percentiles on every scrape.
func New(tracker *rolling.Tracker) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newTrackerCollector(tracker),
	)

	m := &Metrics{
		Registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_requests_total",
			Help: "Requests served, by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inference_request_duration_seconds",
			Help:    "Request wall time, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, statusLabel(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// RequestStats counts requests and server errors so the in-process health
// source can derive an error rate without scraping Prometheus.
type RequestStats struct {
	total  atomic.Int64
	errors atomic.Int64
}

// Observe records one response status.
func (s *RequestStats) Observe(code int) {
	s.total.Add(1)
	if code >= 500 {
		s.errors.Add(1)
	}
}

// Total returns the number of requests observed.
func (s *RequestStats) Total() int64 {
	return s.total.Load()
}

// ErrorRate returns the fraction of requests that ended in a 5xx, or 0 when
// nothing has been observed yet.
func (s *RequestStats) ErrorRate() float64 {
	total := s.total.Load()
	if total == 0 {
		return 0
	}
	return float64(s.errors.Load()) / float64(total)
}
