// Package health provides the data sources the adaptive throttle monitors.
package health

// HealthData is the service-health snapshot consumed by the adaptive
// throttle.
type HealthData struct {
	CPUUtilization float64 // 0-1 fraction; 0 means unknown
	P95LatencyMs   float64 // rolling p95 in milliseconds; 0 means no data yet
	ErrorRate      float64 // 0-1 fraction of requests ending in 5xx
}

// HealthSource abstracts where health data comes from, so the monitor can
// run against the in-process tracker, a Prometheus server, or synthetic
// data without changing.
type HealthSource interface {
	// FetchMetrics retrieves the current health data from the source.
	FetchMetrics() (HealthData, error)
}
