package health

import (
	"errors"
	"time"

	"github.com/cheuk209/inference-lab/pkg/metrics"
	"github.com/cheuk209/inference-lab/pkg/rolling"
)

// TrackerSource reads health data straight out of the process: p95 from the
// rolling latency window, error rate from the request counters. It needs no
// Prometheus deployment, which makes it the default source.
//
// CPUUtilization is reported as 0 (unknown); the factor calculation treats
// that as unconstrained.
type TrackerSource struct {
	tracker *rolling.Tracker
	stats   *metrics.RequestStats
}

// NewTrackerSource wires the source to an explicitly owned tracker and stats
// instance. stats may be nil, in which case the error rate reads as 0.
func NewTrackerSource(tracker *rolling.Tracker, stats *metrics.RequestStats) *TrackerSource {
	return &TrackerSource{tracker: tracker, stats: stats}
}

// FetchMetrics implements HealthSource.
func (s *TrackerSource) FetchMetrics() (HealthData, error) {
	data := HealthData{}

	p95, err := s.tracker.Percentile(95)
	switch {
	case errors.Is(err, rolling.ErrNoSamples):
		// Nothing served yet; leave P95LatencyMs at 0 so the monitor
		// applies no latency-based throttle.
	case err != nil:
		return data, err
	default:
		data.P95LatencyMs = float64(p95) / float64(time.Millisecond)
	}

	if s.stats != nil {
		data.ErrorRate = s.stats.ErrorRate()
	}
	return data, nil
}
