package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cheuk209/inference-lab/pkg/rolling"
)

// trackerCollector reads the rolling latency window on every scrape. The
// percentile series are only emitted once samples exist: an empty window
// yields just the sample count, never a zero-valued percentile.
type trackerCollector struct {
	tracker *rolling.Tracker

	p50Desc   *prometheus.Desc
	p95Desc   *prometheus.Desc
	p99Desc   *prometheus.Desc
	countDesc *prometheus.Desc
}

func newTrackerCollector(tracker *rolling.Tracker) *trackerCollector {
	return &trackerCollector{
		tracker: tracker,
		p50Desc: prometheus.NewDesc(
			"inference_rolling_latency_p50_seconds",
			"50th percentile latency over the rolling window.",
			nil, nil,
		),
		p95Desc: prometheus.NewDesc(
			"inference_rolling_latency_p95_seconds",
			"95th percentile latency over the rolling window.",
			nil, nil,
		),
		p99Desc: prometheus.NewDesc(
			"inference_rolling_latency_p99_seconds",
			"99th percentile latency over the rolling window.",
			nil, nil,
		),
		countDesc: prometheus.NewDesc(
			"inference_rolling_latency_samples",
			"Number of samples currently in the rolling window.",
			nil, nil,
		),
	}
}

func (c *trackerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.p50Desc
	ch <- c.p95Desc
	ch <- c.p99Desc
	ch <- c.countDesc
}

func (c *trackerCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.tracker.SnapshotMetrics()
	ch <- prometheus.MustNewConstMetric(c.countDesc, prometheus.GaugeValue, float64(snap.Count))
	if snap.Count == 0 {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.p50Desc, prometheus.GaugeValue, seconds(*snap.P50))
	ch <- prometheus.MustNewConstMetric(c.p95Desc, prometheus.GaugeValue, seconds(*snap.P95))
	ch <- prometheus.MustNewConstMetric(c.p99Desc, prometheus.GaugeValue, seconds(*snap.P99))
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}
