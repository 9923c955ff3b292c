package adaptive

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheuk209/inference-lab/pkg/health"
)

// Factor bounds: never throttle above full rate, never below 10% of the
// base rate so the service keeps serving even when badly stressed.
const (
	maxFactor = 1.0
	minFactor = 0.1
)

// Targets are the health levels the monitor steers towards. A zero target
// disables that dimension.
type Targets struct {
	CPU       float64 // 0-1 fraction, e.g. 0.70
	P95Ms     float64 // milliseconds, e.g. 500
	ErrorRate float64 // 0-1 fraction, e.g. 0.01
}

// Monitor periodically fetches health data and adjusts the limiter.
type Monitor struct {
	limiter  *Limiter
	source   health.HealthSource
	interval time.Duration
	targets  Targets
	log      *logrus.Entry
}

func NewMonitor(limiter *Limiter, source health.HealthSource, interval time.Duration, targets Targets, log *logrus.Entry) *Monitor {
	return &Monitor{
		limiter:  limiter,
		source:   source,
		interval: interval,
		targets:  targets,
		log:      log,
	}
}

// Run executes the check-and-adjust loop until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.WithField("interval", m.interval).Info("adaptive monitor started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info("adaptive monitor stopped")
			return
		case <-ticker.C:
			data, err := m.source.FetchMetrics()
			if err != nil {
				m.log.WithError(err).Warn("health fetch failed, keeping current rate")
				continue
			}
			factor := m.targets.factor(data)
			m.limiter.SetFactor(factor)
			m.log.WithFields(logrus.Fields{
				"factor": factor,
				"rate":   m.limiter.Rate(),
				"p95Ms":  data.P95LatencyMs,
			}).Debug("throttle adjusted")
		}
	}
}

// factor computes the throttle factor in [minFactor, maxFactor]. Each
// dimension contributes target/current; the most stressed dimension wins.
// Dimensions with no data (current == 0) or no target are unconstrained.
func (t Targets) factor(data health.HealthData) float64 {
	factor := maxFactor
	for _, dim := range []struct{ target, current float64 }{
		{t.CPU, data.CPUUtilization},
		{t.P95Ms, data.P95LatencyMs},
		{t.ErrorRate, data.ErrorRate},
	} {
		if dim.target <= 0 || dim.current <= 0 {
			continue
		}
		if f := dim.target / dim.current; f < factor {
			factor = f
		}
	}
	if factor < minFactor {
		return minFactor
	}
	return factor
}
