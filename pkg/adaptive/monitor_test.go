package adaptive

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheuk209/inference-lab/pkg/health"
)

var defaultTargets = Targets{CPU: 0.70, P95Ms: 500, ErrorRate: 0.01}

func TestFactorHealthyService(t *testing.T) {
	data := health.HealthData{CPUUtilization: 0.30, P95LatencyMs: 120, ErrorRate: 0.001}
	assert.InDelta(t, 1.0, defaultTargets.factor(data), 1e-9)
}

func TestFactorMostStressedDimensionWins(t *testing.T) {
	// Latency is 2x over target; CPU and errors are fine.
	data := health.HealthData{CPUUtilization: 0.30, P95LatencyMs: 1000, ErrorRate: 0.001}
	assert.InDelta(t, 0.5, defaultTargets.factor(data), 1e-9)
}

func TestFactorFloor(t *testing.T) {
	data := health.HealthData{CPUUtilization: 0.99, P95LatencyMs: 50000, ErrorRate: 0.5}
	assert.InDelta(t, minFactor, defaultTargets.factor(data), 1e-9)
}

func TestFactorIgnoresMissingData(t *testing.T) {
	// A fresh service has no samples yet: no dimension constrains.
	assert.InDelta(t, 1.0, defaultTargets.factor(health.HealthData{}), 1e-9)
}

func TestSetFactorAdjustsRate(t *testing.T) {
	l := NewLimiter(100)
	assert.InDelta(t, 100.0, l.Rate(), 1e-9)

	l.SetFactor(0.25)
	assert.InDelta(t, 25.0, l.Rate(), 1e-9)

	l.SetFactor(1.0)
	assert.InDelta(t, 100.0, l.Rate(), 1e-9)
}

func TestLimiterAllowBurst(t *testing.T) {
	l := NewLimiter(5)
	allowed := 0
	for i := 0; i < 20; i++ {
		if l.Allow() {
			allowed++
		}
	}
	// The burst bucket admits roughly the base rate, never the full 20.
	assert.GreaterOrEqual(t, allowed, 1)
	assert.LessOrEqual(t, allowed, 6)
}

type stubSource struct {
	data health.HealthData
}

func (s stubSource) FetchMetrics() (health.HealthData, error) {
	return s.data, nil
}

func TestMonitorRunAppliesFactor(t *testing.T) {
	l := NewLimiter(100)
	src := stubSource{data: health.HealthData{P95LatencyMs: 1000}}
	log := logrus.NewEntry(logrus.New())
	m := NewMonitor(l, src, time.Millisecond, defaultTargets, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return l.Rate() < 100
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 50.0, l.Rate(), 1e-9)

	cancel()
	<-done
}
