package health

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// SimulatedSource generates synthetic health data with random variance
// around a stressed baseline. Handy for watching the adaptive throttle
// react without generating real load.
type SimulatedSource struct {
	rng *rand.Rand
	log *logrus.Entry
}

// NewSimulatedSource creates a source seeded from the given value so runs
// are reproducible.
func NewSimulatedSource(seed int64, log *logrus.Entry) *SimulatedSource {
	return &SimulatedSource{
		rng: rand.New(rand.NewSource(seed)),
		log: log,
	}
}

// FetchMetrics implements HealthSource by generating synthetic data.
func (s *SimulatedSource) FetchMetrics() (HealthData, error) {
	const (
		cpuBase     = 0.75
		latencyBase = 600.0 // ms
		errorBase   = 0.02
	)

	data := HealthData{
		CPUUtilization: clampMin(cpuBase+(s.rng.Float64()*0.1-0.05), 0.1),
		P95LatencyMs:   clampMin(latencyBase+(s.rng.Float64()*100-50), 1.0),
		ErrorRate:      clampMin(errorBase+(s.rng.Float64()*0.01-0.005), 0.001),
	}

	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"cpu":    data.CPUUtilization,
			"p95Ms":  data.P95LatencyMs,
			"errors": data.ErrorRate,
		}).Debug("simulated health sample")
	}
	return data, nil
}

func clampMin(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}
