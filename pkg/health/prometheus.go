package health

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PromQL over the metrics this service itself exports; useful when several
// replicas run behind one Prometheus and the throttle should react to the
// fleet-wide view rather than the local window.
const (
	cpuQuery = `1 - avg(rate(node_cpu_seconds_total{mode="idle"}[5m]))`

	p95LatencyQuery = `histogram_quantile(0.95, rate(inference_request_duration_seconds_bucket[5m]))`

	errorRateQuery = `sum(rate(inference_requests_total{code="5xx"}[5m])) / sum(rate(inference_requests_total[5m]))`
)

const queryTimeout = 3 * time.Second

// PrometheusSource implements HealthSource against a Prometheus server.
type PrometheusSource struct {
	client v1.API
}

// NewPrometheusSource initializes the Prometheus client connection.
func NewPrometheusSource(promURL string) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: promURL})
	if err != nil {
		return nil, fmt.Errorf("creating Prometheus client: %w", err)
	}
	return &PrometheusSource{client: v1.NewAPI(client)}, nil
}

// FetchMetrics executes the PromQL queries and converts the results into
// HealthData. A query that matches no series contributes 0, which the
// monitor treats as unconstrained.
func (p *PrometheusSource) FetchMetrics() (HealthData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	now := time.Now()
	data := HealthData{}

	query := func(q string) (float64, error) {
		result, _, err := p.client.Query(ctx, q, now)
		if err != nil {
			return 0, fmt.Errorf("prometheus query %q: %w", q, err)
		}
		if v, ok := result.(model.Vector); ok && len(v) > 0 {
			return float64(v[0].Value), nil
		}
		return 0, nil
	}

	cpu, err := query(cpuQuery)
	if err != nil {
		return data, err
	}
	data.CPUUtilization = cpu

	latencySec, err := query(p95LatencyQuery)
	if err != nil {
		return data, err
	}
	data.P95LatencyMs = latencySec * 1000.0

	errorRate, err := query(errorRateQuery)
	if err != nil {
		return data, err
	}
	data.ErrorRate = errorRate

	return data, nil
}
