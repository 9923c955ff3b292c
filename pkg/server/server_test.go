package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheuk209/inference-lab/pkg/adaptive"
	"github.com/cheuk209/inference-lab/pkg/metrics"
	"github.com/cheuk209/inference-lab/pkg/rolling"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tracker, err := rolling.New(100)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	s := New(tracker, metrics.New(tracker), &metrics.RequestStats{}, nil, nil, "1.0.0", logrus.NewEntry(log))
	// Keep tests fast: no simulated inference sleep.
	s.sleep = func(time.Duration) {}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestPredict(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/predict", `{"feature_1": 5, "feature_2": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// (5*0.3 + 10*0.7) / 10 = 0.85
	assert.InDelta(t, 0.85, resp.Prediction, 1e-9)
	assert.Equal(t, "1.0.0", resp.ModelVersion)
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
}

func TestPredictInvalidBody(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/predict", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictRecordsLatency(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	for i := 0; i < 5; i++ {
		doJSON(t, h, http.MethodPost, "/predict", `{"feature_1": 1, "feature_2": 2}`)
	}
	assert.Equal(t, 5, s.tracker.Len())
}

func TestLatencyMetricsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/metrics/latency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// No samples yet: percentiles must be null, never 0.
	assert.JSONEq(t, `{"p50_ms":null,"p95_ms":null,"p99_ms":null,"sample_count":0}`, rec.Body.String())
}

func TestLatencyMetricsAfterTraffic(t *testing.T) {
	s := newTestServer(t)
	for ms := 10; ms <= 100; ms += 10 {
		require.NoError(t, s.tracker.Record(time.Duration(ms)*time.Millisecond))
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/metrics/latency", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LatencyMetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.SampleCount)
	require.NotNil(t, resp.P50Ms)
	require.NotNil(t, resp.P95Ms)
	require.NotNil(t, resp.P99Ms)
	assert.InDelta(t, 50.0, *resp.P50Ms, 1e-9)
	assert.InDelta(t, 100.0, *resp.P95Ms, 1e-9)
	assert.InDelta(t, 100.0, *resp.P99Ms, 1e-9)
}

func TestPrometheusEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	doJSON(t, h, http.MethodPost, "/predict", `{"feature_1": 1, "feature_2": 2}`)

	rec := doJSON(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "inference_requests_total")
	assert.Contains(t, body, "inference_rolling_latency_samples")
}

func TestAdaptiveThrottleReturns429(t *testing.T) {
	s := newTestServer(t)
	throttle := adaptive.NewLimiter(1)
	throttle.SetFactor(0.1)
	s.adaptive = throttle

	h := s.Handler()
	// Drain the burst allowance, then expect throttling.
	got429 := false
	for i := 0; i < 20; i++ {
		rec := doJSON(t, h, http.MethodPost, "/predict", `{"feature_1": 1, "feature_2": 2}`)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	assert.True(t, got429, "expected a throttled response")
}

func TestThrottledRequestsNotSampled(t *testing.T) {
	s := newTestServer(t)
	throttle := adaptive.NewLimiter(1)
	throttle.SetFactor(0.1)
	s.adaptive = throttle

	h := s.Handler()
	for i := 0; i < 20; i++ {
		doJSON(t, h, http.MethodPost, "/predict", `{"feature_1": 1, "feature_2": 2}`)
	}
	// Rejected requests never ran the handler, so the window only holds
	// samples for requests that were actually served.
	served := 0
	for _, d := range s.tracker.Samples() {
		require.GreaterOrEqual(t, d, time.Duration(0))
		served++
	}
	assert.Equal(t, s.tracker.Len(), served)
	assert.Less(t, served, 20)
}
