// Package server is the HTTP layer: simulated inference endpoints, the
// latency-recording middleware, and the metrics/health surface.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cheuk209/inference-lab/pkg/adaptive"
	"github.com/cheuk209/inference-lab/pkg/limiter"
	"github.com/cheuk209/inference-lab/pkg/metrics"
	"github.com/cheuk209/inference-lab/pkg/rolling"
)

// PredictRequest is the inference input.
type PredictRequest struct {
	Feature1 float64 `json:"feature_1"`
	Feature2 float64 `json:"feature_2"`
}

// PredictResponse is the inference output.
type PredictResponse struct {
	Prediction   float64 `json:"prediction"`
	ModelVersion string  `json:"model_version"`
}

// LatencyMetricsResponse serializes a rolling.Snapshot. The percentile
// fields are pointers so an empty window reports null, never 0.
type LatencyMetricsResponse struct {
	P50Ms       *float64 `json:"p50_ms"`
	P95Ms       *float64 `json:"p95_ms"`
	P99Ms       *float64 `json:"p99_ms"`
	SampleCount int      `json:"sample_count"`
}

// Server owns the handlers and the injected collaborators. Everything is an
// explicit field; nothing reaches for globals, so tests construct their own
// instances freely.
type Server struct {
	tracker      *rolling.Tracker
	metrics      *metrics.Metrics
	stats        *metrics.RequestStats
	adaptive     *adaptive.Limiter     // nil disables the global throttle
	clientLimit  *limiter.RedisLimiter // nil disables per-client limiting
	modelVersion string
	log          *logrus.Entry

	// simulated inference latency bounds
	minLatency time.Duration
	maxLatency time.Duration
	sleep      func(time.Duration)
}

// New wires a server. adaptiveLimiter and clientLimiter may be nil.
func New(
	tracker *rolling.Tracker,
	m *metrics.Metrics,
	stats *metrics.RequestStats,
	adaptiveLimiter *adaptive.Limiter,
	clientLimiter *limiter.RedisLimiter,
	modelVersion string,
	log *logrus.Entry,
) *Server {
	return &Server{
		tracker:      tracker,
		metrics:      m,
		stats:        stats,
		adaptive:     adaptiveLimiter,
		clientLimit:  clientLimiter,
		modelVersion: modelVersion,
		log:          log,
		minLatency:   80 * time.Millisecond,
		maxLatency:   120 * time.Millisecond,
		sleep:        time.Sleep,
	}
}

// Handler builds the route table. Every route passes through the limiting
// and latency-recording middleware except the metrics surface itself, which
// must stay observable while the service is throttled.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /predict", s.instrument("/predict", http.HandlerFunc(s.handlePredict)))
	mux.Handle("POST /predict/heavy", s.instrument("/predict/heavy", http.HandlerFunc(s.handlePredictHeavy)))
	mux.Handle("GET /healthz", http.HandlerFunc(s.handleHealthz))
	mux.Handle("GET /metrics/latency", http.HandlerFunc(s.handleLatencyMetrics))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /{$}", http.HandlerFunc(s.handleIndex))
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "inference lab",
		"metrics": "/metrics/latency",
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handlePredict simulates a model call: sleep for a randomized inference
// latency, then combine the features into a score.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	spread := s.maxLatency - s.minLatency
	s.sleep(s.minLatency + time.Duration(rand.Int63n(int64(spread)+1)))

	prediction := (req.Feature1*0.3 + req.Feature2*0.7) / 10
	writeJSON(w, http.StatusOK, PredictResponse{
		Prediction:   math.Round(prediction*100) / 100,
		ModelVersion: s.modelVersion,
	})
}

// handlePredictHeavy burns CPU instead of sleeping, standing in for a model
// that computes rather than waits.
func (s *Server) handlePredictHeavy(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sum := req.Feature1 + req.Feature2
	digest := sha256.Sum256([]byte(hex.EncodeToString([]byte{byte(int(sum) & 0xff)})))
	for i := 0; i < 200_000; i++ {
		digest = sha256.Sum256(digest[:])
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"hash":      hex.EncodeToString(digest[:]),
		"algorithm": "sha256",
	})
}

func (s *Server) handleLatencyMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.SnapshotMetrics()
	resp := LatencyMetricsResponse{SampleCount: snap.Count}
	resp.P50Ms = durationMs(snap.P50)
	resp.P95Ms = durationMs(snap.P95)
	resp.P99Ms = durationMs(snap.P99)
	writeJSON(w, http.StatusOK, resp)
}

func durationMs(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	ms := float64(*d) / float64(time.Millisecond)
	return &ms
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// clientID extracts the client identity used for per-client limiting.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
