package server

import (
	"net/http"
	"strconv"
	"time"
)

// statusWriter captures the response status and stamps the X-Process-Time
// header at first write, the last point headers can still be set.
type statusWriter struct {
	http.ResponseWriter
	status int
	start  time.Time
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.wrote = true
		w.status = code
		elapsed := time.Since(w.start)
		w.Header().Set("X-Process-Time", strconv.FormatFloat(elapsed.Seconds(), 'f', 6, 64))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// instrument applies, in order: the global adaptive throttle, the
// per-client Redis limit, then request timing. The elapsed time comes from
// time.Since, which reads the monotonic clock, and lands in the rolling
// window plus the Prometheus instruments.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adaptive != nil && !s.adaptive.Allow() {
			s.observe(route, http.StatusTooManyRequests, 0)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "service throttled"})
			return
		}
		if s.clientLimit != nil && !s.clientLimit.Allow(r.Context(), clientID(r)) {
			s.observe(route, http.StatusTooManyRequests, 0)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK, start: time.Now()}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(sw.start)

		if err := s.tracker.Record(elapsed); err != nil {
			// Unreachable with a monotonic clock; log rather than fail the
			// request that was already served.
			s.log.WithError(err).Warn("latency sample rejected")
		}
		s.observe(route, sw.status, elapsed)
	})
}

// observe fans a completed request out to the Prometheus instruments and
// the in-process error-rate counters.
func (s *Server) observe(route string, status int, elapsed time.Duration) {
	s.metrics.ObserveRequest(route, status, elapsed)
	if s.stats != nil {
		s.stats.Observe(status)
	}
}
