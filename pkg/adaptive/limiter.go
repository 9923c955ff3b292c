// Package adaptive throttles the service as a whole in response to its own
// health: a background monitor scales a base request rate by a factor
// derived from CPU, rolling p95 latency and error rate.
package adaptive

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter whose rate the monitor adjusts at
// runtime.
type Limiter struct {
	mu       sync.RWMutex
	baseRate float64
	inner    *rate.Limiter
}

// NewLimiter creates a limiter admitting baseRate requests/second at full
// health, with a burst of the same size.
func NewLimiter(baseRate float64) *Limiter {
	return &Limiter{
		baseRate: baseRate,
		inner:    rate.NewLimiter(rate.Limit(baseRate), int(baseRate)),
	}
}

// Allow reports whether one more request may proceed right now. Called by
// the HTTP middleware on every request.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Allow()
}

// SetFactor rescales the admitted rate to baseRate * factor. Called by the
// monitor after each health check.
func (l *Limiter) SetFactor(factor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.SetLimit(rate.Limit(l.baseRate * factor))
}

// Rate returns the currently admitted requests/second.
func (l *Limiter) Rate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return float64(l.inner.Limit())
}
