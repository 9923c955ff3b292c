// Package rolling tracks the most recent request latencies in a fixed-size
// window and answers percentile queries over it. The window is exact recent
// history, not a statistical summary: once full, every new sample overwrites
// the oldest one (FIFO).
package rolling

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoSamples signals an empty window. It is an absence signal, not a
	// failure: a freshly started service simply has nothing to report yet.
	// Callers must branch on it rather than treat 0 as "fast".
	ErrNoSamples = errors.New("rolling: no samples recorded")

	// ErrInvalidPercentile is returned for p outside (0, 100].
	ErrInvalidPercentile = errors.New("rolling: percentile must be in (0, 100]")

	// ErrNegativeDuration is returned by Record for a negative sample.
	ErrNegativeDuration = errors.New("rolling: negative duration")
)

// Tracker is a bounded-memory rolling latency window. It is safe for
// concurrent use by any number of writers and readers; no method blocks on
// anything other than the internal mutex.
type Tracker struct {
	mu   sync.Mutex
	vals []time.Duration // ring storage, len(vals) == capacity
	next int             // index the next Record call writes to
	size int             // number of valid samples, <= len(vals)
}

// New creates a Tracker holding at most capacity samples.
func New(capacity int) (*Tracker, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("rolling: capacity must be at least 1, got %d", capacity)
	}
	return &Tracker{vals: make([]time.Duration, capacity)}, nil
}

// Record appends one elapsed-time sample, overwriting the oldest sample once
// the window is full. Negative durations are rejected with
// ErrNegativeDuration rather than clamped: a monotonic clock cannot produce
// one, so a negative value is always a caller bug and clamping it to zero
// would plant a fake fast measurement in the window.
//
// Record is O(1) and never allocates after construction.
func (t *Tracker) Record(d time.Duration) error {
	if d < 0 {
		return ErrNegativeDuration
	}
	t.mu.Lock()
	t.vals[t.next] = d
	t.next = (t.next + 1) % len(t.vals)
	if t.size < len(t.vals) {
		t.size++
	}
	t.mu.Unlock()
	return nil
}

// Len returns the number of samples currently in the window.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Cap returns the fixed window capacity.
func (t *Tracker) Cap() int {
	return len(t.vals)
}

// Samples returns a copy of the current window in insertion order, oldest
// first. The copy is taken under the lock, so it never observes a
// half-applied Record.
func (t *Tracker) Samples() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, t.size)
	if t.size < len(t.vals) {
		copy(out, t.vals[:t.size])
		return out
	}
	// Full ring: oldest sample sits at the write index.
	n := copy(out, t.vals[t.next:])
	copy(out[n:], t.vals[:t.next])
	return out
}

// Percentile returns the p-th percentile of the current window using the
// nearest-rank method: the samples are sorted ascending and the one at rank
// ceil(p/100 * count) is returned. The result is always a value that was
// actually recorded, never an interpolation.
//
// p must be in (0, 100]; out-of-range values are rejected with
// ErrInvalidPercentile, not clamped. An empty window yields ErrNoSamples.
func (t *Tracker) Percentile(p float64) (time.Duration, error) {
	if p <= 0 || p > 100 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidPercentile, p)
	}
	samples := t.Samples()
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return nearestRank(samples, p), nil
}

// nearestRank picks the percentile value from an ascending-sorted slice.
// The rank is clamped to [1, len(sorted)] to absorb floating-point edge
// cases at the boundaries.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Snapshot is a point-in-time view of the window's headline percentiles.
// The percentile fields are nil when the window is empty so that a
// serialized snapshot reports null, never a fabricated zero.
type Snapshot struct {
	Count int
	P50   *time.Duration
	P95   *time.Duration
	P99   *time.Duration
}

// SnapshotMetrics computes p50, p95 and p99 over the current window with a
// single copy and sort.
func (t *Tracker) SnapshotMetrics() Snapshot {
	samples := t.Samples()
	snap := Snapshot{Count: len(samples)}
	if len(samples) == 0 {
		return snap
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	p50 := nearestRank(samples, 50)
	p95 := nearestRank(samples, 95)
	p99 := nearestRank(samples, 99)
	snap.P50, snap.P95, snap.P99 = &p50, &p95, &p99
	return snap
}
