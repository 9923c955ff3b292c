// Package limiter implements per-client rate limiting backed by Redis, so
// the limit holds across replicas. Two checks run in sequence: a token
// bucket against short bursts and a sliding-window counter against
// sustained abuse.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const keyTTL = 2 * time.Hour

// Options sizes the two checks.
type Options struct {
	// Token bucket: at most BucketCapacity requests in a burst, one token
	// refilled every RefillRate.
	BucketCapacity int64
	RefillRate     time.Duration

	// Sliding window: at most WindowLimit requests per Window.
	WindowLimit int64
	Window      time.Duration
}

// DefaultOptions allows bursts of 20 with 100 requests per minute sustained.
func DefaultOptions() Options {
	return Options{
		BucketCapacity: 20,
		RefillRate:     600 * time.Millisecond,
		WindowLimit:    100,
		Window:         time.Minute,
	}
}

// RedisLimiter is safe for concurrent use; all state lives in Redis.
type RedisLimiter struct {
	client *redis.Client
	opts   Options
	log    *logrus.Entry
}

func New(client *redis.Client, opts Options, log *logrus.Entry) *RedisLimiter {
	return &RedisLimiter{client: client, opts: opts, log: log}
}

// windowKey buckets a timestamp into its window start so all replicas count
// against the same key.
func (l *RedisLimiter) windowKey(id string, at time.Time) string {
	start := at.Truncate(l.opts.Window)
	return fmt.Sprintf("swc:%s:%d", id, start.Unix())
}

// refillBucket advances the token bucket for id based on elapsed time and
// returns the token count before consumption.
func (l *RedisLimiter) refillBucket(ctx context.Context, id string) (int64, error) {
	tokensKey := "tb_tokens:" + id
	refillKey := "tb_refill:" + id

	pipe := l.client.Pipeline()
	tokensCmd := pipe.Get(ctx, tokensKey)
	refillCmd := pipe.Get(ctx, refillKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}

	now := time.Now()
	tokens, _ := tokensCmd.Int64()
	lastRefillUnix, _ := refillCmd.Int64()

	// First request from this client: full bucket.
	if tokensCmd.Err() == redis.Nil {
		tokens = l.opts.BucketCapacity
	}
	if refillCmd.Err() == redis.Nil {
		lastRefillUnix = now.UnixNano()
	}
	lastRefill := time.Unix(0, lastRefillUnix)

	toAdd := int64(now.Sub(lastRefill) / l.opts.RefillRate)
	tokens += toAdd
	if tokens > l.opts.BucketCapacity {
		tokens = l.opts.BucketCapacity
	}
	// Advance the refill clock only by the time actually converted into
	// tokens, so fractional refills are not lost.
	newRefill := lastRefill.Add(time.Duration(toAdd) * l.opts.RefillRate)

	pipe = l.client.Pipeline()
	pipe.Set(ctx, tokensKey, tokens, 0)
	pipe.Set(ctx, refillKey, newRefill.UnixNano(), 0)
	pipe.Expire(ctx, tokensKey, keyTTL)
	pipe.Expire(ctx, refillKey, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}

	return tokens, nil
}

// Allow reports whether a request from id may proceed. Redis failures fail
// open: rejecting traffic because the limiter store is down would turn an
// infrastructure problem into an outage.
func (l *RedisLimiter) Allow(ctx context.Context, id string) bool {
	tokens, err := l.refillBucket(ctx, id)
	if err != nil {
		l.log.WithError(err).Warn("token bucket check failed, allowing request")
		return true
	}
	if tokens < 1 {
		l.log.WithField("id", id).Debug("denied: burst limit exhausted")
		return false
	}

	now := time.Now()
	currentKey := l.windowKey(id, now)
	previousKey := l.windowKey(id, now.Add(-l.opts.Window))

	// Weight the previous window by how much of it still overlaps the
	// sliding window ending now.
	elapsed := now.Sub(now.Truncate(l.opts.Window))
	overlap := 1.0 - float64(elapsed)/float64(l.opts.Window)

	pipe := l.client.Pipeline()
	currentCmd := pipe.Get(ctx, currentKey)
	previousCmd := pipe.Get(ctx, previousKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		l.log.WithError(err).Warn("sliding window check failed, allowing request")
		return true
	}

	current, _ := currentCmd.Int64()
	previous, _ := previousCmd.Int64()
	estimated := int64(float64(previous)*overlap) + current

	if estimated >= l.opts.WindowLimit {
		l.log.WithFields(logrus.Fields{
			"id":        id,
			"estimated": estimated,
			"limit":     l.opts.WindowLimit,
		}).Debug("denied: sustained rate limit exceeded")
		return false
	}

	// Admit: consume one token and count the request in the window.
	l.client.Decr(ctx, "tb_tokens:"+id)
	l.client.Incr(ctx, currentKey)
	l.client.Expire(ctx, currentKey, l.opts.Window+time.Minute)
	return true
}
