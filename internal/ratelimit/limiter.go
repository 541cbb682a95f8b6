// Package ratelimit implements the per-provider minimum-delay limiter and
// circuit breaker shared by every provider adapter.
package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Limiter enforces a minimum delay between consecutive calls to one
// provider. Updates to the last-call timestamp occur under a single mutex,
// matching the "acquire, update, release, then sleep" locking discipline.
type Limiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	lastCall time.Time
}

// NewLimiter returns a Limiter enforcing minDelay between calls.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{minDelay: minDelay}
}

// Wait blocks until minDelay has elapsed since the previous call, then
// records this call's timestamp. It never sleeps while holding the mutex.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	var sleep time.Duration
	if !l.lastCall.IsZero() {
		elapsed := now.Sub(l.lastCall)
		if elapsed < l.minDelay {
			sleep = l.minDelay - elapsed
		}
	}
	l.lastCall = now.Add(sleep)
	l.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryBackoff computes the 429 retry sleep per §4.2: base 45s × attempt,
// with a small jitter to avoid a thundering herd across books processed in
// the same batch.
func RetryBackoff(attempt int) time.Duration {
	base := 45 * time.Second * time.Duration(attempt)
	jitter := time.Duration(rand.Int63n(int64(5 * time.Second)))
	return base + jitter
}

// ExponentialBackoff with jitter, used when a provider signals a retry-hint
// without a precise duration.
func ExponentialBackoff(attempt int, base, max time.Duration, jitterFactor float64) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		d = max
	}
	jitter := time.Duration(float64(d) * jitterFactor * rand.Float64())
	return d + jitter
}
