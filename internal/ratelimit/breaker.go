package ratelimit

import (
	"sync"
	"time"
)

// Breaker is the per-provider consecutive-failure cooldown state machine
// from §4.2: {failures, circuit_open_until, max_failures, cooldown}.
type Breaker struct {
	mu             sync.Mutex
	failures       int
	circuitOpenUntil time.Time
	maxFailures    int
	cooldown       time.Duration

	now func() time.Time
}

// NewBreaker returns a Breaker that trips after maxFailures consecutive
// failures and stays open for cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// RecordFailure increments the failure counter; at maxFailures it trips the
// breaker open for cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.maxFailures {
		b.circuitOpenUntil = b.now().Add(b.cooldown)
	}
}

// RecordQuotaExhausted counts two failures at once and trips the breaker
// open for cooldown immediately, whatever maxFailures is (§4.2 rate-limit
// response handling).
func (b *Breaker) RecordQuotaExhausted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures += 2
	b.circuitOpenUntil = b.now().Add(b.cooldown)
}

// RecordSuccess resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// IsOpen reports whether calls to this provider must currently be skipped.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.circuitOpenUntil)
}

// Remaining returns how long the breaker stays open, or 0 if it is closed.
func (b *Breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.circuitOpenUntil.Sub(b.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WaitInterval returns the bounded poll interval for a caller waiting on
// this breaker: min(remaining, 60s). Callers must wait, never skip a layer
// permanently (issue #74).
func (b *Breaker) WaitInterval() time.Duration {
	remaining := b.Remaining()
	if remaining > 60*time.Second {
		return 60 * time.Second
	}
	return remaining
}
