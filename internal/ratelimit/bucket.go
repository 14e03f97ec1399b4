// Package ratelimit implements the token-bucket rate limiter that
// serializes outbound requests to the statistics sources. The limiter
// runs in one of two modes: a single global bucket shared by every
// caller, or lazily created per-domain buckets so a slow or penalized
// domain can never delay permits for a different domain.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a single rate-limited resource counter. Tokens refill as
// a pure function of elapsed monotonic time (time.Since carries the
// monotonic clock reading, so wall-clock skew cannot corrupt the refill).
// The invariant 0 <= tokens <= capacity holds after every operation.
//
// The bucket's mutex is held only for the duration of a refill-and-consume
// check, never across a sleep; waiters sleep outside the lock so one
// waiter's backoff cannot block another's token check.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a bucket holding capacity tokens, refilling at
// refillRate tokens per second. The bucket starts full.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// refill credits tokens for the monotonic time elapsed since the last
// refill, clamped to capacity. Caller must hold mu.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryConsume attempts to take one token. On success it returns (true, 0).
// On failure it returns false plus the duration until one token will be
// available, so the caller can sleep without holding the lock. The hint is
// only an estimate: other waiters may consume the refilled token first,
// which is why callers re-check in a loop.
func (b *TokenBucket) TryConsume() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	needed := (1 - b.tokens) / b.refillRate
	return false, time.Duration(needed * float64(time.Second))
}

// Tokens returns the current token count after a refill. Exposed for
// tests and diagnostics.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(time.Now())
	return b.tokens
}

// Reset restores the bucket to full capacity.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.lastRefill = time.Now()
}
