// Package retry wraps fallible operations with bounded, jittered
// exponential backoff. Transient upstream failures are identified by the
// typed *download.RetryableError; every other failure propagates
// immediately so programming errors and hard 4xx responses fail fast.
package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy is the immutable retry configuration. Construct it through
// NewPolicy (or take DefaultPolicy) so the invariants are validated once;
// it is never mutated afterwards.
type Policy struct {
	// MaxRetries bounds re-invocations; the operation runs at most
	// MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration
	// MaxDelay caps every computed delay, including server Retry-After
	// values.
	MaxDelay time.Duration
	// ExponentialBase is the backoff growth factor, > 1.
	ExponentialBase float64
	// JitterFactor in [0,1] randomizes delays to avoid synchronized
	// retries from concurrent batches.
	JitterFactor float64
	// RetryableStatusCodes is the set of HTTP statuses treated as
	// transient.
	RetryableStatusCodes map[int]struct{}
}

// defaultRetryableStatusCodes covers throttling plus upstream 5xx.
var defaultRetryableStatusCodes = []int{429, 500, 502, 503, 504}

// NewPolicy validates and builds a Policy. A nil or empty statusCodes
// slice selects the default set {429, 500, 502, 503, 504}.
func NewPolicy(maxRetries int, baseDelay, maxDelay time.Duration, exponentialBase, jitterFactor float64, statusCodes []int) (Policy, error) {
	if maxRetries < 0 {
		return Policy{}, fmt.Errorf("max retries must be >= 0, got %d", maxRetries)
	}
	if baseDelay <= 0 {
		return Policy{}, fmt.Errorf("base delay must be > 0, got %v", baseDelay)
	}
	if maxDelay < baseDelay {
		return Policy{}, fmt.Errorf("max delay (%v) must be >= base delay (%v)", maxDelay, baseDelay)
	}
	if exponentialBase <= 1 {
		return Policy{}, fmt.Errorf("exponential base must be > 1, got %v", exponentialBase)
	}
	if jitterFactor < 0 || jitterFactor > 1 {
		return Policy{}, fmt.Errorf("jitter factor must be in [0,1], got %v", jitterFactor)
	}

	if len(statusCodes) == 0 {
		statusCodes = defaultRetryableStatusCodes
	}
	set := make(map[int]struct{}, len(statusCodes))
	for _, code := range statusCodes {
		set[code] = struct{}{}
	}

	return Policy{
		MaxRetries:           maxRetries,
		BaseDelay:            baseDelay,
		MaxDelay:             maxDelay,
		ExponentialBase:      exponentialBase,
		JitterFactor:         jitterFactor,
		RetryableStatusCodes: set,
	}, nil
}

// DefaultPolicy returns the policy used when a source is constructed
// without explicit retry configuration: 3 retries, 1s base, 60s cap,
// doubling with 10% jitter.
func DefaultPolicy() Policy {
	p, _ := NewPolicy(3, time.Second, 60*time.Second, 2.0, 0.1, nil)
	return p
}

// IsRetryableStatus reports whether the status code is in the policy's
// transient set. Status 0 (connection-level failure) is always transient.
func (p Policy) IsRetryableStatus(code int) bool {
	if code == 0 {
		return true
	}
	_, ok := p.RetryableStatusCodes[code]
	return ok
}

// Delay computes the backoff before re-invoking an operation after the
// given zero-indexed attempt. A server-provided retryAfter takes
// precedence over the exponential formula; both paths are capped at
// MaxDelay.
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > p.MaxDelay {
			return p.MaxDelay
		}
		return retryAfter
	}

	delay := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	delay *= 1 + p.JitterFactor*rand.Float64()

	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
