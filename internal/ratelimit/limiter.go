package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// Config configures a Limiter. Validated once at construction and never
// mutated.
type Config struct {
	// RequestsPerSecond is the sustained refill rate. Must be > 0.
	RequestsPerSecond float64
	// BurstSize is the bucket capacity; defaults to RequestsPerSecond
	// when <= 0.
	BurstSize float64
	// PerDomain keys buckets by scheme://host. Buckets are created lazily
	// on first use and never removed for the process lifetime.
	PerDomain bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be > 0, got %v", c.RequestsPerSecond)
	}
	return nil
}

// Limiter gates outbound requests through token buckets. All methods are
// safe for concurrent use. In per-domain mode buckets are fully
// independent: exhausting one domain's bucket never delays another's.
type Limiter struct {
	cfg    Config
	logger types.Logger

	// global is the single shared bucket when PerDomain is false.
	global *TokenBucket

	// mu guards the per-domain bucket map only; individual buckets carry
	// their own locks.
	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// New creates a Limiter from the given configuration.
func New(cfg Config, log types.Logger) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerSecond
	}
	if log == nil {
		log = observability.NopLogger{}
	}

	l := &Limiter{
		cfg:    cfg,
		logger: log,
	}
	if cfg.PerDomain {
		l.buckets = make(map[string]*TokenBucket)
	} else {
		l.global = NewTokenBucket(cfg.BurstSize, cfg.RequestsPerSecond)
	}
	return l, nil
}

// Wait blocks until a permit is available for key, or until ctx is
// cancelled. It returns the time spent waiting. In global mode the key is
// ignored. In per-domain mode the key may be a bare domain or a full URL;
// URLs are reduced to scheme://host before bucket lookup.
//
// The wait loop re-checks token availability after every sleep because
// concurrent waiters race for refilled tokens; FIFO ordering between
// waiters is not guaranteed, and the protected resources have no ordering
// requirement.
func (l *Limiter) Wait(ctx context.Context, key string) (time.Duration, error) {
	bucket := l.bucketFor(key)
	start := time.Now()

	for {
		ok, sleepFor := bucket.TryConsume()
		if ok {
			waited := time.Since(start)
			if waited > 0 {
				l.logger.Debug(ctx, "rate limit wait complete", types.Fields{
					"key":       key,
					"waited_ms": waited.Milliseconds(),
				})
			}
			return waited, nil
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset restores buckets to full capacity. With an empty key in
// per-domain mode, every bucket is reset; otherwise only the key's bucket.
func (l *Limiter) Reset(key string) {
	if !l.cfg.PerDomain {
		l.global.Reset()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if key == "" {
		for _, b := range l.buckets {
			b.Reset()
		}
		return
	}
	if b, ok := l.buckets[domainKey(key)]; ok {
		b.Reset()
	}
}

// bucketFor resolves the bucket for a key, creating per-domain buckets
// lazily.
func (l *Limiter) bucketFor(key string) *TokenBucket {
	if !l.cfg.PerDomain {
		return l.global
	}

	domain := domainKey(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[domain]; ok {
		return b
	}
	b := NewTokenBucket(l.cfg.BurstSize, l.cfg.RequestsPerSecond)
	l.buckets[domain] = b
	return b
}

// domainKey normalizes a key to scheme://host when it parses as a URL;
// bare domains pass through lowercased.
func domainKey(key string) string {
	if strings.Contains(key, "://") {
		if u, err := url.Parse(key); err == nil && u.Host != "" {
			return strings.ToLower(u.Scheme + "://" + u.Host)
		}
	}
	return strings.ToLower(key)
}
