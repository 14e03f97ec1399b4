// Package config loads and validates the collector configuration from
// environment variables and optional .env files.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the collector. It is assembled once
// at startup by the Provider and treated as read-only afterwards; no
// component reads configuration from hidden process-wide state.
type Config struct {
	// Core
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	Database  DatabaseConfig
	HTTP      HTTPConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Archive   ArchiveConfig
	Publisher PublisherConfig
	Sources   SourcesConfig
	Metrics   MetricsConfig
}

// DatabaseConfig configures the Postgres connection backing the progress
// store.
type DatabaseConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// HTTPConfig configures the shared HTTP client used by the download
// sources.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// RateLimitConfig configures the token-bucket rate limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate. Must be > 0.
	RequestsPerSecond float64
	// BurstSize is the bucket capacity. Defaults to RequestsPerSecond
	// when <= 0.
	BurstSize float64
	// PerDomain keys buckets by scheme://host instead of sharing one
	// global bucket.
	PerDomain bool
}

// RetryConfig configures the retry handler.
type RetryConfig struct {
	MaxRetries           int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	ExponentialBase      float64
	JitterFactor         float64
	RetryableStatusCodes []int
}

// ArchiveConfig configures the optional S3 raw-content archive.
type ArchiveConfig struct {
	Enabled         bool
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// PublisherConfig configures the optional Redis progress event stream.
type PublisherConfig struct {
	Enabled   bool
	RedisURL  string
	StreamKey string
	MaxLen    int64
}

// SourcesConfig holds the base URLs of the external data sources.
type SourcesConfig struct {
	APIBaseURL      string
	ReportsBaseURL  string
	ExternalBaseURL string
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Validate checks the configuration for values that would make the
// collector misbehave at runtime. It is called once by the Provider after
// parsing.
func (c *Config) Validate() error {
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_SECOND must be > 0, got %v", c.RateLimit.RequestsPerSecond)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be > 0, got %v", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY (%v) must be >= RETRY_BASE_DELAY (%v)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Retry.ExponentialBase <= 1 {
		return fmt.Errorf("RETRY_EXPONENTIAL_BASE must be > 1, got %v", c.Retry.ExponentialBase)
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		return fmt.Errorf("RETRY_JITTER_FACTOR must be in [0,1], got %v", c.Retry.JitterFactor)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0, got %v", c.HTTP.Timeout)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_S3_BUCKET is required when the archive is enabled")
	}
	return nil
}

// applyDefaults fills in values that are derived from other settings
// rather than parsed directly.
func (c *Config) applyDefaults() {
	if c.RateLimit.BurstSize <= 0 {
		c.RateLimit.BurstSize = c.RateLimit.RequestsPerSecond
	}
	if len(c.Retry.RetryableStatusCodes) == 0 {
		c.Retry.RetryableStatusCodes = []int{429, 500, 502, 503, 504}
	}
}
