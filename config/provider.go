package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Provider manages the configuration lifecycle and ensures singleton
// behavior.
type Provider struct {
	config *Config
	mu     sync.RWMutex
	loaded bool
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the singleton configuration provider instance.
func GetProvider() *Provider {
	once.Do(func() {
		instance = &Provider{}
	})
	return instance
}

// Load loads configuration from environment variables and .env files.
// Call once at application startup.
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil
	}

	if err := p.loadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := p.parseConfig()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// MustLoad loads configuration and panics on error. Use for application
// initialization where errors are fatal.
func (p *Provider) MustLoad() {
	if err := p.Load(); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
}

// Get returns the current configuration, or an error if Load has not been
// called.
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded || p.config == nil {
		return nil, fmt.Errorf("configuration not loaded; call Load() first")
	}

	return p.config, nil
}

// MustGet returns the configuration or panics if not loaded.
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(fmt.Sprintf("failed to get configuration: %v", err))
	}
	return cfg
}

// loadEnvFiles loads .env files in order of precedence: .env, then
// .env.{ENVIRONMENT}, then .env.local. All are optional.
func (p *Provider) loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	env := os.Getenv("ENVIRONMENT")
	if env != "" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	return nil
}

// parseConfig parses configuration from environment variables.
func (p *Provider) parseConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", "nhl_collector"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Version:     getEnv("SERVICE_VERSION", "1.0.0"),

		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getInt("DB_PORT", 5432),
			Username:     getEnv("DB_USER", "nhl"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "nhl_stats"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5),
		},

		HTTP: HTTPConfig{
			Timeout:   getDuration("HTTP_TIMEOUT", "30s"),
			UserAgent: getEnv("HTTP_USER_AGENT", "nhl-stats-collector/1.0"),
		},

		RateLimit: RateLimitConfig{
			RequestsPerSecond: getFloat64("RATE_LIMIT_REQUESTS_PER_SECOND", 3.0),
			BurstSize:         getFloat64("RATE_LIMIT_BURST_SIZE", 0),
			PerDomain:         getBool("RATE_LIMIT_PER_DOMAIN", true),
		},

		Retry: RetryConfig{
			MaxRetries:           getInt("RETRY_MAX_RETRIES", 3),
			BaseDelay:            getDuration("RETRY_BASE_DELAY", "1s"),
			MaxDelay:             getDuration("RETRY_MAX_DELAY", "60s"),
			ExponentialBase:      getFloat64("RETRY_EXPONENTIAL_BASE", 2.0),
			JitterFactor:         getFloat64("RETRY_JITTER_FACTOR", 0.1),
			RetryableStatusCodes: getIntList("RETRY_RETRYABLE_STATUS_CODES", nil),
		},

		Archive: ArchiveConfig{
			Enabled:         getBool("ARCHIVE_ENABLED", false),
			Region:          getEnv("AWS_REGION", "us-east-2"),
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
		},

		Publisher: PublisherConfig{
			Enabled:   getBool("PUBLISHER_ENABLED", false),
			RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379"),
			StreamKey: getEnv("PUBLISHER_STREAM_KEY", "collector.progress"),
			MaxLen:    int64(getInt("PUBLISHER_STREAM_MAXLEN", 10000)),
		},

		Sources: SourcesConfig{
			APIBaseURL:      getEnv("SOURCE_API_BASE_URL", "https://api-web.nhle.com"),
			ReportsBaseURL:  getEnv("SOURCE_REPORTS_BASE_URL", "https://www.nhl.com/scores/htmlreports"),
			ExternalBaseURL: getEnv("SOURCE_EXTERNAL_BASE_URL", "https://www.hockey-reference.com"),
		},

		Metrics: MetricsConfig{
			Enabled: getBool("METRICS_ENABLED", true),
			Addr:    getEnv("METRICS_ADDR", ":9090"),
		},
	}

	cfg.applyDefaults()

	return cfg, nil
}

// IsLoaded returns whether configuration has been loaded.
func (p *Provider) IsLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}
