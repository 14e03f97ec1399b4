// Package observability provides a centralized provider for the logging
// and metrics components used throughout the collector.
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cooneycw/nhl-api-sub002/observability/logger"
	"github.com/cooneycw/nhl-api-sub002/observability/metrics"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// Logger is a type alias for the Logger interface from the types package.
type Logger = types.Logger

// Metrics is a type alias for the Metrics interface from the types package.
type Metrics = types.Metrics

// Fields is a type alias for structured logging fields.
type Fields = types.Fields

// Config is a type alias for the observability configuration.
type Config = types.Config

// Provider is a type alias for the Provider interface from the types
// package.
type Provider = types.Provider

// DefaultProvider implements the Provider interface. It hands out Logger
// and Metrics instances per component, creating them lazily and caching
// them so repeated requests for the same component return the same
// instance.
type DefaultProvider struct {
	config  *Config
	loggers map[string]Logger
	metrics map[string]Metrics
	mu      sync.RWMutex
}

// NewProvider creates an observability provider with the given
// configuration. If LogOutput is nil it defaults to os.Stdout.
func NewProvider(config *Config) Provider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}

	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]Logger),
		metrics: make(map[string]Metrics),
	}
}

// Logger returns the Logger for the named component. The logger carries
// the provider's AdditionalFields plus a "component" field, and its
// service name is "{ServiceName}.{component}".
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	serviceName := fmt.Sprintf("%s.%s", p.config.ServiceName, component)

	var l Logger = logger.New(
		serviceName,
		p.config.Environment,
		p.config.LogLevel,
		p.config.LogOutput,
		fields,
	)
	p.loggers[component] = l

	return l
}

// Metrics returns the Metrics collector for the named component. Metric
// names are prefixed with "{ServiceName}_{component}" after sanitizing to
// valid Prometheus characters.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, exists := p.metrics[component]; exists {
		return m
	}

	name := sanitizeMetricName(fmt.Sprintf("%s_%s", p.config.ServiceName, component))

	var m Metrics = metrics.New(name)
	p.metrics[component] = m

	return m
}

// Close releases provider resources. The JSON logger and Prometheus
// metrics hold no closable resources, so this only clears the caches.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loggers = make(map[string]Logger)
	p.metrics = make(map[string]Metrics)
	return nil
}

// sanitizeMetricName replaces characters Prometheus does not accept in
// metric names.
func sanitizeMetricName(name string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", " ", "_")
	return r.Replace(name)
}
