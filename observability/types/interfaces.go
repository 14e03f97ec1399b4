// Package types declares the observability contracts shared by every
// component of the collector.
//
// The collector depends on these interfaces, never on concrete logger or
// metrics implementations, so tests can substitute mocks and deployments
// can swap backends without touching the orchestration code.
package types

import (
	"context"
	"io"
)

// Logger defines the contract for structured logging.
// Implementations emit JSON-formatted output suitable for log aggregation
// systems like Loki. All methods are context-aware so batch and request
// identifiers can be correlated across components.
type Logger interface {
	// Info logs an informational message with structured fields.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message together with the causing error.
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a potentially harmful situation that does not prevent
	// operation.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs detailed troubleshooting information, typically filtered
	// out in production.
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger that includes the given fields in
	// every subsequent entry. Useful for per-batch or per-source context.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection. Implementations
// provide Prometheus-compatible metrics following Prometheus naming
// conventions.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation type.
	RecordSuccess(operationType string)

	// RecordError increments the error counter for an operation and error
	// category.
	RecordError(operationType string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	// Use time.Since(start).Seconds().
	RecordDuration(operation string, duration float64)

	// RecordFileSize records the size of a fetched payload in bytes.
	RecordFileSize(fileType string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	// Call in a defer so it runs even on errors.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values must be JSON-serializable.
type Fields map[string]interface{}

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName identifies the service in logs and metrics.
	ServiceName string

	// Environment specifies the deployment environment
	// ("development", "staging", "production").
	Environment string

	// LogLevel sets the minimum log level ("debug", "info", "warn",
	// "error"); messages below it are filtered out.
	LogLevel string

	// LogOutput is where logs are written. Defaults to os.Stdout when nil.
	LogOutput io.Writer

	// AdditionalFields are included in every log entry, e.g. version or
	// region.
	AdditionalFields Fields
}

// Provider manages the lifecycle of observability components and acts as a
// factory for per-component Logger and Metrics instances.
type Provider interface {
	// Logger returns a Logger scoped to the named component.
	Logger(component string) Logger

	// Metrics returns a Metrics collector scoped to the named component.
	Metrics(component string) Metrics

	// Close releases provider resources at shutdown.
	Close() error
}
