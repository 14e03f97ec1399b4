// Package logger provides the structured logging implementation used by the
// collector. It outputs JSON lines with a consistent field structure for
// efficient querying in log aggregation systems like Loki.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

// Log level constants ordered by severity (lowest to highest).
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel converts a string representation to a LogLevel.
// Unrecognized levels default to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// contextKey is the key type for values the logger extracts from contexts.
type contextKey string

// Context keys whose values are copied into every log entry when present.
const (
	BatchIDKey  contextKey = "batch_id"
	SourceKey   contextKey = "source"
	SeasonIDKey contextKey = "season_id"
)

// WithBatchID returns a context carrying the batch identifier for log
// correlation.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

// WithSource returns a context carrying the source name.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// WithSeasonID returns a context carrying the season identifier.
func WithSeasonID(ctx context.Context, seasonID string) context.Context {
	return context.WithValue(ctx, SeasonIDKey, seasonID)
}

// JSONLogger implements types.Logger with JSON output. It provides
// structured logging with level filtering, persistent fields and automatic
// extraction of batch correlation values from the context. Safe for
// concurrent use.
type JSONLogger struct {
	mu               sync.RWMutex
	output           io.Writer
	serviceName      string
	environment      string
	hostname         string
	minLevel         LogLevel
	persistentFields types.Fields
}

// New creates a JSONLogger. If output is nil it defaults to os.Stdout.
// The system hostname is detected automatically and included in every
// entry.
func New(serviceName, environment, logLevel string, output io.Writer, additionalFields types.Fields) *JSONLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	if output == nil {
		output = os.Stdout
	}

	return &JSONLogger{
		output:           output,
		serviceName:      serviceName,
		environment:      environment,
		hostname:         hostname,
		minLevel:         ParseLevel(logLevel),
		persistentFields: additionalFields,
	}
}

// Info logs an informational message.
func (l *JSONLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > InfoLevel {
		return
	}
	l.log(ctx, InfoLevel, msg, nil, fields)
}

// Error logs an error message with the causing error.
func (l *JSONLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	if l.minLevel > ErrorLevel {
		return
	}
	l.log(ctx, ErrorLevel, msg, err, fields)
}

// Warn logs a warning message.
func (l *JSONLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > WarnLevel {
		return
	}
	l.log(ctx, WarnLevel, msg, nil, fields)
}

// Debug logs a debug message.
func (l *JSONLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > DebugLevel {
		return
	}
	l.log(ctx, DebugLevel, msg, nil, fields)
}

// WithFields returns a new JSONLogger that includes the given fields in
// every subsequent entry.
func (l *JSONLogger) WithFields(fields types.Fields) types.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newFields := make(types.Fields)
	for k, v := range l.persistentFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &JSONLogger{
		output:           l.output,
		serviceName:      l.serviceName,
		environment:      l.environment,
		hostname:         l.hostname,
		minLevel:         l.minLevel,
		persistentFields: newFields,
	}
}

// log formats and writes a single entry. Standard fields (timestamp,
// level, service, env, hostname, message) come first, then context values,
// the error if any, persistent fields and finally call-specific fields.
func (l *JSONLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields types.Fields) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry := make(types.Fields)

	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["service"] = l.serviceName
	entry["env"] = l.environment
	entry["hostname"] = l.hostname
	entry["message"] = msg

	if batchID, ok := ctx.Value(BatchIDKey).(string); ok {
		entry["batch_id"] = batchID
	}
	if source, ok := ctx.Value(SourceKey).(string); ok {
		entry["source"] = source
	}
	if seasonID, ok := ctx.Value(SeasonIDKey).(string); ok {
		entry["season_id"] = seasonID
	}

	if err != nil {
		entry["error"] = err.Error()
		entry["error_type"] = fmt.Sprintf("%T", err)
	}

	for k, v := range l.persistentFields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}

	if jsonBytes, err := json.Marshal(entry); err == nil {
		l.output.Write(jsonBytes)
		l.output.Write([]byte("\n"))
	}
}
