package observability

import (
	"context"

	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// NopLogger is a Logger that discards everything. Useful as a default when
// a component is constructed without observability wiring, and in tests
// that do not assert on log output.
type NopLogger struct{}

func (NopLogger) Info(ctx context.Context, msg string, fields types.Fields)             {}
func (NopLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {}
func (NopLogger) Warn(ctx context.Context, msg string, fields types.Fields)             {}
func (NopLogger) Debug(ctx context.Context, msg string, fields types.Fields)            {}
func (n NopLogger) WithFields(fields types.Fields) types.Logger                         { return n }

// NopMetrics is a Metrics collector that records nothing.
type NopMetrics struct{}

func (NopMetrics) RecordSuccess(operationType string)                  {}
func (NopMetrics) RecordError(operationType string, errorType string)  {}
func (NopMetrics) RecordDuration(operation string, duration float64)   {}
func (NopMetrics) RecordFileSize(fileType string, bytes int64)         {}
func (NopMetrics) StartOperation(operation string)                     {}
func (NopMetrics) EndOperation(operation string)                       {}
