package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// Handler re-invokes failing operations according to its Policy. One
// handler is shared by all batches against a source; it keeps no per-call
// state.
type Handler struct {
	policy  Policy
	logger  types.Logger
	metrics types.Metrics
}

// NewHandler creates a Handler. Nil logger/metrics fall back to no-ops so
// sources can be constructed without observability wiring.
func NewHandler(policy Policy, log types.Logger, met types.Metrics) *Handler {
	if log == nil {
		log = observability.NopLogger{}
	}
	if met == nil {
		met = observability.NopMetrics{}
	}
	return &Handler{
		policy:  policy,
		logger:  log,
		metrics: met,
	}
}

// Policy returns the handler's immutable policy.
func (h *Handler) Policy() Policy {
	return h.policy
}

// Result carries the outcome of ExecuteWithResult: the value or the final
// error, plus attempt accounting for the progress store.
type Result[T any] struct {
	Value      T
	Err        error
	Attempts   int
	TotalDelay time.Duration
}

// Succeeded reports whether the operation eventually completed.
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// Execute runs op, retrying transient failures per the handler's policy.
// On exhaustion it returns *download.MaxRetriesExceededError carrying the
// attempt count and last underlying error. Non-retryable failures
// propagate unchanged after the first occurrence.
//
// Reserve Execute for one-shot systemic operations (health checks,
// season-level metadata); inside a batch's per-item loop use
// ExecuteWithResult so a single item cannot abort the batch.
func Execute[T any](ctx context.Context, h *Handler, name string, op func(context.Context) (T, error)) (T, error) {
	res := ExecuteWithResult(ctx, h, name, op)
	return res.Value, res.Err
}

// ExecuteWithResult runs op with retries and never panics or aborts: the
// returned Result carries either the value or the final classified error
// together with the attempt count and the total backoff delay consumed.
func ExecuteWithResult[T any](ctx context.Context, h *Handler, name string, op func(context.Context) (T, error)) Result[T] {
	var res Result[T]

	for attempt := 0; ; attempt++ {
		res.Attempts++

		value, err := op(ctx)
		if err == nil {
			res.Value = value
			h.metrics.RecordSuccess(name)
			return res
		}

		retryable, retryAfter := h.classify(err)
		if !retryable {
			h.metrics.RecordError(name, "fatal")
			res.Err = err
			return res
		}

		if attempt >= h.policy.MaxRetries {
			h.metrics.RecordError(name, "retries_exhausted")
			res.Err = &download.MaxRetriesExceededError{
				Operation: name,
				Attempts:  res.Attempts,
				LastErr:   err,
			}
			return res
		}

		delay := h.policy.Delay(attempt, retryAfter)
		res.TotalDelay += delay

		h.logger.Warn(ctx, "retrying after transient failure", types.Fields{
			"operation": name,
			"attempt":   res.Attempts,
			"delay_ms":  delay.Milliseconds(),
			"error":     err.Error(),
		})
		h.metrics.RecordError(name, "transient")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}
}

// classify decides whether an error is worth retrying. Only the typed
// *download.RetryableError with a status in the policy set qualifies;
// context cancellation and every other error type fail fast.
func (h *Handler) classify(err error) (retryable bool, retryAfter time.Duration) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, 0
	}

	var re *download.RetryableError
	if errors.As(err, &re) {
		return h.policy.IsRetryableStatus(re.StatusCode), re.RetryAfter
	}
	return false, 0
}
