package download

import (
	"fmt"
	"time"
)

// Error is the base failure type surfaced by sources. Failures of this
// type (and not of the retryable subtype) are fatal for the item and are
// never retried.
type Error struct {
	Message string
	Source  string
	ItemID  string
	Cause   error
}

// NewError constructs a fatal download error.
func NewError(source, itemID, message string, cause error) *Error {
	return &Error{
		Message: message,
		Source:  source,
		ItemID:  itemID,
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = fmt.Sprintf("%s: %s", e.Source, msg)
	}
	if e.ItemID != "" {
		msg = fmt.Sprintf("%s (item %s)", msg, e.ItemID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// RetryableError marks a transient upstream failure: HTTP 429/5xx or a
// connection-level failure that is worth retrying with backoff. It carries
// the status code for policy classification and an optional server
// supplied Retry-After delay.
type RetryableError struct {
	Message string
	Source  string
	ItemID  string
	Cause   error
	// StatusCode is the HTTP-like status that triggered the failure. Zero
	// for connection-level failures.
	StatusCode int
	// RetryAfter is the server-requested delay, zero when absent.
	RetryAfter time.Duration
}

// NewRetryableError constructs a transient failure.
func NewRetryableError(source, itemID, message string, statusCode int, retryAfter time.Duration, cause error) *RetryableError {
	return &RetryableError{
		Message:    message,
		Source:     source,
		ItemID:     itemID,
		Cause:      cause,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}
}

func (e *RetryableError) Error() string {
	base := (&Error{Message: e.Message, Source: e.Source, ItemID: e.ItemID, Cause: e.Cause}).Error()
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d)", base, e.StatusCode)
	}
	return base
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// MaxRetriesExceededError is returned once all retry attempts for an
// operation are exhausted. Attempts counts every invocation, so it equals
// maxRetries+1.
type MaxRetriesExceededError struct {
	Operation string
	Attempts  int
	LastErr   error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("%s: exhausted %d attempts: %v", e.Operation, e.Attempts, e.LastErr)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.LastErr
}

// HealthCheckError aborts a batch before any item is attempted when the
// source's reachability probe fails.
type HealthCheckError struct {
	Source string
	Cause  error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check failed for source %s: %v", e.Source, e.Cause)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Cause
}
