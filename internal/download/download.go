// Package download defines the contract every statistics source
// implements, the result value produced by a fetch, and the error taxonomy
// shared by the rate limiting, retry and orchestration layers.
//
// Concrete sources (the league JSON API, the HTML report pages, third
// party sites) live under internal/sources and supply URL building and
// fetch logic; everything generic — rate limiting, retry, progress — stays
// outside of them.
package download

import (
	"context"
	"time"
)

// Status describes the lifecycle state of a single item fetch.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// defaultFailureMessage is applied to FAILED results whose failure path
// did not supply one; a FAILED result must never carry an empty message.
const defaultFailureMessage = "download failed (no error detail recorded)"

// Result is the immutable outcome of one fetch attempt. It is created
// once per outcome and never mutated afterwards.
type Result struct {
	// Source is the stable identifier of the producing Downloader.
	Source string
	// SeasonID is the season the item belongs to, e.g. "20232024".
	SeasonID string
	// ItemID identifies the fetch unit. Empty for season-level metadata
	// fetches.
	ItemID string
	// Status is the terminal state of this attempt.
	Status Status
	// Data is the opaque parsed payload produced by the source. The
	// orchestration layer never inspects it.
	Data interface{}
	// RawContent optionally holds the original response bytes for audit.
	RawContent []byte
	// ErrorMessage is required when Status is StatusFailed.
	ErrorMessage string
	// RetryCount is the number of retries consumed producing this result.
	RetryCount int
	// DownloadedAt stamps when the outcome was produced.
	DownloadedAt time.Time
}

// NewResult constructs a Result, stamping DownloadedAt and enforcing the
// failure-message invariant: a FAILED result without a message receives a
// non-empty default.
func NewResult(source, seasonID, itemID string, status Status, data interface{}) *Result {
	r := &Result{
		Source:       source,
		SeasonID:     seasonID,
		ItemID:       itemID,
		Status:       status,
		Data:         data,
		DownloadedAt: time.Now().UTC(),
	}
	if status == StatusFailed {
		r.ErrorMessage = defaultFailureMessage
	}
	return r
}

// NewFailedResult constructs a FAILED Result carrying the given message,
// defaulted when empty.
func NewFailedResult(source, seasonID, itemID, errorMessage string) *Result {
	if errorMessage == "" {
		errorMessage = defaultFailureMessage
	}
	return &Result{
		Source:       source,
		SeasonID:     seasonID,
		ItemID:       itemID,
		Status:       StatusFailed,
		ErrorMessage: errorMessage,
		DownloadedAt: time.Now().UTC(),
	}
}

// IsSuccessful reports whether the fetch completed.
func (r *Result) IsSuccessful() bool {
	return r.Status == StatusCompleted
}

// ItemList is a finite sequence of item keys. Each call to
// Downloader.ListItems returns a fresh list, so enumeration is restartable
// and may re-query an upstream schedule. Next returns ok=false once the
// sequence is exhausted.
type ItemList interface {
	Next(ctx context.Context) (key string, ok bool, err error)
}

// Downloader is the contract a statistics source implements. A Downloader
// is stateless across items: all per-item mutable state lives in the
// progress store.
//
// Resource lifecycle: a Downloader owns its HTTP connection pool and must
// release it via Close once the batch ends, regardless of outcome.
type Downloader interface {
	// SourceName returns the stable identifier used as the progress store
	// key prefix, e.g. "nhl_api".
	SourceName() string

	// BaseURL returns the root URL of the upstream. The orchestrator keys
	// rate-limiter permits by it, and reachability probes target it.
	BaseURL() string

	// FetchItem fetches and parses one item. Irrecoverable failures
	// return a typed *Error; transient upstream failures return a
	// *RetryableError so the retry handler can classify them.
	FetchItem(ctx context.Context, itemID string) (*Result, error)

	// ListItems derives the item keys for a season. The returned list is
	// finite and the call is safe to repeat.
	ListItems(ctx context.Context, seasonID string) (ItemList, error)

	// HealthCheck probes upstream reachability. A non-nil error means a
	// batch against this source should not start.
	HealthCheck(ctx context.Context) error

	// Close releases the source's HTTP connection pool.
	Close() error
}

// staticItems adapts a slice of keys to the ItemList contract.
type staticItems struct {
	keys []string
	pos  int
}

// StaticItems returns an ItemList over a fixed slice of keys.
func StaticItems(keys []string) ItemList {
	return &staticItems{keys: keys}
}

func (s *staticItems) Next(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s.pos >= len(s.keys) {
		return "", false, nil
	}
	key := s.keys[s.pos]
	s.pos++
	return key, true, nil
}

// Collect drains an ItemList into a slice, applying an optional filter.
// The orchestrator uses it to obtain the batch total before fetching.
func Collect(ctx context.Context, list ItemList, filter func(string) bool) ([]string, error) {
	var keys []string
	for {
		key, ok, err := list.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return keys, nil
		}
		if filter != nil && !filter(key) {
			continue
		}
		keys = append(keys, key)
	}
}
