// Package progress persists the per-item fetch ledger that makes batches
// resumable across process restarts. Each (source, season, item) triple
// maps to exactly one row; re-upserting the same key updates it in place,
// which is the idempotency guarantee every resume workflow relies on.
package progress

import (
	"errors"
	"time"
)

// ErrNotFound signals that the requested progress row does not exist.
var ErrNotFound = errors.New("progress entry not found")

// Status mirrors the download_progress.status column.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Entry models one download_progress row.
type Entry struct {
	ProgressID int64   `db:"progress_id"`
	SourceID   string  `db:"source_id"`
	SeasonID   *string `db:"season_id"`
	ItemKey    string  `db:"item_key"`
	Status     Status  `db:"status"`
	// Attempts is a monotonically increasing counter bumped before each
	// fetch attempt, so counts survive a crash mid-retry.
	Attempts          int        `db:"attempts"`
	BatchID           *string    `db:"batch_id"`
	LastAttemptAt     *time.Time `db:"last_attempt_at"`
	CompletedAt       *time.Time `db:"completed_at"`
	ErrorMessage      *string    `db:"error_message"`
	ResponseSizeBytes *int64     `db:"response_size_bytes"`
	ResponseTimeMs    *int64     `db:"response_time_ms"`
	CreatedAt         time.Time  `db:"created_at"`
}

// IsComplete reports whether the entry needs no further work.
func (e *Entry) IsComplete() bool {
	return e.Status == StatusSuccess || e.Status == StatusSkipped
}

// BatchStats aggregates entry counts by status for one batch.
type BatchStats struct {
	Pending int64 `db:"pending"`
	Success int64 `db:"success"`
	Failed  int64 `db:"failed"`
	Skipped int64 `db:"skipped"`
	Total   int64 `db:"total"`
}

// Complete reports whether no entry in the batch is still pending.
func (s *BatchStats) Complete() bool {
	return s.Total > 0 && s.Pending == 0
}
