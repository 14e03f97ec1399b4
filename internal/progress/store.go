package progress

import "context"

// UpsertParams carries the identity and initial state for UpsertProgress.
type UpsertParams struct {
	SourceID string
	// SeasonID is nil for items not tied to a season.
	SeasonID *string
	ItemKey  string
	// BatchID, when non-nil, tags the row with the current orchestration
	// run; re-upserting moves an existing row into the new batch.
	BatchID *string
	// Status defaults to StatusPending when empty.
	Status Status
}

// Store is the durable, idempotent record of per-item fetch status. The
// backing table carries a unique constraint on (source_id, season_id,
// item_key); concurrent writers are resolved by the store's own
// conflict-resolving upsert, so callers perform no additional locking.
type Store interface {
	// UpsertProgress inserts or updates the row for the params' unique
	// key and returns its progress_id. Idempotent: repeated calls with
	// the same key return the same id, updating status/batch_id and
	// refreshing last_attempt_at instead of duplicating.
	UpsertProgress(ctx context.Context, params UpsertParams) (int64, error)

	// MarkSuccess transitions the row to success and stamps completion
	// plus response size and timing.
	MarkSuccess(ctx context.Context, progressID int64, responseSizeBytes, responseTimeMs int64) error

	// MarkFailed transitions the row to failed and records the error
	// message.
	MarkFailed(ctx context.Context, progressID int64, errorMessage string) error

	// MarkSkipped transitions the row to skipped.
	MarkSkipped(ctx context.Context, progressID int64) error

	// IncrementAttempts bumps the attempt counter before a fetch attempt.
	IncrementAttempts(ctx context.Context, progressID int64) error

	// GetByKey loads one entry by its unique key, or ErrNotFound.
	GetByKey(ctx context.Context, sourceID string, seasonID *string, itemKey string) (*Entry, error)

	// GetPending returns entries still pending for a source/season.
	GetPending(ctx context.Context, sourceID string, seasonID *string) ([]*Entry, error)

	// GetIncomplete returns entries needing work (pending or failed),
	// supporting resume of an interrupted batch.
	GetIncomplete(ctx context.Context, sourceID string, seasonID *string) ([]*Entry, error)

	// GetBatchStats aggregates counts by status for a batch.
	GetBatchStats(ctx context.Context, batchID string) (*BatchStats, error)

	// ResetFailed flips failed rows back to pending for a clean re-run
	// without recreating entries. Returns the number of rows reset.
	ResetFailed(ctx context.Context, sourceID string, seasonID *string) (int64, error)
}
