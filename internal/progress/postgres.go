package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// Database is the context-aware query surface the store needs. Satisfied
// by *database.DB (and by *sqlx.DB directly).
type Database interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const table = "download_progress"

// seasonExpr matches the expression in the table's unique index so ON
// CONFLICT resolves against it; NULL seasons collapse to the empty string.
const seasonExpr = "COALESCE(season_id, '')"

// PostgresStore implements Store on the download_progress table. All
// write paths go through single-statement upserts/updates, so concurrent
// orchestrator batches need no locking beyond the database's own conflict
// resolution.
type PostgresStore struct {
	db      Database
	logger  types.Logger
	metrics types.Metrics
	qb      squirrel.StatementBuilderType
}

// NewPostgresStore creates the Postgres-backed progress store.
func NewPostgresStore(db Database, logger types.Logger, metrics types.Metrics) *PostgresStore {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &PostgresStore{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// UpsertProgress inserts or updates the row for the unique
// (source_id, season_id, item_key) and returns its progress_id. The ON
// CONFLICT clause is what makes repeated calls idempotent.
func (s *PostgresStore) UpsertProgress(ctx context.Context, params UpsertParams) (int64, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}

	query := s.qb.Insert(table).
		Columns("source_id", "season_id", "item_key", "status", "batch_id", "attempts", "last_attempt_at", "created_at").
		Values(params.SourceID, params.SeasonID, params.ItemKey, status, params.BatchID, 0, squirrel.Expr("now()"), squirrel.Expr("now()")).
		Suffix(fmt.Sprintf(
			`ON CONFLICT (source_id, %s, item_key)
			 DO UPDATE SET status = EXCLUDED.status,
			               batch_id = COALESCE(EXCLUDED.batch_id, %s.batch_id),
			               last_attempt_at = now()
			 RETURNING progress_id`, seasonExpr, table))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build upsert: %w", err)
	}

	var progressID int64
	if err := s.db.GetContext(ctx, &progressID, sqlQuery, args...); err != nil {
		s.logger.Error(ctx, "failed to upsert progress", err, types.Fields{
			"source_id": params.SourceID,
			"item_key":  params.ItemKey,
		})
		return 0, fmt.Errorf("upsert progress: %w", err)
	}

	return progressID, nil
}

// MarkSuccess transitions the row to success, stamping completion and
// response metrics.
func (s *PostgresStore) MarkSuccess(ctx context.Context, progressID int64, responseSizeBytes, responseTimeMs int64) error {
	query := s.qb.Update(table).
		Set("status", StatusSuccess).
		Set("completed_at", time.Now().UTC()).
		Set("error_message", nil).
		Set("response_size_bytes", responseSizeBytes).
		Set("response_time_ms", responseTimeMs).
		Where(squirrel.Eq{"progress_id": progressID})

	return s.exec(ctx, "mark_success", query)
}

// MarkFailed transitions the row to failed with the given message.
func (s *PostgresStore) MarkFailed(ctx context.Context, progressID int64, errorMessage string) error {
	query := s.qb.Update(table).
		Set("status", StatusFailed).
		Set("error_message", errorMessage).
		Where(squirrel.Eq{"progress_id": progressID})

	return s.exec(ctx, "mark_failed", query)
}

// MarkSkipped transitions the row to skipped.
func (s *PostgresStore) MarkSkipped(ctx context.Context, progressID int64) error {
	query := s.qb.Update(table).
		Set("status", StatusSkipped).
		Set("completed_at", time.Now().UTC()).
		Where(squirrel.Eq{"progress_id": progressID})

	return s.exec(ctx, "mark_skipped", query)
}

// IncrementAttempts bumps the monotonic attempt counter and refreshes
// last_attempt_at.
func (s *PostgresStore) IncrementAttempts(ctx context.Context, progressID int64) error {
	query := s.qb.Update(table).
		Set("attempts", squirrel.Expr("attempts + 1")).
		Set("last_attempt_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"progress_id": progressID})

	return s.exec(ctx, "increment_attempts", query)
}

// GetByKey loads one entry by its unique key.
func (s *PostgresStore) GetByKey(ctx context.Context, sourceID string, seasonID *string, itemKey string) (*Entry, error) {
	query := s.qb.Select("*").
		From(table).
		Where(squirrel.Eq{"source_id": sourceID, "item_key": itemKey}).
		Where(squirrel.Expr(seasonExpr+" = ?", coalesceSeason(seasonID)))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entry Entry
	if err := s.db.GetContext(ctx, &entry, sqlQuery, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get progress by key: %w", err)
	}

	return &entry, nil
}

// GetPending returns pending entries for a source/season in creation
// order.
func (s *PostgresStore) GetPending(ctx context.Context, sourceID string, seasonID *string) ([]*Entry, error) {
	return s.selectByStatus(ctx, sourceID, seasonID, []Status{StatusPending})
}

// GetIncomplete returns entries still needing work: pending or failed.
func (s *PostgresStore) GetIncomplete(ctx context.Context, sourceID string, seasonID *string) ([]*Entry, error) {
	return s.selectByStatus(ctx, sourceID, seasonID, []Status{StatusPending, StatusFailed})
}

// GetBatchStats aggregates counts by status for one batch.
func (s *PostgresStore) GetBatchStats(ctx context.Context, batchID string) (*BatchStats, error) {
	query := s.qb.Select(
		"COUNT(*) FILTER (WHERE status = 'pending') AS pending",
		"COUNT(*) FILTER (WHERE status = 'success') AS success",
		"COUNT(*) FILTER (WHERE status = 'failed') AS failed",
		"COUNT(*) FILTER (WHERE status = 'skipped') AS skipped",
		"COUNT(*) AS total",
	).
		From(table).
		Where(squirrel.Eq{"batch_id": batchID})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var stats BatchStats
	if err := s.db.GetContext(ctx, &stats, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("get batch stats: %w", err)
	}

	return &stats, nil
}

// ResetFailed flips failed rows back to pending so a re-run picks them up
// without recreating entries.
func (s *PostgresStore) ResetFailed(ctx context.Context, sourceID string, seasonID *string) (int64, error) {
	query := s.qb.Update(table).
		Set("status", StatusPending).
		Set("error_message", nil).
		Where(squirrel.Eq{"source_id": sourceID, "status": StatusFailed}).
		Where(squirrel.Expr(seasonExpr+" = ?", coalesceSeason(seasonID)))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("reset failed entries: %w", err)
	}

	rows, _ := result.RowsAffected()
	s.logger.Info(ctx, "reset failed entries", types.Fields{
		"source_id": sourceID,
		"count":     rows,
	})
	return rows, nil
}

// exec builds and runs a single-row update, treating zero affected rows
// as ErrNotFound so callers learn about stale progress ids.
func (s *PostgresStore) exec(ctx context.Context, operation string, query squirrel.UpdateBuilder) error {
	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", operation, err)
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	s.metrics.RecordDuration("progress_"+operation, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("progress_"+operation, "query_error")
		return fmt.Errorf("%s: %w", operation, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.metrics.RecordSuccess("progress_" + operation)
	return nil
}

func (s *PostgresStore) selectByStatus(ctx context.Context, sourceID string, seasonID *string, statuses []Status) ([]*Entry, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	query := s.qb.Select("*").
		From(table).
		Where(squirrel.Eq{"source_id": sourceID, "status": values}).
		Where(squirrel.Expr(seasonExpr+" = ?", coalesceSeason(seasonID))).
		OrderBy("created_at ASC")

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("select progress entries: %w", err)
	}

	result := make([]*Entry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func coalesceSeason(seasonID *string) string {
	if seasonID == nil {
		return ""
	}
	return *seasonID
}
