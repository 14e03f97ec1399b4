package progress

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDatabase struct {
	mock.Mock
}

func (m *mockDatabase) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	callArgs := m.Called(ctx, query, args)
	result, _ := callArgs.Get(0).(sql.Result)
	return result, callArgs.Error(1)
}

func (m *mockDatabase) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	callArgs := m.Called(ctx, dest, query, args)
	return callArgs.Error(0)
}

func (m *mockDatabase) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	callArgs := m.Called(ctx, dest, query, args)
	return callArgs.Error(0)
}

type fakeResult struct {
	rows int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

func strPtr(s string) *string { return &s }

func TestUpsertProgress_SQLContract(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	var captured string
	db.On("GetContext", mock.Anything, mock.Anything, mock.MatchedBy(func(query string) bool {
		captured = query
		return true
	}), mock.Anything).Run(func(args mock.Arguments) {
		*(args.Get(1).(*int64)) = 42
	}).Return(nil)

	id, err := store.UpsertProgress(context.Background(), UpsertParams{
		SourceID: "nhl_api",
		SeasonID: strPtr("20232024"),
		ItemKey:  "2023020001",
		BatchID:  strPtr("batch-1"),
		Status:   StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	// The conflict target must match the unique index expression so the
	// upsert is idempotent for NULL and non-NULL seasons alike.
	assert.Contains(t, captured, "ON CONFLICT (source_id, COALESCE(season_id, ''), item_key)")
	assert.Contains(t, captured, "DO UPDATE")
	assert.Contains(t, captured, "RETURNING progress_id")
	assert.Contains(t, captured, "INSERT INTO download_progress")
}

func TestUpsertProgress_IdempotentForSameKey(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	db.On("GetContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(1).(*int64)) = 7
		}).Return(nil)

	params := UpsertParams{SourceID: "nhl_api", ItemKey: "2023020001"}

	first, err := store.UpsertProgress(context.Background(), params)
	require.NoError(t, err)
	second, err := store.UpsertProgress(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	db.AssertNumberOfCalls(t, "GetContext", 2)
}

func TestUpsertProgress_DefaultsToPending(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	var capturedArgs []interface{}
	db.On("GetContext", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(args []interface{}) bool {
		capturedArgs = args
		return true
	})).Run(func(args mock.Arguments) {
		*(args.Get(1).(*int64)) = 1
	}).Return(nil)

	_, err := store.UpsertProgress(context.Background(), UpsertParams{
		SourceID: "nhl_api",
		ItemKey:  "2023020001",
	})
	require.NoError(t, err)

	found := false
	for _, a := range capturedArgs {
		if s, ok := a.(Status); ok && s == StatusPending {
			found = true
		}
	}
	assert.True(t, found, "insert args should carry the pending status, got %v", capturedArgs)
}

func TestMarkSuccess_UpdatesRow(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	var captured string
	db.On("ExecContext", mock.Anything, mock.MatchedBy(func(query string) bool {
		captured = query
		return true
	}), mock.Anything).Return(fakeResult{rows: 1}, nil)

	err := store.MarkSuccess(context.Background(), 42, 2048, 150)
	require.NoError(t, err)

	assert.Contains(t, captured, "UPDATE download_progress")
	assert.Contains(t, captured, "status")
	assert.Contains(t, captured, "completed_at")
	assert.Contains(t, captured, "response_size_bytes")
}

func TestMarkFailed_UnknownIDReturnsNotFound(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	db.On("ExecContext", mock.Anything, mock.Anything, mock.Anything).Return(fakeResult{rows: 0}, nil)

	err := store.MarkFailed(context.Background(), 999, "boom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementAttempts_BumpsCounterInPlace(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	var captured string
	db.On("ExecContext", mock.Anything, mock.MatchedBy(func(query string) bool {
		captured = query
		return true
	}), mock.Anything).Return(fakeResult{rows: 1}, nil)

	err := store.IncrementAttempts(context.Background(), 42)
	require.NoError(t, err)

	assert.Contains(t, captured, "attempts = attempts + 1")
	assert.Contains(t, captured, "last_attempt_at")
}

func TestGetByKey_NotFound(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	db.On("GetContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sql.ErrNoRows)

	_, err := store.GetByKey(context.Background(), "nhl_api", nil, "2023020001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByKey_NilSeasonMatchesEmptyString(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	var capturedArgs []interface{}
	db.On("GetContext", mock.Anything, mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "COALESCE(season_id, '')")
	}), mock.MatchedBy(func(args []interface{}) bool {
		capturedArgs = args
		return true
	})).Return(sql.ErrNoRows)

	_, err := store.GetByKey(context.Background(), "nhl_api", nil, "2023020001")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, capturedArgs, "")
}

func TestGetIncomplete_SelectsPendingAndFailed(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	var capturedArgs []interface{}
	db.On("SelectContext", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(args []interface{}) bool {
		capturedArgs = args
		return true
	})).Return(nil)

	_, err := store.GetIncomplete(context.Background(), "nhl_api", strPtr("20232024"))
	require.NoError(t, err)

	assert.Contains(t, capturedArgs, "pending")
	assert.Contains(t, capturedArgs, "failed")
}

func TestGetBatchStats_QueriesByBatch(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	db.On("GetContext", mock.Anything, mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "batch_id")
	}), mock.Anything).Run(func(args mock.Arguments) {
		stats := args.Get(1).(*BatchStats)
		stats.Success = 4
		stats.Failed = 1
		stats.Total = 5
	}).Return(nil)

	stats, err := store.GetBatchStats(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Success)
	assert.Equal(t, int64(1), stats.Failed)
	assert.True(t, stats.Complete())
}

func TestResetFailed_ReturnsRowCount(t *testing.T) {
	db := new(mockDatabase)
	store := NewPostgresStore(db, nil, nil)

	db.On("ExecContext", mock.Anything, mock.MatchedBy(func(query string) bool {
		return strings.Contains(query, "UPDATE download_progress")
	}), mock.Anything).Return(fakeResult{rows: 3}, nil)

	count, err := store.ResetFailed(context.Background(), "nhl_api", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestEntry_IsComplete(t *testing.T) {
	assert.True(t, (&Entry{Status: StatusSuccess}).IsComplete())
	assert.True(t, (&Entry{Status: StatusSkipped}).IsComplete())
	assert.False(t, (&Entry{Status: StatusPending}).IsComplete())
	assert.False(t, (&Entry{Status: StatusFailed}).IsComplete())
}
