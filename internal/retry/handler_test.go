package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooneycw/nhl-api-sub002/internal/download"
)

func fastPolicy(t *testing.T, maxRetries int) Policy {
	t.Helper()
	p, err := NewPolicy(maxRetries, time.Millisecond, 10*time.Millisecond, 2.0, 0, nil)
	require.NoError(t, err)
	return p
}

func transientErr() error {
	return download.NewRetryableError("test", "item-1", "upstream hiccup", 503, 0, nil)
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	h := NewHandler(fastPolicy(t, 3), nil, nil)

	calls := 0
	value, err := Execute(context.Background(), h, "op", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, calls)
}

func TestExecute_SucceedsOnThirdAttempt(t *testing.T) {
	h := NewHandler(fastPolicy(t, 3), nil, nil)

	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr()
		}
		return "ok", nil
	})

	assert.True(t, res.Succeeded())
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	h := NewHandler(fastPolicy(t, 3), nil, nil)

	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, transientErr()
	})

	assert.False(t, res.Succeeded())
	// maxRetries=3 means the operation runs 4 times in total.
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, res.Attempts)

	var exhausted *download.MaxRetriesExceededError
	require.ErrorAs(t, res.Err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)

	var re *download.RetryableError
	assert.ErrorAs(t, exhausted.LastErr, &re)
}

func TestExecute_ZeroRetriesSingleAttempt(t *testing.T) {
	h := NewHandler(fastPolicy(t, 0), nil, nil)

	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, transientErr()
	})

	assert.Equal(t, 1, calls)
	var exhausted *download.MaxRetriesExceededError
	assert.ErrorAs(t, res.Err, &exhausted)
}

func TestExecute_FatalErrorFailsFast(t *testing.T) {
	h := NewHandler(fastPolicy(t, 3), nil, nil)

	fatal := download.NewError("test", "item-1", "not found", nil)
	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, fatal, res.Err)
}

func TestExecute_NonRetryableStatusFailsFast(t *testing.T) {
	p, err := NewPolicy(3, time.Millisecond, 10*time.Millisecond, 2.0, 0, []int{503})
	require.NoError(t, err)
	h := NewHandler(p, nil, nil)

	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, download.NewRetryableError("test", "item-1", "rejected", 400, 0, nil)
	})

	assert.Equal(t, 1, calls)
	assert.False(t, res.Succeeded())
}

func TestExecute_HonorsRetryAfter(t *testing.T) {
	h := NewHandler(fastPolicy(t, 1), nil, nil)

	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, download.NewRetryableError("test", "item-1", "throttled", 429, 5*time.Millisecond, nil)
		}
		return 7, nil
	})

	assert.True(t, res.Succeeded())
	assert.Equal(t, 7, res.Value)
	assert.Equal(t, 5*time.Millisecond, res.TotalDelay)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	p, err := NewPolicy(3, time.Second, time.Minute, 2.0, 0, nil)
	require.NoError(t, err)
	h := NewHandler(p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan Result[int], 1)
	go func() {
		done <- ExecuteWithResult(ctx, h, "op", func(ctx context.Context) (int, error) {
			calls++
			return 0, transientErr()
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	res := <-done
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecute_ContextErrorNotRetried(t *testing.T) {
	h := NewHandler(fastPolicy(t, 3), nil, nil)

	calls := 0
	res := ExecuteWithResult(context.Background(), h, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}
