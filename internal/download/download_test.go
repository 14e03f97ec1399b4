package download

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResult_StampsTimestamp(t *testing.T) {
	r := NewResult("nhl_api", "20232024", "2023020001", StatusCompleted, map[string]interface{}{"k": "v"})

	assert.False(t, r.DownloadedAt.IsZero())
	assert.True(t, r.IsSuccessful())
	assert.Empty(t, r.ErrorMessage)
}

func TestNewResult_FailedGetsDefaultMessage(t *testing.T) {
	r := NewResult("nhl_api", "20232024", "2023020001", StatusFailed, nil)

	assert.NotEmpty(t, r.ErrorMessage)
	assert.False(t, r.IsSuccessful())
}

func TestNewFailedResult_DefaultsEmptyMessage(t *testing.T) {
	r := NewFailedResult("nhl_api", "20232024", "2023020001", "")

	assert.Equal(t, StatusFailed, r.Status)
	assert.NotEmpty(t, r.ErrorMessage)
}

func TestNewFailedResult_KeepsExplicitMessage(t *testing.T) {
	r := NewFailedResult("nhl_api", "20232024", "2023020001", "server returned 404 Not Found")

	assert.Equal(t, "server returned 404 Not Found", r.ErrorMessage)
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, (&Result{Status: StatusCompleted}).IsSuccessful())
	assert.False(t, (&Result{Status: StatusFailed}).IsSuccessful())
	assert.False(t, (&Result{Status: StatusSkipped}).IsSuccessful())
	assert.False(t, (&Result{Status: StatusPending}).IsSuccessful())
}

func TestStaticItems_Exhausts(t *testing.T) {
	list := StaticItems([]string{"a", "b"})
	ctx := context.Background()

	key, ok, err := list.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", key)

	key, ok, err = list.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", key)

	_, ok, err = list.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticItems_HonorsCancellation(t *testing.T) {
	list := StaticItems([]string{"a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := list.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect_AppliesFilter(t *testing.T) {
	list := StaticItems([]string{"2023020001", "2023030001", "2023020002"})

	regularSeason := func(key string) bool {
		return strings.HasPrefix(key, "202302")
	}

	keys, err := Collect(context.Background(), list, regularSeason)
	require.NoError(t, err)
	assert.Equal(t, []string{"2023020001", "2023020002"}, keys)
}

func TestCollect_NilFilterKeepsAll(t *testing.T) {
	list := StaticItems([]string{"a", "b", "c"})

	keys, err := Collect(context.Background(), list, nil)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestErrorFormatting(t *testing.T) {
	err := NewError("nhl_api", "2023020001", "malformed document", nil)
	assert.Contains(t, err.Error(), "nhl_api")
	assert.Contains(t, err.Error(), "2023020001")
	assert.Contains(t, err.Error(), "malformed document")
}

func TestRetryableError_CarriesStatus(t *testing.T) {
	err := NewRetryableError("nhl_api", "2023020001", "throttled", 429, 0, nil)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 429, err.StatusCode)
}
