package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_StartsFull(t *testing.T) {
	b := NewTokenBucket(5, 1)

	assert.InDelta(t, 5.0, b.Tokens(), 0.01)
}

func TestTokenBucket_ConsumesBurst(t *testing.T) {
	b := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		ok, _ := b.TryConsume()
		assert.True(t, ok, "consume %d within burst should succeed", i)
	}

	ok, wait := b.TryConsume()
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestTokenBucket_WaitHint(t *testing.T) {
	// burst 1, 10 tokens/s: after consuming the only token the next one
	// is ~100ms away.
	b := NewTokenBucket(1, 10)

	ok, _ := b.TryConsume()
	assert.True(t, ok)

	ok, wait := b.TryConsume()
	assert.False(t, ok)
	assert.InDelta(t, 100, float64(wait.Milliseconds()), 30)
}

func TestTokenBucket_RefillClampedToCapacity(t *testing.T) {
	b := NewTokenBucket(2, 1000)

	ok, _ := b.TryConsume()
	assert.True(t, ok)

	// At 1000 tokens/s this sleep would credit ~50 tokens unclamped.
	time.Sleep(50 * time.Millisecond)

	assert.LessOrEqual(t, b.Tokens(), 2.0)
}

func TestTokenBucket_NeverNegative(t *testing.T) {
	b := NewTokenBucket(1, 0.001)

	b.TryConsume()
	b.TryConsume()
	b.TryConsume()

	assert.GreaterOrEqual(t, b.Tokens(), 0.0)
}

func TestTokenBucket_Reset(t *testing.T) {
	b := NewTokenBucket(2, 0.001)

	b.TryConsume()
	b.TryConsume()
	assert.Less(t, b.Tokens(), 1.0)

	b.Reset()
	assert.InDelta(t, 2.0, b.Tokens(), 0.01)
}
