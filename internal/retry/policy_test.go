package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		baseDelay  time.Duration
		maxDelay   time.Duration
		expBase    float64
		jitter     float64
		wantErr    bool
	}{
		{"valid", 3, time.Second, time.Minute, 2.0, 0.1, false},
		{"zero retries valid", 0, time.Second, time.Second, 2.0, 0, false},
		{"negative retries", -1, time.Second, time.Minute, 2.0, 0.1, true},
		{"zero base delay", 3, 0, time.Minute, 2.0, 0.1, true},
		{"max below base", 3, time.Minute, time.Second, 2.0, 0.1, true},
		{"base not exponential", 3, time.Second, time.Minute, 1.0, 0.1, true},
		{"jitter above one", 3, time.Second, time.Minute, 2.0, 1.5, true},
		{"negative jitter", 3, time.Second, time.Minute, 2.0, -0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.maxRetries, tt.baseDelay, tt.maxDelay, tt.expBase, tt.jitter, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPolicy_DelayGrowsExponentially(t *testing.T) {
	// Zero jitter makes the sequence deterministic: 1s, 2s, 4s, 8s.
	p, err := NewPolicy(5, time.Second, time.Minute, 2.0, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 1*time.Second, p.Delay(0, 0))
	assert.Equal(t, 2*time.Second, p.Delay(1, 0))
	assert.Equal(t, 4*time.Second, p.Delay(2, 0))
	assert.Equal(t, 8*time.Second, p.Delay(3, 0))
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p, err := NewPolicy(5, time.Second, time.Minute, 2.0, 0.1, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		d := p.Delay(1, 0)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, time.Duration(2.2*float64(time.Second)))
	}
}

func TestPolicy_DelayCappedAtMax(t *testing.T) {
	p, err := NewPolicy(10, time.Second, 5*time.Second, 2.0, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, p.Delay(9, 0))
}

func TestPolicy_RetryAfterTakesPrecedence(t *testing.T) {
	p, err := NewPolicy(3, time.Second, time.Minute, 2.0, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, p.Delay(0, 30*time.Second))
	// Server-requested delays are still capped.
	assert.Equal(t, time.Minute, p.Delay(0, 5*time.Minute))
}

func TestPolicy_IsRetryableStatus(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.IsRetryableStatus(429))
	assert.True(t, p.IsRetryableStatus(500))
	assert.True(t, p.IsRetryableStatus(503))
	// Connection-level failures carry no status.
	assert.True(t, p.IsRetryableStatus(0))

	assert.False(t, p.IsRetryableStatus(404))
	assert.False(t, p.IsRetryableStatus(401))
}

func TestNewPolicy_CustomStatusCodes(t *testing.T) {
	p, err := NewPolicy(3, time.Second, time.Minute, 2.0, 0, []int{418})
	require.NoError(t, err)

	assert.True(t, p.IsRetryableStatus(418))
	assert.False(t, p.IsRetryableStatus(500))
}
