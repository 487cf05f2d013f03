package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastPolicy(attempts uint) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Jitter:      0,
	}
}

func TestRetrySucceedsAfterRateLimits(t *testing.T) {
	calls := 0
	op := func() (string, error) {
		calls++
		if calls < 4 {
			return "", errors.New("HTTP 429 too many requests")
		}
		return "ok", nil
	}

	got, err := retry(context.Background(), fastPolicy(4), zaptest.NewLogger(t), op)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 4, calls)
}

func TestRetryExhaustsOnPersistentRateLimit(t *testing.T) {
	calls := 0
	op := func() (string, error) {
		calls++
		return "", errors.New("rate limit exceeded")
	}

	_, err := retry(context.Background(), fastPolicy(3), zaptest.NewLogger(t), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate")
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	op := func() (int, error) {
		calls++
		return 0, fmt.Errorf("execution reverted")
	}

	_, err := retry(context.Background(), fastPolicy(5), zaptest.NewLogger(t), op)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNormalizedCapsZeroAttempts(t *testing.T) {
	def := DefaultRetryPolicy()

	p := RetryPolicy{}.Normalized()
	assert.Equal(t, def, p)

	// A partially built policy keeps its configured fields.
	p = RetryPolicy{MaxAttempts: 0, BaseDelay: 42 * time.Millisecond, Jitter: 0.1}.Normalized()
	assert.Equal(t, def.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, 42*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 0.1, p.Jitter)
}

func TestIsRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.IsRetryable(errors.New("status 429")))
	assert.True(t, p.IsRetryable(errors.New("Rate limited")))
	assert.False(t, p.IsRetryable(errors.New("insufficient funds")))
	assert.False(t, p.IsRetryable(nil))
}
