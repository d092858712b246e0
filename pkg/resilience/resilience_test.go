package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	}
	assert.Equal(t, StateOpen, b.GetState())

	// While open, calls are refused without running fn.
	ran := false
	err := b.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, b.GetState())

	time.Sleep(20 * time.Millisecond)

	// First probe after the reset timeout goes through; success closes.
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, b.GetState())

	b.Reset()
	assert.Equal(t, StateClosed, b.GetState())
	assert.NoError(t, b.Execute(func() error { return nil }))
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "flaky", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "doomed", RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "all 3 attempts failed for doomed")
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 3}, func() error {
		return errors.New("never succeeds")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}
