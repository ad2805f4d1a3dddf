package twinerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	sentinel := errors.New("transient")
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(_ context.Context) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, calls)
}

func TestRetrySucceedsPartway(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(_ context.Context) error {
		calls++
		return errors.New("x")
	})
	require.Error(t, err)
	require.Equal(t, 0, calls)
}

func TestSafeAsyncLogsButDoesNotPanic(t *testing.T) {
	var logged string
	SafeAsync(func(format string, args ...any) {
		logged = format
	}, "cleanup-temp-file", func() error {
		return errors.New("unlink failed")
	})
	require.Contains(t, logged, "safe-async")
}

func TestSafeAsyncSwallowsNilError(t *testing.T) {
	called := false
	SafeAsync(func(format string, args ...any) {
		called = true
	}, "cleanup", func() error {
		return nil
	})
	require.False(t, called)
}
