package twinerr

import (
	"context"
	"time"
)

// RetryConfig bounds a capped exponential backoff retry loop.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the ExternalService retry budget implied by
// the queue retry table of §4.5.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Retry runs fn up to MaxAttempts times, backing off exponentially between
// attempts, for operations (typically ExternalService calls) that opt in.
// It returns the last error if every attempt fails, or nil on the first
// success. Context cancellation aborts the loop immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// SafeAsync runs fn and logs (via the supplied sink) any error it returns
// instead of propagating it, so that cleanup paths (deleting a temp file,
// removing orphaned blobs) never mask the primary error that triggered the
// cleanup.
func SafeAsync(log func(format string, args ...any), op string, fn func() error) {
	if err := fn(); err != nil && log != nil {
		log("safe-async cleanup %q failed: %v", op, err)
	}
}
