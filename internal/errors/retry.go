package errors

import (
	"context"
	"errors"
	"time"
)

// Backoff retries retryable AppErrors with exponentially growing pauses.
// It is meant for infrastructure calls at startup; upstream searches are never
// retried automatically since the user can press Next again.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// StartupBackoff waits for dependencies that come up alongside the bot, such as the database.
var StartupBackoff = Backoff{Attempts: 6, Initial: 250 * time.Millisecond, Max: 5 * time.Second}

// WithRetry runs fn under StartupBackoff.
func WithRetry(ctx context.Context, fn func() error) error {
	return StartupBackoff.Do(ctx, fn)
}

// Do calls fn until it succeeds, fails with a non-retryable error, runs out of
// attempts or ctx ends.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}

	attempts := max(b.Attempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(); err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delay doubles Initial for every failed attempt, capped at Max.
func (b Backoff) delay(failed int) time.Duration {
	d := b.Initial
	for i := 1; i < failed; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// IsRetryable reports whether err wraps an AppError marked Retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr != nil && appErr.Retryable
}
