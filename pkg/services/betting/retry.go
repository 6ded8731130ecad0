package betting

import (
	"context"
	"errors"
	"time"

	"github.com/fadedpez/wingo/internal/types"
)

// DefaultAttempts and DefaultBackoff are the retry policy used at the API
// boundary
const (
	DefaultAttempts = 3
	DefaultBackoff  = 100 * time.Millisecond
)

// WithRetry runs fn up to attempts times, doubling the wait from base after
// each transient failure. Rejections and context errors are returned at once.
func WithRetry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	wait := base
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !types.IsValidation(err)
}
