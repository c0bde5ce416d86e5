package task

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultRetryBackoff is the first retry delay when none is configured.
const DefaultRetryBackoff = 500 * time.Millisecond

// RetriableExitCodes classifies an *ExitError with one of codes as
// transient. Timeouts are always transient; any other error is permanent.
func RetriableExitCodes(codes ...int) func(error) bool {
	codes = slices.Clone(codes)
	return func(err error) bool {
		if errors.Is(err, ErrTimeout) {
			return true
		}
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return slices.Contains(codes, exitErr.Code)
		}
		return false
	}
}

// WithRetry re-runs op up to retries more times while it fails with an
// error isRetriable accepts, backing off exponentially from base. The last
// attempt's value and error are returned, so a still-retriable error reaches
// the guard unchanged and no failure marker is written for it.
func WithRetry[T any](op func(context.Context) (T, error), retries uint64, base time.Duration, isRetriable func(error) bool) func(context.Context) (T, error) {
	if retries == 0 {
		return op
	}
	if base <= 0 {
		base = DefaultRetryBackoff
	}
	return func(ctx context.Context) (T, error) {
		var result T
		attempt := 0
		b := retry.WithMaxRetries(retries, retry.NewExponential(base))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			attempt++
			var err error
			result, err = op(ctx)
			if err != nil && ctx.Err() == nil && isRetriable(err) {
				slog.Warn("attempt failed with a retriable error", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		})
		return result, err
	}
}
