package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable reports whether a failed attempt may be repeated. Nil retries
	// every error.
	Retryable func(error) bool
}

// Retry retries f up to MaxAttempts times with exponential backoff. It stops
// early on success, on a non-retryable error or when ctx is done.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait
	attempts := max(opts.MaxAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if attempt == attempts-1 {
			break
		}
		if opts.Retryable != nil && !opts.Retryable(result.err) {
			return result
		}
		// Check context before sleeping
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		default:
		}

		sleepDur := wait
		if opts.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}

		if sleepDur > 0 {
			select {
			case <-ctx.Done():
				return Err[T](ctx.Err())
			case <-time.After(sleepDur):
			}
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}

// Do is Retry for functions returning a (value, error) pair.
func Do[T any](ctx context.Context, opts RetryOpts, f func(context.Context) (T, error)) (T, error) {
	return Retry(ctx, opts, func(ctx context.Context) Result[T] {
		return FromPair(f(ctx))
	}).Unwrap()
}
