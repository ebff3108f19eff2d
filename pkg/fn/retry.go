package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures Retry. Waits double from InitialWait up to MaxWait.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	// Jitter scales each wait by a random factor in [0.5, 1.5).
	Jitter bool
	// Retryable reports whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
	// OnRetry, if set, is called before each wait with the attempt that
	// just failed (1-based) and its error.
	OnRetry func(attempt int, err error)
}

// DefaultRetry is three attempts a second apart, doubling.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

func (o RetryOpts) backoff(wait time.Duration) time.Duration {
	if o.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
	}
	if o.MaxWait > 0 && wait > o.MaxWait {
		wait = o.MaxWait
	}
	return wait
}

// Retry calls f until it returns Ok or None, an error Retryable rejects,
// or MaxAttempts (at least one) is spent. A canceled ctx ends the waits
// with ctx.Err().
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := max(opts.MaxAttempts, 1)
	wait := opts.InitialWait
	for attempt := 1; ; attempt++ {
		r := f(ctx)
		if !r.IsErr() || attempt == attempts {
			return r
		}
		if opts.Retryable != nil && !opts.Retryable(r.Err()) {
			return r
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, r.Err())
		}

		timer := time.NewTimer(opts.backoff(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
}
