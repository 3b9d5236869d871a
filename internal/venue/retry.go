package venue

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds retries of transient failures with a fixed delay between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// OnRetry, if set, is called before each delay with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Retry calls fn until it succeeds, fails with a non-transient error, or
// MaxAttempts is reached. The last error is returned as is.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		res, err := fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= p.MaxAttempts {
			return res, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, fmt.Errorf("%w (retry aborted: %v)", err, ctx.Err())
		case <-timer.C:
		}
	}
}
