package downloader

import (
	"context"
	"time"
)

// RetryConfig controls exponential backoff between download attempts.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// nextDelay grows d by the backoff factor, capped at MaxDelay.
func (c RetryConfig) nextDelay(d time.Duration) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(d) * factor)
	if c.MaxDelay > 0 && next > c.MaxDelay {
		return c.MaxDelay
	}
	return next
}

// RetryWithCheck runs fn until it succeeds, shouldRetry rejects the error,
// attempts run out or ctx is done. It always runs fn at least once.
func RetryWithCheck[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error), shouldRetry func(error) bool) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if attempt >= attempts || !shouldRetry(err) {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = cfg.nextDelay(delay)
	}
}
