package paapi

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how long a PA-API call is retried.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxRateLimitDelay time.Duration
}

// DefaultRetryPolicy gives 3 attempts, 1s steps and a 5s ceiling for throttling waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxRateLimitDelay: 5 * time.Second,
	}
}

// RateLimitDelay is the wait after a 429 on the given 1-based attempt:
// min(base * 2^(attempt-1), max).
func (p RetryPolicy) RateLimitDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxRateLimitDelay {
			return p.MaxRateLimitDelay
		}
	}
	if d > p.MaxRateLimitDelay {
		return p.MaxRateLimitDelay
	}
	return d
}

// ServerErrorDelay is the linear wait after a 5xx or transport failure.
func (p RetryPolicy) ServerErrorDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
