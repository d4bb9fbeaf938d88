package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests to a fixed minimum interval.
// Burst is 1, so every grant reserves the next slot and an idle
// limiter schedules from now instead of accumulating credit.
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewRateLimiter creates a limiter allowing requestsPerMinute grants per minute.
// A non-positive value disables pacing.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}

	interval := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Acquire blocks until the next slot is available
func (l *RateLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow takes a slot if one is available right now
func (l *RateLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Interval returns the minimum spacing between grants (0 when unlimited)
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}

// AcquireWithDelay acquires a slot and then waits an additional delay
func (l *RateLimiter) AcquireWithDelay(ctx context.Context, additionalDelay time.Duration) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	return Sleep(ctx, additionalDelay)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
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
