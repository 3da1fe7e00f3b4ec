// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/lestrrat-go/backoff/v2"
)

// Policy bounds a retry loop. MaxAttempts counts every call, the first included.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor in [0, 1). Zero disables jitter.
	Jitter float64
}

// DefaultPolicy returns 3 attempts starting at 200ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.1,
	}
}

// Func is one attempt.
type Func func(ctx context.Context) error

// Hook is called before sleeping ahead of attempt+1.
type Hook func(attempt int, err error)

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempt budget runs out. The last error is returned as is.
// The delay before the next attempt starts only after the previous attempt
// has returned. Context cancellation during the wait returns the last attempt's error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn Func, hooks ...Hook) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delays := p.intervals()
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !retryable(err) {
			return err
		}
		for _, h := range hooks {
			h(attempt, err)
		}
		if !sleep(ctx, delays.Next()) {
			return err
		}
	}
}

// sleep waits d or until ctx is done; false means ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// intervals yields base, 2*base, ... capped at MaxDelay, with optional jitter.
func (p Policy) intervals() *backoff.ExponentialInterval {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}
	opts := []backoff.ExponentialOption{
		backoff.WithMinInterval(base),
		backoff.WithMaxInterval(maxDelay),
		backoff.WithMultiplier(2),
	}
	if p.Jitter > 0 {
		opts = append(opts, backoff.WithJitterFactor(p.Jitter))
	}
	return backoff.NewExponentialInterval(opts...)
}
