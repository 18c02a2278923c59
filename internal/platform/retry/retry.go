// Package retry runs venue calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Policy controls how often and how patiently a call is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is multiplied by 2^attempt between calls.
	BaseDelay time.Duration
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default mirrors the configured defaults: 3 attempts, 2s base.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Retryable reports whether err is worth another attempt. Only transport
// failures and throttling qualify; data and auth errors are final.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrTransient) || errors.Is(err, domain.ErrRateLimited)
}

// Delay returns the wait before the attempt following attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// context ends, or MaxAttempts is reached. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	var (
		out T
		err error
	)
	for attempt := range attempts {
		out, err = fn(ctx)
		if err == nil || !Retryable(err) || attempt == attempts-1 {
			return out, err
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return out, err
		}
	}
	return out, err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
