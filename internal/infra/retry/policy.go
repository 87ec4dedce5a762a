// Package retry wraps cenkalti/backoff behind an explicit policy object so
// retry behavior is configured in one place and testable on its own.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how an operation's transient failures are retried.
type Policy struct {
	// MaxAttempts caps total tries, first call included.
	MaxAttempts int
	// InitialInterval is the first backoff delay; subsequent delays grow by
	// Multiplier up to MaxInterval, with randomized jitter.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Retryable classifies errors. A nil classifier retries everything.
	Retryable func(error) bool
}

// DefaultPolicy matches the reranking client defaults: three attempts with
// exponential backoff between one and ten seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		bo.Multiplier = p.Multiplier
	}
	bo.Reset()
	return bo
}

// delayer is implemented by errors carrying a server-requested retry delay
// (Retry-After on a 429). The requested delay overrides the computed one.
type delayer interface {
	RetryDelay() time.Duration
}

// Do runs op under the policy. Non-retryable errors stop immediately and the
// last operation error is always returned as-is, so callers can classify it
// with errors.As. Waits honor ctx cancellation.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := p.newBackOff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := bo.NextBackOff()
		var d delayer
		if errors.As(err, &d) && d.RetryDelay() > delay {
			delay = d.RetryDelay()
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
