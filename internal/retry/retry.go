// Package retry retries start-up work, such as dialing the node, with
// capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
)

// MaxDelay caps the wait between two attempts.
const MaxDelay = 30 * time.Second

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Value calls fn until it succeeds, returns a Permanent error, ctx ends, or
// attempts run out. The wait starts at base and doubles, with up to 25%
// jitter either way, never exceeding MaxDelay.
func Value[T any](ctx context.Context, attempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	attempts = max(attempts, 1)
	delay := base

	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		if attempt == attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
		}

		wait := jitter(delay)
		logging.L(ctx).Debug("retrying", "attempt", attempt, "max_attempts", attempts, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, MaxDelay)
	}
}

// Do is Value for functions without a result.
func Do(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	_, err := Value(ctx, attempts, base, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(d / 2)
	if spread == 0 {
		return d
	}
	return d - d/4 + time.Duration(rand.Int64N(spread+1))
}
