// Package retry repeats an operation with a growing delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPolicy = errors.New("invalid retry policy")
	ErrMaxAttempts   = errors.New("max attempts exceeded")
)

// Policy defines the backoff behavior for [Do].
type Policy struct {
	Attempts int           // Attempts is the total number of tries, and must be >= 1.
	Delay    time.Duration // Delay is the wait before the second attempt.
	Backoff  float64       // Backoff multiplies Delay after each attempt, and must be >= 1.
	MaxDelay time.Duration // MaxDelay caps the wait between attempts when > 0.
}

func (p Policy) validate() error {
	switch {
	case p.Attempts < 1:
		return fmt.Errorf("%w: attempts should be >= 1", ErrInvalidPolicy)
	case p.Backoff < 1:
		return fmt.Errorf("%w: backoff should be >= 1", ErrInvalidPolicy)
	case p.Delay < 0:
		return fmt.Errorf("%w: delay should be >= 0", ErrInvalidPolicy)
	}
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err so that [Do] returns it without trying again.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

// AttemptsError is returned from [Do] when every attempt failed. It holds the last error.
type AttemptsError struct {
	Attempts int
	Last     error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrMaxAttempts, e.Attempts, e.Last)
}

func (e *AttemptsError) Unwrap() []error {
	return []error{ErrMaxAttempts, e.Last}
}

// Do calls fn until it returns nil, returns an error wrapped with [Permanent], or the policy runs out of attempts.
// The attempt number starts at 1. Context cancellation stops the loop while waiting, and returns the context error.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) error {
	if err := policy.validate(); err != nil {
		return err
	}
	delay := policy.Delay
	var last error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * policy.Backoff)
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
	}
	return &AttemptsError{Attempts: policy.Attempts, Last: last}
}

func wait(ctx context.Context, d time.Duration) error {
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
