// Package retry runs an operation a bounded number of times and hands
// control to an explicit fallback when the bound is hit or the operation
// asks to stop.
package retry

import (
	"context"
	"errors"
)

// ErrExhausted is passed to the fallback when every attempt asked for a retry.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Outcome tells Bounded what to do after an attempt.
type Outcome int

const (
	// Again runs the next attempt, if any remain.
	Again Outcome = iota
	// Done returns the attempt's value.
	Done
	// Abort skips the remaining attempts and runs the fallback.
	Abort
)

// Attempt is one try.  attempt starts at zero.
type Attempt[T any] func(ctx context.Context, attempt int) (T, Outcome, error)

// Fallback produces the final value once attempts are over.  cause is
// ErrExhausted, the error returned with Abort, or the context error.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Bounded calls try at most attempts times.  The first Done wins.  Abort,
// a cancelled context or running out of attempts all end in fallback.
func Bounded[T any](ctx context.Context, attempts int, try Attempt[T], fallback Fallback[T]) (T, error) {
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fallback(ctx, err)
		}
		v, out, err := try(ctx, i)
		switch out {
		case Done:
			return v, nil
		case Abort:
			if err == nil {
				err = ErrExhausted
			}
			return fallback(ctx, err)
		}
	}
	return fallback(ctx, ErrExhausted)
}
