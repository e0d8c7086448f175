package breaker

import (
	"context"
	"errors"

	"github.com/joeycumines/resilience/rerr"
)

// Op is the guarded thunk Execute/ExecuteOrFallback admit through b.
type Op[T any] func(ctx context.Context) (T, error)

// Execute admits op through b's current state, runs it outside the
// breaker's critical section, and commits the resulting transition.
// Admission denial returns rerr.ErrBreakerOpen; a cancelled context
// observed after op returns counts as neither success nor failure and
// returns rerr.ErrCancelled.
func Execute[T any](ctx context.Context, b *Breaker, op Op[T]) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, rerr.ErrCancelled
	}

	allowed, transition := b.admit()
	if transition != nil {
		b.bus.Emit(*transition)
	}
	if !allowed {
		return zero, rerr.ErrBreakerOpen
	}

	val, err := op(ctx)
	cancelled := ctx.Err() != nil

	if sc := b.recordOutcome(err, cancelled); sc != nil {
		b.bus.Emit(*sc)
	}

	if cancelled {
		return val, rerr.ErrCancelled
	}
	return val, err
}

// ExecuteOrFallback is Execute, invoking fallback(err) in place of an
// admission denial (rerr.ErrBreakerOpen). Any other error, including a
// cancellation or one propagated from op itself, is returned unchanged.
func ExecuteOrFallback[T any](ctx context.Context, b *Breaker, fallback func(error) (T, error), op Op[T]) (T, error) {
	val, err := Execute(ctx, b, op)
	if errors.Is(err, rerr.ErrBreakerOpen) {
		return fallback(err)
	}
	return val, err
}
