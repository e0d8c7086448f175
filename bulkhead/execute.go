package bulkhead

import (
	"context"
	"errors"

	"github.com/joeycumines/resilience/rerr"
)

// Op is the guarded thunk Execute admits through b.
type Op[T any] func(ctx context.Context) (T, error)

// Execute admits op through b: takes a free concurrency permit at once if
// one is available; otherwise rejects immediately if the wait queue is
// full, or waits for a permit (bounded by MaxWaitDuration if set). It then
// runs op and unconditionally releases the permit.
func Execute[T any](ctx context.Context, b *Bulkhead, op Op[T]) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, rerr.ErrCancelled
	}

	b.mu.Lock()
	acquired := b.sem.TryAcquire(1)
	if !acquired && b.waitingCalls >= b.cfg.MaxWaitingCalls {
		b.stats.TotalCalls++
		b.stats.RejectedCalls++
		b.mu.Unlock()
		b.bus.Emit(Event{Kind: Rejected, Err: rerr.ErrBulkheadFull})
		return zero, rerr.ErrBulkheadFull
	}
	if !acquired {
		b.waitingCalls++
	}
	b.mu.Unlock()

	if !acquired {
		err := b.acquire(ctx)

		b.mu.Lock()
		b.waitingCalls--
		b.mu.Unlock()

		if err != nil {
			b.mu.Lock()
			b.stats.TotalCalls++
			if errors.Is(err, rerr.ErrBulkheadTimeout) {
				b.stats.TimedOutCalls++
			} else {
				b.stats.CancelledCalls++
			}
			b.mu.Unlock()
			if errors.Is(err, rerr.ErrBulkheadTimeout) {
				b.bus.Emit(Event{Kind: TimedOut, Err: err})
			}
			return zero, err
		}
	}

	b.mu.Lock()
	b.activeCalls++
	b.mu.Unlock()
	b.bus.Emit(Event{Kind: Admitted})

	val, opErr := op(ctx)

	b.mu.Lock()
	b.activeCalls--
	b.stats.TotalCalls++
	if opErr != nil {
		b.stats.FailedCalls++
	} else {
		b.stats.SuccessfulCalls++
	}
	b.mu.Unlock()
	b.sem.Release(1)
	b.bus.Emit(Event{Kind: Completed, Err: opErr})

	return val, opErr
}

// ExecuteOrFallback is Execute, invoking fallback(err) in place of a
// rejected or timed-out admission (rerr.ErrBulkheadFull,
// rerr.ErrBulkheadTimeout). Any other error, including one propagated
// from op itself, is returned unchanged.
func ExecuteOrFallback[T any](ctx context.Context, b *Bulkhead, fallback func(error) (T, error), op Op[T]) (T, error) {
	val, err := Execute(ctx, b, op)
	if errors.Is(err, rerr.ErrBulkheadFull) || errors.Is(err, rerr.ErrBulkheadTimeout) {
		return fallback(err)
	}
	return val, err
}
