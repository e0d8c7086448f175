package timelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/joeycumines/resilience/rerr"
)

// Op is the guarded thunk every variant in this package races against a
// deadline.
type Op[T any] func(ctx context.Context) (T, error)

type raceResult[T any] struct {
	val      T
	err      error
	timedOut bool
	dur      time.Duration
}

// race runs op against a deadline derived from timeout (falling back to
// tl's DefaultTimeout when timeout <= 0), cancelling op cooperatively if
// the timer wins.
func race[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, op Op[T]) raceResult[T] {
	d := tl.effectiveTimeout(timeout)
	start := tl.clock.Now()

	if err := ctx.Err(); err != nil {
		return raceResult[T]{err: rerr.ErrCancelled, dur: tl.clock.Now().Sub(start)}
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, e := op(opCtx)
		done <- outcome{v, e}
	}()

	timedOut := make(chan struct{})
	go func() {
		if err := tl.clock.Sleep(opCtx, d); err == nil {
			close(timedOut)
		}
	}()

	select {
	case o := <-done:
		dur := tl.clock.Now().Sub(start)
		if o.err != nil && ctx.Err() != nil {
			return raceResult[T]{err: rerr.ErrCancelled, dur: dur}
		}
		return raceResult[T]{val: o.val, err: o.err, dur: dur}
	case <-timedOut:
		cancel()
		return raceResult[T]{timedOut: true, dur: tl.clock.Now().Sub(start)}
	case <-ctx.Done():
		cancel()
		return raceResult[T]{err: rerr.ErrCancelled, dur: tl.clock.Now().Sub(start)}
	}
}

// Execute races op against timeout (or tl's DefaultTimeout if timeout <=
// 0), returning rerr.ErrTimedOut if the deadline wins.
func Execute[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, op Op[T]) (T, error) {
	r := race(ctx, tl, timeout, op)
	var zero T

	switch {
	case r.err == rerr.ErrCancelled:
		return zero, rerr.ErrCancelled
	case r.timedOut:
		tl.recordTimeout(r.dur)
		return zero, rerr.ErrTimedOut
	case r.err != nil:
		tl.recordFailure(r.dur, r.err)
		return zero, r.err
	default:
		tl.recordSuccess(r.dur)
		return r.val, nil
	}
}

// ExecuteOrNull is Execute, but returns (nil, nil) instead of
// (zero, rerr.ErrTimedOut) on timeout. Non-timeout errors still
// propagate.
func ExecuteOrNull[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, op Op[T]) (*T, error) {
	r := race(ctx, tl, timeout, op)

	switch {
	case r.err == rerr.ErrCancelled:
		return nil, rerr.ErrCancelled
	case r.timedOut:
		tl.recordTimeout(r.dur)
		return nil, nil
	case r.err != nil:
		tl.recordFailure(r.dur, r.err)
		return nil, r.err
	default:
		tl.recordSuccess(r.dur)
		val := r.val
		return &val, nil
	}
}

// ExecuteOrFallback is Execute, invoking fallback(err) in place of a
// timeout (rerr.ErrTimedOut). Any other error, including one propagated
// from op itself, is returned unchanged.
func ExecuteOrFallback[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, fallback func(error) (T, error), op Op[T]) (T, error) {
	val, err := Execute(ctx, tl, timeout, op)
	if errors.Is(err, rerr.ErrTimedOut) {
		return fallback(err)
	}
	return val, err
}

// ExecuteOrDefault is Execute, substituting def for a timeout
// (rerr.ErrTimedOut). Any other error, including one propagated from op
// itself, still results in the zero value for T; callers who need to
// observe that error should use Execute directly.
func ExecuteOrDefault[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, def T, op Op[T]) T {
	val, err := Execute(ctx, tl, timeout, op)
	if err == nil {
		return val
	}
	if errors.Is(err, rerr.ErrTimedOut) {
		return def
	}
	return val
}

// ExecuteWithRetry re-races op on timeout up to retries additional times
// (so at most retries+1 attempts total), counting attempts and
// preserving the last timeout error if every attempt times out. A
// non-timeout error stops immediately.
func ExecuteWithRetry[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, retries int, op Op[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		r := race(ctx, tl, timeout, op)

		switch {
		case r.err == rerr.ErrCancelled:
			return zero, rerr.ErrCancelled
		case r.timedOut:
			tl.recordTimeout(r.dur)
			lastErr = rerr.ErrTimedOut
			continue
		case r.err != nil:
			tl.recordFailure(r.dur, r.err)
			return zero, r.err
		default:
			tl.recordSuccess(r.dur)
			return r.val, nil
		}
	}

	return zero, lastErr
}

// AllResult is one positional slot of ExecuteAll's output.
type AllResult[T any] struct {
	Value    T
	Err      error
	TimedOut bool
}

// ExecuteAll races every op in ops against its own independent deadline,
// in parallel, returning results aligned positionally with ops. A timed
// out or failed op yields a zero Value with Err/TimedOut set rather than
// aborting the others.
func ExecuteAll[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, ops []Op[T]) []AllResult[T] {
	results := make([]AllResult[T], len(ops))
	done := make(chan struct{})
	remaining := len(ops)
	if remaining == 0 {
		return results
	}

	for i, op := range ops {
		i, op := i, op
		go func() {
			r := race(ctx, tl, timeout, op)
			switch {
			case r.err == rerr.ErrCancelled:
				results[i] = AllResult[T]{Err: rerr.ErrCancelled}
			case r.timedOut:
				tl.recordTimeout(r.dur)
				results[i] = AllResult[T]{TimedOut: true, Err: rerr.ErrTimedOut}
			case r.err != nil:
				tl.recordFailure(r.dur, r.err)
				results[i] = AllResult[T]{Err: r.err}
			default:
				tl.recordSuccess(r.dur)
				results[i] = AllResult[T]{Value: r.val}
			}
			done <- struct{}{}
		}()
	}

	for range ops {
		<-done
	}
	return results
}

// ExecuteRace runs every op in ops against one common deadline; the first
// to succeed wins and the rest are cancelled. If every op fails or times
// out, the last observed error is returned.
func ExecuteRace[T any](ctx context.Context, tl *TimeLimiter, timeout time.Duration, ops []Op[T]) (T, error) {
	var zero T
	if len(ops) == 0 {
		return zero, rerr.NewInvalidArgument("timelimiter: ExecuteRace requires at least one op")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	results := make(chan outcome, len(ops))

	for _, op := range ops {
		op := op
		go func() {
			val, err := Execute(raceCtx, tl, timeout, op)
			results <- outcome{val, err}
		}()
	}

	var lastErr error
	for range ops {
		o := <-results
		if o.err == nil {
			cancel()
			return o.val, nil
		}
		lastErr = o.err
	}
	return zero, lastErr
}
