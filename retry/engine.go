package retry

import (
	"context"
	"errors"
	"time"

	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/schedule"
)

// Op is the asynchronous thunk every combinator in this package wraps.
type Op[T any] func(ctx context.Context) (T, error)

// Attempt records one execution's outcome, for RetryWithHistory.
type Attempt[T any] struct {
	Value    T
	Err      error
	Duration time.Duration
}

// History is the full record of attempts made by RetryWithHistory, plus
// the cumulative wall-clock duration of the whole call.
type History[T any] struct {
	Attempts []Attempt[T]
	Total    time.Duration
}

func cancelledErr(context.Context) error {
	return rerr.ErrCancelled
}

// Retry invokes op, consulting sch (driven by op's error) for whether and
// after what delay to retry. retries (sch's own continuation count) is
// bounded by the schedule itself; attempts = 1 + retries. A cancelled
// context aborts the loop immediately with rerr.ErrCancelled.
func Retry[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[error], op Op[T]) (T, error) {
	return RetryIf(ctx, r, sch, func(error) bool { return true }, op)
}

// RetryIf is Retry, but the schedule is only consulted for errors
// satisfying predicate; other errors propagate unchanged, with no retry.
func RetryIf[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[error], predicate func(error) bool, op Op[T]) (T, error) {
	r.recordCall()
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			var zero T
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt})
			return zero, cancelledErr(ctx)
		}

		start := r.clock.Now()
		val, err := op(ctx)
		r.recordAttempt()
		dur := r.clock.Now().Sub(start)

		if err == nil {
			r.recordOutcome(true, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Value: val, Duration: dur})
			return val, nil
		}

		if ctx.Err() != nil {
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt, Err: err, Duration: dur})
			return val, cancelledErr(ctx)
		}

		if !predicate(err) {
			r.recordOutcome(false, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Err: err, Duration: dur})
			return val, err
		}

		decision := sch.Step(attempt, err)
		if !decision.Continue {
			r.recordOutcome(false, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Err: err, Duration: dur})
			return val, err
		}

		r.bus.Emit(Event{Kind: AttemptFailed, Attempt: attempt, Err: err, Duration: dur})
		attempt++

		if slErr := r.clock.Sleep(ctx, decision.Delay); slErr != nil {
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt})
			return val, cancelledErr(ctx)
		}
	}
}

// RetryOrDefault is Retry, substituting def for the final error once the
// schedule stops continuing, instead of propagating it. A Cancelled
// outcome is never substituted: it propagates via the returned error so
// callers can still distinguish "gave up retrying" from "the caller's
// context ended mid-attempt".
func RetryOrDefault[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[error], def T, op Op[T]) (T, error) {
	val, err := Retry(ctx, r, sch, op)
	if err == nil {
		return val, nil
	}
	if errors.Is(err, rerr.ErrCancelled) {
		return val, err
	}
	return def, nil
}

// RetryWithHistory is Retry, additionally returning every attempt made
// and the call's total wall-clock duration.
func RetryWithHistory[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[error], op Op[T]) (T, History[T], error) {
	var hist History[T]
	start := r.clock.Now()

	wrapped := func(ctx context.Context) (T, error) {
		attemptStart := r.clock.Now()
		val, err := op(ctx)
		hist.Attempts = append(hist.Attempts, Attempt[T]{Value: val, Err: err, Duration: r.clock.Now().Sub(attemptStart)})
		return val, err
	}

	val, err := Retry(ctx, r, sch, wrapped)
	hist.Total = r.clock.Now().Sub(start)
	return val, hist, err
}

// Repeat invokes op, consulting sch (driven by op's successful value) for
// whether and after what delay to run it again. A non-nil error from op
// stops the loop immediately, propagating the error unchanged: repeat
// semantics concern successful outcomes only.
func Repeat[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[T], op Op[T]) (T, error) {
	r.recordCall()
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			var zero T
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt})
			return zero, cancelledErr(ctx)
		}

		val, err := op(ctx)
		r.recordAttempt()

		if err != nil {
			r.recordOutcome(false, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Err: err})
			return val, err
		}

		decision := sch.Step(attempt, val)
		if !decision.Continue {
			r.recordOutcome(true, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Value: val})
			return val, nil
		}

		r.bus.Emit(Event{Kind: AttemptFailed, Attempt: attempt, Value: val})
		attempt++

		if slErr := r.clock.Sleep(ctx, decision.Delay); slErr != nil {
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt})
			return val, cancelledErr(ctx)
		}
	}
}

// RepeatWithTimeout is Repeat, wrapping every attempt in its own
// context.WithTimeout of d.
func RepeatWithTimeout[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[T], d time.Duration, op Op[T]) (T, error) {
	wrapped := func(ctx context.Context) (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return op(attemptCtx)
	}
	return Repeat(ctx, r, sch, wrapped)
}

// RepeatUntil runs op up to maxAttempts times, stopping on the first
// result satisfying predicate. If no attempt satisfies predicate within
// maxAttempts, it fails with rerr.ErrConditionNotMet.
func RepeatUntil[T any](ctx context.Context, r *Retrier, maxAttempts int, predicate func(T) bool, op Op[T]) (T, error) {
	if maxAttempts <= 0 {
		panic("retry: RepeatUntil: maxAttempts must be > 0")
	}
	r.recordCall()

	var last T
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt})
			return last, cancelledErr(ctx)
		}

		val, err := op(ctx)
		r.recordAttempt()
		if err != nil {
			r.recordOutcome(false, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Err: err})
			return last, err
		}
		last = val

		if predicate(val) {
			r.recordOutcome(true, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Value: val})
			return val, nil
		}
		r.bus.Emit(Event{Kind: AttemptFailed, Attempt: attempt, Value: val})
	}

	r.recordOutcome(false, false)
	return last, rerr.ErrConditionNotMet
}

// RepeatWhile collects results from successive calls to op while
// predicate(result) holds, up to maxAttempts. The returned slice may be
// empty only if the first call's result fails predicate immediately.
func RepeatWhile[T any](ctx context.Context, r *Retrier, maxAttempts int, predicate func(T) bool, op Op[T]) ([]T, error) {
	if maxAttempts <= 0 {
		panic("retry: RepeatWhile: maxAttempts must be > 0")
	}
	r.recordCall()

	var results []T
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			r.recordOutcome(false, true)
			r.bus.Emit(Event{Kind: Cancelled, Attempt: attempt})
			return results, cancelledErr(ctx)
		}

		val, err := op(ctx)
		r.recordAttempt()
		if err != nil {
			r.recordOutcome(false, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Err: err})
			return results, err
		}

		if !predicate(val) {
			r.recordOutcome(true, false)
			r.bus.Emit(Event{Kind: Exhausted, Attempt: attempt, Value: val})
			return results, nil
		}

		results = append(results, val)
		r.bus.Emit(Event{Kind: AttemptFailed, Attempt: attempt, Value: val})
	}

	r.recordOutcome(true, false)
	return results, nil
}

// RepeatAndCollect repeats op per sch, collecting every successful value
// until the schedule stops continuing or op errors.
func RepeatAndCollect[T any](ctx context.Context, r *Retrier, sch schedule.Schedule[T], op Op[T]) ([]T, error) {
	var results []T
	wrapped := func(ctx context.Context) (T, error) {
		val, err := op(ctx)
		if err == nil {
			results = append(results, val)
		}
		return val, err
	}
	_, err := Repeat(ctx, r, sch, wrapped)
	return results, err
}
