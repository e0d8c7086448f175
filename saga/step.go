package saga

import (
	"context"
	"time"

	"github.com/joeycumines/resilience/retry"
	"github.com/joeycumines/resilience/schedule"
	"github.com/joeycumines/resilience/timelimiter"
)

// NewStep builds a plain Step from a forward action and its (possibly
// nil) compensation.
func NewStep(name string, forward func(ctx context.Context) (any, error), compensate func(ctx context.Context, result any) error) Step {
	return Step{Name: name, Forward: forward, Compensate: compensate}
}

// NewStepWithTimeout wraps forward so it races against timeout via tl,
// failing with rerr.ErrTimedOut (through timelimiter.Execute) if it
// doesn't complete in time.
func NewStepWithTimeout(name string, tl *timelimiter.TimeLimiter, timeout time.Duration, forward func(ctx context.Context) (any, error), compensate func(ctx context.Context, result any) error) Step {
	return Step{
		Name: name,
		Forward: func(ctx context.Context) (any, error) {
			return timelimiter.Execute(ctx, tl, timeout, timelimiter.Op[any](forward))
		},
		Compensate: compensate,
	}
}

// NewStepWithRetry wraps forward so it's retried per sch via r before
// the step is considered failed.
func NewStepWithRetry(name string, r *retry.Retrier, sch schedule.Schedule[error], forward func(ctx context.Context) (any, error), compensate func(ctx context.Context, result any) error) Step {
	return Step{
		Name: name,
		Forward: func(ctx context.Context) (any, error) {
			return retry.Retry(ctx, r, sch, retry.Op[any](forward))
		},
		Compensate: compensate,
	}
}
