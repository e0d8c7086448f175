package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/rerr"
)

var errBoom = errors.New("boom")

func TestSaga_ForwardSuccessReturnsFinalResult(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc})

	steps := []Step{
		NewStep("reserve", func(ctx context.Context) (any, error) { return "reserved", nil }, nil),
		NewStep("charge", func(ctx context.Context) (any, error) { return 42, nil }, nil),
	}

	out := s.Run(context.Background(), steps)
	require.True(t, out.Success)
	assert.Equal(t, 42, out.Result)
	assert.Len(t, out.ExecutedSteps, 2)
	assert.NotEmpty(t, out.RunID)
}

func TestSaga_FailureCompensatesInReverseOrder(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc})

	var compensatedOrder []string

	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return "a-result", nil },
			func(ctx context.Context, result any) error {
				compensatedOrder = append(compensatedOrder, "a:"+result.(string))
				return nil
			}),
		NewStep("b", func(ctx context.Context) (any, error) { return "b-result", nil },
			func(ctx context.Context, result any) error {
				compensatedOrder = append(compensatedOrder, "b:"+result.(string))
				return nil
			}),
		NewStep("c", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	out := s.Run(context.Background(), steps)
	require.False(t, out.Success)

	var stepErr *rerr.SagaStepFailed
	require.ErrorAs(t, out.Err, &stepErr)
	assert.Equal(t, "c", stepErr.StepName)

	assert.Equal(t, []string{"b:b-result", "a:a-result"}, compensatedOrder)
	assert.Len(t, out.CompensatedSteps, 2)
	assert.Empty(t, out.CompensationErrors)
}

func TestSaga_NilCompensateIsSkippedWithoutError(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc})

	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return "a", nil }, nil),
		NewStep("b", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	out := s.Run(context.Background(), steps)
	require.False(t, out.Success)
	assert.Empty(t, out.CompensatedSteps)
	assert.Empty(t, out.CompensationErrors)
}

func TestSaga_ContinueOnCompensationFailureTrue(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	cfg := DefaultConfig()
	cfg.Clock = vc
	s := New(cfg)

	var ran []string
	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return nil, nil },
			func(ctx context.Context, result any) error { ran = append(ran, "a"); return nil }),
		NewStep("b", func(ctx context.Context) (any, error) { return nil, nil },
			func(ctx context.Context, result any) error { ran = append(ran, "b"); return errBoom }),
		NewStep("c", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	out := s.Run(context.Background(), steps)
	require.False(t, out.Success)
	assert.Equal(t, []string{"b", "a"}, ran, "compensation must continue past b's failure to reach a")
	require.Len(t, out.CompensationErrors, 1)
	assert.Equal(t, rerr.CompensationFailed, out.CompensationErrors[0].Kind)
	assert.Len(t, out.CompensatedSteps, 1)
}

func TestSaga_ContinueOnCompensationFailureFalseStopsSweep(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc, ContinueOnCompensationFailure: false})

	var ran []string
	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return nil, nil },
			func(ctx context.Context, result any) error { ran = append(ran, "a"); return nil }),
		NewStep("b", func(ctx context.Context) (any, error) { return nil, nil },
			func(ctx context.Context, result any) error { ran = append(ran, "b"); return errBoom }),
		NewStep("c", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	out := s.Run(context.Background(), steps)
	require.False(t, out.Success)
	assert.Equal(t, []string{"b"}, ran, "a must not run once b's compensation fails and sweeping stops")
	require.Len(t, out.CompensationErrors, 1)
	assert.Equal(t, rerr.CompensationFailed, out.CompensationErrors[0].Kind)
}

func TestSaga_CompensationTimeoutAbandonsRemainingSteps(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc, ContinueOnCompensationFailure: true, CompensationTimeout: 10 * time.Millisecond})

	release := make(chan struct{})
	var ran []string

	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return nil, nil },
			func(ctx context.Context, result any) error { ran = append(ran, "a"); return nil }),
		NewStep("b", func(ctx context.Context) (any, error) { return nil, nil },
			func(ctx context.Context, result any) error {
				ran = append(ran, "b")
				<-release
				return nil
			}),
		NewStep("c", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	done := make(chan Outcome, 1)
	go func() { done <- s.Run(context.Background(), steps) }()

	time.Sleep(10 * time.Millisecond)
	vc.Advance(10 * time.Millisecond)
	close(release)

	out := <-done
	require.False(t, out.Success)
	assert.Equal(t, []string{"b"}, ran, "a must be abandoned once the compensation deadline fires mid-b")

	var abandoned int
	for _, ce := range out.CompensationErrors {
		if ce.Kind == rerr.CompensationAbandoned {
			abandoned++
			assert.Equal(t, "a", ce.StepName)
		}
	}
	assert.Equal(t, 1, abandoned)
}

func TestSaga_CancelledContextDuringForwardTriggersCompensation(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc})

	ctx, cancel := context.WithCancel(context.Background())

	var compensated []string
	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return "a", nil },
			func(ctx context.Context, result any) error { compensated = append(compensated, "a"); return nil }),
		NewStep("b", func(ctx context.Context) (any, error) {
			cancel()
			return "b", nil
		}, func(ctx context.Context, result any) error { compensated = append(compensated, "b"); return nil }),
		NewStep("c", func(ctx context.Context) (any, error) {
			t.Fatal("step c must not run once the context is cancelled between steps")
			return nil, nil
		}, nil),
	}

	out := s.Run(ctx, steps)
	require.False(t, out.Success)
	assert.ErrorIs(t, out.Err, rerr.ErrCancelled)
	assert.Equal(t, []string{"b", "a"}, compensated)
}

func TestSaga_ListenersObserveLifecycle(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	cfg := DefaultConfig()
	cfg.Clock = vc
	s := New(cfg)

	var kinds []EventKind
	s.AddListener(func(e Event) { kinds = append(kinds, e.Kind) })

	steps := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return "a", nil },
			func(ctx context.Context, result any) error { return nil }),
		NewStep("b", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	out := s.Run(context.Background(), steps)
	require.False(t, out.Success)
	assert.Equal(t, []EventKind{StepExecuted, StepFailed, StepCompensated}, kinds)
}

func TestSaga_StatisticsAccumulateAcrossRuns(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	cfg := DefaultConfig()
	cfg.Clock = vc
	s := New(cfg)

	ok := []Step{NewStep("ok", func(ctx context.Context) (any, error) { return 1, nil }, nil)}
	fail := []Step{
		NewStep("a", func(ctx context.Context) (any, error) { return "a", nil },
			func(ctx context.Context, result any) error { return nil }),
		NewStep("boom", func(ctx context.Context) (any, error) { return nil, errBoom }, nil),
	}

	_ = s.Run(context.Background(), ok)
	_ = s.Run(context.Background(), fail)

	stats := s.Statistics()
	assert.Equal(t, uint64(2), stats.TotalRuns)
	assert.Equal(t, uint64(1), stats.SuccessfulRuns)
	assert.Equal(t, uint64(1), stats.FailedRuns)
	assert.Equal(t, uint64(1), stats.CompensatedSteps)
	assert.Equal(t, uint64(0), stats.CompensationFailures)

	s.ResetStatistics()
	assert.Equal(t, Statistics{}, s.Statistics())
}

func TestSaga_RunAllAggregatesStats(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	s := New(Config{Clock: vc})

	ok := []Step{NewStep("ok", func(ctx context.Context) (any, error) { return 1, nil }, nil)}
	fail := []Step{NewStep("fail", func(ctx context.Context) (any, error) { return nil, errBoom }, nil)}

	outcomes, stats := RunAll(context.Background(), s, [][]Step{ok, fail, ok})
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.True(t, outcomes[2].Success)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 0.0001)
}
