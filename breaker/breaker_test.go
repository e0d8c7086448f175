package breaker

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

func newTestBreaker(t *testing.T, vc *clock.Virtual, failureThreshold, halfOpenMax, halfOpenSuccess int, resetTimeout time.Duration) *Breaker {
	t.Helper()
	b, err := New(Config{
		FailureThreshold:         failureThreshold,
		ResetTimeout:             resetTimeout,
		HalfOpenMaxCalls:         halfOpenMax,
		HalfOpenSuccessThreshold: halfOpenSuccess,
		Clock:                    vc,
	})
	require.NoError(t, err)
	return b
}

func ok(ctx context.Context) (int, error)   { return 1, nil }
func fail(ctx context.Context) (int, error) { return 0, errBoom }

func TestBreaker_ClosedTripsOpenAfterThreshold(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 3, 1, 1, time.Second)

	for i := 0; i < 2; i++ {
		_, err := Execute[int](context.Background(), b, fail)
		require.Error(t, err)
		assert.Equal(t, Closed, b.State())
	}

	_, err := Execute[int](context.Background(), b, fail)
	require.Error(t, err)
	assert.Equal(t, Open, b.State())

	_, err = Execute[int](context.Background(), b, ok)
	assert.ErrorIs(t, err, rerr.ErrBreakerOpen)
}

func TestBreaker_ClosedSuccessResetsFailureCount(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 2, 1, 1, time.Second)

	_, _ = Execute[int](context.Background(), b, fail)
	_, _ = Execute[int](context.Background(), b, ok)
	_, err := Execute[int](context.Background(), b, fail)
	require.Error(t, err)
	assert.Equal(t, Closed, b.State(), "failure count should have reset on the intervening success")
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 1, 10*time.Millisecond)

	_, err := Execute[int](context.Background(), b, fail)
	require.Error(t, err)
	require.Equal(t, Open, b.State())

	vc.Advance(10 * time.Millisecond)

	_, err = Execute[int](context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State(), "a single success meeting halfOpenSuccessThreshold closes the breaker")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 2, 10*time.Millisecond)

	_, _ = Execute[int](context.Background(), b, fail)
	vc.Advance(10 * time.Millisecond)

	_, err := Execute[int](context.Background(), b, fail)
	require.Error(t, err)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_HalfOpenRejectsBeyondMaxCalls(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 5, 10*time.Millisecond)

	_, _ = Execute[int](context.Background(), b, fail)
	vc.Advance(10 * time.Millisecond)

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Execute[int](context.Background(), b, func(ctx context.Context) (int, error) {
			close(started)
			<-block
			return 1, nil
		})
	}()
	<-started

	_, err := Execute[int](context.Background(), b, ok)
	assert.ErrorIs(t, err, rerr.ErrBreakerOpen, "halfOpenMaxCalls=1 already saturated by the in-flight probe")
	close(block)
}

func TestBreaker_ExecuteOrFallback(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 1, time.Second)
	_, _ = Execute[int](context.Background(), b, fail)

	val, err := ExecuteOrFallback[int](context.Background(), b, func(error) (int, error) {
		return 99, nil
	}, ok)
	require.NoError(t, err)
	assert.Equal(t, 99, val)
}

func TestBreaker_ResetAndTrip(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 1, time.Second)

	b.Trip()
	assert.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_StateChangeEvents(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 1, 10*time.Millisecond)

	var transitions []StateChangeEvent
	b.AddListener(func(e StateChangeEvent) { transitions = append(transitions, e) })

	_, _ = Execute[int](context.Background(), b, fail)
	vc.Advance(10 * time.Millisecond)
	_, _ = Execute[int](context.Background(), b, ok)

	require.Len(t, transitions, 3)
	assert.Equal(t, Closed, transitions[0].From)
	assert.Equal(t, Open, transitions[0].To)
	assert.Equal(t, Open, transitions[1].From)
	assert.Equal(t, HalfOpen, transitions[1].To)
	assert.Equal(t, HalfOpen, transitions[2].From)
	assert.Equal(t, Closed, transitions[2].To)
}

func TestBreaker_CancelledCountsAsNeither(t *testing.T) {
	vc := clock.NewVirtual(time.Time{})
	b := newTestBreaker(t, vc, 1, 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Execute[int](ctx, b, func(ctx context.Context) (int, error) {
		cancel()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, rerr.ErrCancelled)
	assert.Equal(t, Closed, b.State(), "a cancelled call must not trip the breaker")

	stats := b.Statistics()
	assert.Equal(t, uint64(1), stats.CancelledCalls)
	assert.Equal(t, uint64(0), stats.FailedCalls)
}
