package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/resilience/rerr"
)

func TestVirtual_NowOnlyMovesOnAdvance(t *testing.T) {
	v := NewVirtual(time.Time{})
	start := v.Now()
	assert.Equal(t, start, v.Now())
	v.Advance(time.Second)
	assert.Equal(t, start.Add(time.Second), v.Now())
}

func TestVirtual_SleepWakesOnAdvance(t *testing.T) {
	v := NewVirtual(time.Time{})

	done := make(chan error, 1)
	go func() { done <- v.Sleep(context.Background(), 100*time.Millisecond) }()

	select {
	case <-done:
		t.Fatal("sleep returned before the deadline was reached")
	case <-time.After(20 * time.Millisecond):
	}

	v.Advance(100 * time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep never woke after Advance")
	}
}

func TestVirtual_SleepZeroOrNegativeReturnsImmediately(t *testing.T) {
	v := NewVirtual(time.Time{})
	require.NoError(t, v.Sleep(context.Background(), 0))
	require.NoError(t, v.Sleep(context.Background(), -time.Second))
}

func TestVirtual_SleepCancelledByContext(t *testing.T) {
	v := NewVirtual(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- v.Sleep(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, rerr.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("sleep never observed context cancellation")
	}
}

func TestVirtual_AlreadyCancelledContextSleepsNever(t *testing.T) {
	v := NewVirtual(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := v.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, rerr.ErrCancelled)
}

func TestVirtual_AdvanceWakesEveryElapsedWaiter(t *testing.T) {
	v := NewVirtual(time.Time{})

	woke := make(chan int, 3)
	start := func(i int, d time.Duration) {
		go func() {
			_ = v.Sleep(context.Background(), d)
			woke <- i
		}()
	}

	start(2, 30*time.Millisecond)
	start(0, 10*time.Millisecond)
	start(1, 20*time.Millisecond)

	time.Sleep(10 * time.Millisecond) // let all three register as waiters
	v.Advance(30 * time.Millisecond)

	var order []int
	for range 3 {
		order = append(order, <-woke)
	}
	assert.ElementsMatch(t, []int{0, 1, 2}, order, "all three waiters must wake once their deadline has elapsed")
}

func TestVirtual_NegativeAdvancePanics(t *testing.T) {
	v := NewVirtual(time.Time{})
	assert.Panics(t, func() { v.Advance(-time.Second) })
}

func TestReal_NowAdvancesWithWallClock(t *testing.T) {
	r := Real()
	t1 := r.Now()
	time.Sleep(time.Millisecond)
	t2 := r.Now()
	assert.True(t, t2.After(t1))
}

func TestReal_SleepReturnsAfterDuration(t *testing.T) {
	r := Real()
	start := time.Now()
	require.NoError(t, r.Sleep(context.Background(), 10*time.Millisecond))
	assert.True(t, time.Since(start) >= 10*time.Millisecond)
}

func TestReal_SleepCancelledByContext(t *testing.T) {
	r := Real()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Sleep(ctx, time.Hour), rerr.ErrCancelled)
}
