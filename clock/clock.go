package clock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/resilience/rerr"
)

// Clock is the time source every primitive depends on instead of calling
// time.Now/time.Sleep directly.
type Clock interface {
	// Now returns the current monotonic instant.
	Now() time.Time
	// Sleep blocks until d has elapsed or ctx is done, whichever comes
	// first. It returns rerr.ErrCancelled (wrapping ctx.Err()) on
	// cancellation, and nil once d has elapsed. d <= 0 returns
	// immediately unless ctx is already done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// Real returns the Clock backed by the host runtime's wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

func cancelled(cause error) error {
	return &cancelledError{cause: cause}
}

type cancelledError struct{ cause error }

func (e *cancelledError) Error() string { return rerr.ErrCancelled.Error() + ": " + e.cause.Error() }
func (e *cancelledError) Is(target error) bool { return target == rerr.ErrCancelled }
func (e *cancelledError) Unwrap() error         { return e.cause }

// Virtual is a Clock whose Now only moves when Advance is called. It is
// intended for deterministic tests of schedule-driven and time-bounded
// primitives (retry backoff, breaker reset timeouts, bulkhead wait
// timeouts, rate limiter refill, time limiter deadlines).
type Virtual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	wake time.Time
	done chan struct{}
	once sync.Once
}

func (w *waiter) fire() {
	w.once.Do(func() { close(w.done) })
}

// NewVirtual creates a Virtual clock starting at the given instant. A
// zero Time defaults to an arbitrary fixed epoch so tests get
// deterministic, comparable Instants.
func NewVirtual(start time.Time) *Virtual {
	if start.IsZero() {
		start = time.Unix(1700000000, 0).UTC()
	}
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if d <= 0 {
		return nil
	}

	v.mu.Lock()
	w := &waiter{wake: v.now.Add(d), done: make(chan struct{})}
	v.waiters = append(v.waiters, w)
	v.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

// Advance moves the virtual clock forward by d, waking (in wake-time
// order) every Sleep call whose deadline has now elapsed.
func (v *Virtual) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: Advance: negative duration")
	}

	v.mu.Lock()
	v.now = v.now.Add(d)
	now := v.now

	var remaining []*waiter
	var toFire []*waiter
	for _, w := range v.waiters {
		if !w.wake.After(now) {
			toFire = append(toFire, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	v.waiters = remaining
	v.mu.Unlock()

	sort.SliceStable(toFire, func(i, j int) bool {
		return toFire[i].wake.Before(toFire[j].wake)
	})
	for _, w := range toFire {
		w.fire()
	}
}
