package bulkhead

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/rlog"
)

// EventKind classifies a bulkhead admission event.
type EventKind int

const (
	// Admitted fires once a caller obtains a concurrency permit.
	Admitted EventKind = iota
	// Rejected fires when the wait queue is full.
	Rejected
	// TimedOut fires when a queued caller exceeds MaxWaitDuration.
	TimedOut
	// Completed fires after an admitted op returns, success or failure.
	Completed
)

// Event is published on a Bulkhead's listener bus as calls pass through.
type Event struct {
	Kind EventKind
	Err  error
}

// Config configures a Bulkhead.
type Config struct {
	// MaxConcurrentCalls bounds how many calls may run at once. Must be > 0.
	MaxConcurrentCalls int
	// MaxWaitingCalls bounds how many callers may be queued awaiting a
	// permit. Must be >= 0; 0 means no caller ever waits.
	MaxWaitingCalls int
	// MaxWaitDuration, if > 0, bounds how long a queued caller waits
	// before failing with rerr.ErrBulkheadTimeout.
	MaxWaitDuration time.Duration

	Clock     clock.Clock
	Logger    rlog.Logger
	Component string
}

func (c Config) validate() error {
	if c.MaxConcurrentCalls <= 0 {
		return rerr.NewInvalidArgument("bulkhead: MaxConcurrentCalls must be > 0")
	}
	if c.MaxWaitingCalls < 0 {
		return rerr.NewInvalidArgument("bulkhead: MaxWaitingCalls must be >= 0")
	}
	return nil
}

// Statistics are the monotone counters tracked across every Execute call.
// TotalCalls is incremented once a call's outcome is known, so it always
// equals the sum of the five outcome counters; calls still waiting or
// running are not yet counted.
type Statistics struct {
	TotalCalls      uint64
	SuccessfulCalls uint64
	FailedCalls     uint64
	RejectedCalls   uint64
	TimedOutCalls   uint64
	CancelledCalls  uint64
}

// Bulkhead limits concurrent and queued admission to a guarded resource.
// Its zero value is not usable; construct with New.
type Bulkhead struct {
	cfg    Config
	clock  clock.Clock
	logger rlog.Logger
	sem    *semaphore.Weighted
	bus    *event.Bus[Event]

	mu           sync.Mutex
	waitingCalls int
	activeCalls  int
	stats        Statistics
}

// New validates cfg and constructs a Bulkhead.
func New(cfg Config) (*Bulkhead, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	l := cfg.Logger
	if l == nil {
		l = rlog.NoOp()
	}
	component := cfg.Component
	if component == "" {
		component = "bulkhead"
	}
	return &Bulkhead{
		cfg:    cfg,
		clock:  c,
		logger: l,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		bus:    event.New[Event](l, component),
	}, nil
}

// AddListener registers fn to observe every Event this Bulkhead emits.
// Returns an ID accepted by RemoveListener.
func (b *Bulkhead) AddListener(fn func(Event)) event.ListenerID {
	return b.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener.
func (b *Bulkhead) RemoveListener(id event.ListenerID) bool {
	return b.bus.Remove(id)
}

// ActiveCalls reports the number of calls currently executing.
func (b *Bulkhead) ActiveCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeCalls
}

// WaitingCalls reports the number of calls currently queued for a permit.
func (b *Bulkhead) WaitingCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitingCalls
}

// AvailableCapacity is maxConcurrentCalls - activeCalls.
func (b *Bulkhead) AvailableCapacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.MaxConcurrentCalls - b.activeCalls
}

// UtilizationRate is activeCalls / maxConcurrentCalls.
func (b *Bulkhead) UtilizationRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.activeCalls) / float64(b.cfg.MaxConcurrentCalls)
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (b *Bulkhead) Statistics() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// ResetStatistics zeroes every counter.
func (b *Bulkhead) ResetStatistics() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Statistics{}
}

// acquire implements step 2-3 of the bulkhead algorithm: attempt to
// acquire a concurrency permit, racing against maxWaitDuration (if set)
// using b.clock so the wait is deterministically testable with a virtual
// clock. Waiters obtain permits in FIFO order via the underlying
// semaphore.Weighted's own queuing.
func (b *Bulkhead) acquire(ctx context.Context) error {
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	acquireDone := make(chan error, 1)
	go func() { acquireDone <- b.sem.Acquire(acquireCtx, 1) }()

	if b.cfg.MaxWaitDuration <= 0 {
		// semaphore.Weighted.Acquire fails only when acquireCtx is done.
		if err := <-acquireDone; err != nil {
			return rerr.ErrCancelled
		}
		return nil
	}

	timedOut := make(chan struct{})
	go func() {
		if err := b.clock.Sleep(acquireCtx, b.cfg.MaxWaitDuration); err == nil {
			close(timedOut)
		}
	}()

	select {
	case err := <-acquireDone:
		if err != nil {
			return rerr.ErrCancelled
		}
		return nil
	case <-timedOut:
		cancel()
		// Acquire may have won the permit in the same instant the wait
		// expired; it returns promptly once cancelled, so drain it and
		// give the permit back if it did.
		if err := <-acquireDone; err == nil {
			b.sem.Release(1)
		}
		return rerr.ErrBulkheadTimeout
	}
}
