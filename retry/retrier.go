package retry

import (
	"sync"
	"time"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rlog"
)

// Config configures a Retrier.
type Config struct {
	// Clock supplies the monotonic time and sleep used for back-off
	// waits. Defaults to clock.Real().
	Clock clock.Clock
	// Logger receives listener-panic diagnostics. Defaults to a no-op.
	Logger rlog.Logger
	// Component names this instance in log output.
	Component string
}

// EventKind classifies a retry/repeat engine event.
type EventKind int

const (
	// AttemptFailed fires after an attempt whose outcome the schedule
	// will still consult (i.e. not the terminal attempt).
	AttemptFailed EventKind = iota
	// Exhausted fires on a terminal outcome other than cancellation (a
	// success or a final error on a retry schedule, or any terminal
	// outcome on a repeat schedule).
	Exhausted
	// Cancelled fires when the caller's context was cancelled mid-loop.
	Cancelled
)

// Event is published on a Retrier's listener bus after each attempt.
type Event struct {
	Kind     EventKind
	Attempt  int
	Err      error
	Value    any
	Duration time.Duration
}

// Statistics are the monotone counters a Retrier tracks across every
// Retry/Repeat call made through it. Reset only via ResetStatistics.
type Statistics struct {
	TotalCalls      uint64
	TotalAttempts   uint64
	SuccessfulCalls uint64
	FailedCalls     uint64
	CancelledCalls  uint64
}

// Retrier owns the Statistics and listener bus shared by every
// Retry/Repeat/RepeatUntil/... call made through it. Its zero value is
// not usable; construct with New.
type Retrier struct {
	clock  clock.Clock
	logger rlog.Logger
	bus    *event.Bus[Event]

	mu    sync.Mutex
	stats Statistics
}

// New constructs a Retrier from cfg.
func New(cfg Config) *Retrier {
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
		component = "retry"
	}
	return &Retrier{
		clock:  c,
		logger: l,
		bus:    event.New[Event](l, component),
	}
}

// AddListener registers fn to observe every Event emitted by calls made
// through r. Returns an ID accepted by RemoveListener.
func (r *Retrier) AddListener(fn func(Event)) event.ListenerID {
	return r.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener. Removal is
// idempotent.
func (r *Retrier) RemoveListener(id event.ListenerID) bool {
	return r.bus.Remove(id)
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (r *Retrier) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetStatistics zeroes every counter.
func (r *Retrier) ResetStatistics() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Statistics{}
}

func (r *Retrier) recordCall() {
	r.mu.Lock()
	r.stats.TotalCalls++
	r.mu.Unlock()
}

func (r *Retrier) recordAttempt() {
	r.mu.Lock()
	r.stats.TotalAttempts++
	r.mu.Unlock()
}

func (r *Retrier) recordOutcome(success, cancelled bool) {
	r.mu.Lock()
	switch {
	case cancelled:
		r.stats.CancelledCalls++
	case success:
		r.stats.SuccessfulCalls++
	default:
		r.stats.FailedCalls++
	}
	r.mu.Unlock()
}
