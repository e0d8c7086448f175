package breaker

import (
	"sync"
	"time"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/rlog"
)

// State is one of the three states a Breaker can be in.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChangeEvent is emitted whenever a Breaker's state actually
// transitions, after the transition has already committed.
type StateChangeEvent struct {
	From State
	To   State
	Time time.Time
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the consecutive-failure count (while Closed)
	// that trips the breaker Open. Must be > 0.
	FailureThreshold int
	// ResetTimeout is how long a breaker stays Open before an admission
	// check moves it to HalfOpen (where HalfOpenMaxCalls bounds the
	// probes). Must be > 0.
	ResetTimeout time.Duration
	// HalfOpenMaxCalls bounds how many calls may be in flight
	// concurrently while HalfOpen. Must be > 0.
	HalfOpenMaxCalls int
	// HalfOpenSuccessThreshold is the consecutive HalfOpen success count
	// required to close the breaker. Must be > 0.
	HalfOpenSuccessThreshold int

	Clock     clock.Clock
	Logger    rlog.Logger
	Component string
}

func (c Config) validate() error {
	switch {
	case c.FailureThreshold <= 0:
		return rerr.NewInvalidArgument("breaker: FailureThreshold must be > 0")
	case c.ResetTimeout <= 0:
		return rerr.NewInvalidArgument("breaker: ResetTimeout must be > 0")
	case c.HalfOpenMaxCalls <= 0:
		return rerr.NewInvalidArgument("breaker: HalfOpenMaxCalls must be > 0")
	case c.HalfOpenSuccessThreshold <= 0:
		return rerr.NewInvalidArgument("breaker: HalfOpenSuccessThreshold must be > 0")
	}
	return nil
}

// Statistics are the monotone counters tracked across every Execute call,
// reset only via ResetStatistics.
type Statistics struct {
	TotalCalls      uint64
	SuccessfulCalls uint64
	FailedCalls     uint64
	RejectedCalls   uint64
	CancelledCalls  uint64
}

// Breaker is a single circuit breaker instance. Its zero value is not
// usable; construct with New.
type Breaker struct {
	cfg   Config
	clock clock.Clock
	bus   *event.Bus[StateChangeEvent]

	mu                   sync.Mutex
	state                State
	failureCount         int
	halfOpenSuccessCount int
	halfOpenCalls        int
	lastFailureTime      time.Time
	stats                Statistics
}

// New validates cfg and constructs a Breaker starting Closed.
func New(cfg Config) (*Breaker, error) {
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
		component = "breaker"
	}
	return &Breaker{
		cfg:   cfg,
		clock: c,
		bus:   event.New[StateChangeEvent](l, component),
	}, nil
}

// AddListener registers fn to observe every StateChangeEvent this Breaker
// commits. Returns an ID accepted by RemoveListener.
func (b *Breaker) AddListener(fn func(StateChangeEvent)) event.ListenerID {
	return b.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener.
func (b *Breaker) RemoveListener(id event.ListenerID) bool {
	return b.bus.Remove(id)
}

// State returns the breaker's current state, without performing the
// Open→HalfOpen admission check (that only happens on Execute).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (b *Breaker) Statistics() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// ResetStatistics zeroes every counter, leaving state untouched.
func (b *Breaker) ResetStatistics() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Statistics{}
}

// Reset forces the breaker Closed, clearing all counters. Emits
// StateChange if the state actually changed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	prev := b.state
	b.state = Closed
	b.failureCount = 0
	b.halfOpenSuccessCount = 0
	b.halfOpenCalls = 0
	now := b.clock.Now()
	b.mu.Unlock()

	if prev != Closed {
		b.bus.Emit(StateChangeEvent{From: prev, To: Closed, Time: now})
	}
}

// Trip forces the breaker Open. Emits StateChange if the state actually
// changed.
func (b *Breaker) Trip() {
	b.mu.Lock()
	prev := b.state
	now := b.clock.Now()
	b.state = Open
	b.lastFailureTime = now
	b.halfOpenCalls = 0
	b.halfOpenSuccessCount = 0
	b.mu.Unlock()

	if prev != Open {
		b.bus.Emit(StateChangeEvent{From: prev, To: Open, Time: now})
	}
}

// admit performs the transactional admission check: state read and
// transition happen atomically, returning whether the call may proceed
// and, if admission itself caused a transition (Open→HalfOpen), the
// event to emit once the lock is released.
func (b *Breaker) admit() (bool, *StateChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.stats.TotalCalls++
		return true, nil

	case Open:
		if b.clock.Now().Before(b.lastFailureTime.Add(b.cfg.ResetTimeout)) {
			b.stats.RejectedCalls++
			return false, nil
		}
		prev := b.state
		b.state = HalfOpen
		b.halfOpenSuccessCount = 0
		b.halfOpenCalls = 1
		b.stats.TotalCalls++
		return true, &StateChangeEvent{From: prev, To: HalfOpen, Time: b.clock.Now()}

	case HalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			b.stats.RejectedCalls++
			return false, nil
		}
		b.halfOpenCalls++
		b.stats.TotalCalls++
		return true, nil

	default:
		return false, nil
	}
}

// recordOutcome commits the post-op transition and returns the event to
// emit, if the state actually changed. Cancellation counts as neither
// success nor failure.
func (b *Breaker) recordOutcome(err error, cancelled bool) *StateChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cancelled {
		if b.state == HalfOpen && b.halfOpenCalls > 0 {
			b.halfOpenCalls--
		}
		b.stats.CancelledCalls++
		return nil
	}

	if err == nil {
		b.stats.SuccessfulCalls++
		switch b.state {
		case Closed:
			b.failureCount = 0
			return nil
		case HalfOpen:
			if b.halfOpenCalls > 0 {
				b.halfOpenCalls--
			}
			b.halfOpenSuccessCount++
			if b.halfOpenSuccessCount >= b.cfg.HalfOpenSuccessThreshold {
				prev := b.state
				b.state = Closed
				b.failureCount = 0
				b.halfOpenSuccessCount = 0
				b.halfOpenCalls = 0
				return &StateChangeEvent{From: prev, To: Closed, Time: b.clock.Now()}
			}
			return nil
		default:
			return nil
		}
	}

	b.stats.FailedCalls++
	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			prev := b.state
			b.state = Open
			b.lastFailureTime = b.clock.Now()
			return &StateChangeEvent{From: prev, To: Open, Time: b.lastFailureTime}
		}
		return nil
	case HalfOpen:
		if b.halfOpenCalls > 0 {
			b.halfOpenCalls--
		}
		prev := b.state
		b.state = Open
		b.lastFailureTime = b.clock.Now()
		b.halfOpenSuccessCount = 0
		return &StateChangeEvent{From: prev, To: Open, Time: b.lastFailureTime}
	default:
		return nil
	}
}
