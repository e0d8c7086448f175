package timelimiter

import (
	"sync"
	"time"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/rlog"
)

// Config configures a TimeLimiter.
type Config struct {
	// DefaultTimeout is used whenever a call doesn't supply its own
	// per-call override. Must be > 0.
	DefaultTimeout time.Duration

	Clock     clock.Clock
	Logger    rlog.Logger
	Component string
}

func (c Config) validate() error {
	if c.DefaultTimeout <= 0 {
		return rerr.NewInvalidArgument("timelimiter: DefaultTimeout must be > 0")
	}
	return nil
}

// EventKind classifies a TimeLimiter outcome event.
type EventKind int

const (
	Success EventKind = iota
	Timeout
	Failure
)

// Event is published on a TimeLimiter's listener bus after every race.
type Event struct {
	Kind     EventKind
	Duration time.Duration
	Err      error
}

// Statistics are the monotone counters tracked across every race.
type Statistics struct {
	TotalCalls      uint64
	SuccessfulCalls uint64
	TimedOutCalls   uint64
	FailedCalls     uint64
	TimedOutTotal   time.Duration
}

// TimeLimiter races guarded operations against a deadline. Its zero value
// is not usable; construct with New.
type TimeLimiter struct {
	cfg   Config
	clock clock.Clock
	bus   *event.Bus[Event]

	mu    sync.Mutex
	stats Statistics
}

// New validates cfg and constructs a TimeLimiter.
func New(cfg Config) (*TimeLimiter, error) {
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
		component = "timelimiter"
	}
	return &TimeLimiter{
		cfg:   cfg,
		clock: c,
		bus:   event.New[Event](l, component),
	}, nil
}

// AddListener registers fn to observe every Event this TimeLimiter emits.
func (tl *TimeLimiter) AddListener(fn func(Event)) event.ListenerID {
	return tl.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener.
func (tl *TimeLimiter) RemoveListener(id event.ListenerID) bool {
	return tl.bus.Remove(id)
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (tl *TimeLimiter) Statistics() Statistics {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.stats
}

// ResetStatistics zeroes every counter.
func (tl *TimeLimiter) ResetStatistics() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.stats = Statistics{}
}

func (tl *TimeLimiter) effectiveTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return tl.cfg.DefaultTimeout
}

func (tl *TimeLimiter) recordSuccess(dur time.Duration) {
	tl.mu.Lock()
	tl.stats.TotalCalls++
	tl.stats.SuccessfulCalls++
	tl.mu.Unlock()
	tl.bus.Emit(Event{Kind: Success, Duration: dur})
}

func (tl *TimeLimiter) recordTimeout(dur time.Duration) {
	tl.mu.Lock()
	tl.stats.TotalCalls++
	tl.stats.TimedOutCalls++
	tl.stats.TimedOutTotal += dur
	tl.mu.Unlock()
	tl.bus.Emit(Event{Kind: Timeout, Duration: dur, Err: rerr.ErrTimedOut})
}

func (tl *TimeLimiter) recordFailure(dur time.Duration, err error) {
	tl.mu.Lock()
	tl.stats.TotalCalls++
	tl.stats.FailedCalls++
	tl.mu.Unlock()
	tl.bus.Emit(Event{Kind: Failure, Duration: dur, Err: err})
}
