package ratelimit

import (
	"sync"
	"time"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/ring"
	"github.com/joeycumines/resilience/rlog"
)

// SlidingWindowConfig configures a SlidingWindow.
type SlidingWindowConfig struct {
	// WindowDuration is the trailing interval admission timestamps are
	// counted over. Must be > 0.
	WindowDuration time.Duration
	// MaxRequests is the maximum number of admissions allowed within any
	// WindowDuration-wide window. Must be > 0.
	MaxRequests int

	Clock     clock.Clock
	Logger    rlog.Logger
	Component string
}

func (c SlidingWindowConfig) validate() error {
	if c.WindowDuration <= 0 {
		return rerr.NewInvalidArgument("ratelimit: WindowDuration must be > 0")
	}
	if c.MaxRequests <= 0 {
		return rerr.NewInvalidArgument("ratelimit: MaxRequests must be > 0")
	}
	return nil
}

// SlidingWindowStatistics are the monotone counters tracked across every
// admission request.
type SlidingWindowStatistics struct {
	TotalRequests    uint64
	AcceptedRequests uint64
	RejectedRequests uint64
}

// SlidingWindow maintains an ordered sequence of admission timestamps,
// pruning entries outside the trailing window on every check. Its zero
// value is not usable; construct with NewSlidingWindow.
type SlidingWindow struct {
	cfg   SlidingWindowConfig
	clock clock.Clock
	bus   *event.Bus[Event]

	mu     sync.Mutex
	events *ring.Buffer[int64]
	stats  SlidingWindowStatistics
}

// NewSlidingWindow validates cfg and constructs a SlidingWindow.
func NewSlidingWindow(cfg SlidingWindowConfig) (*SlidingWindow, error) {
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
		component = "ratelimit"
	}
	return &SlidingWindow{
		cfg:    cfg,
		clock:  c,
		bus:    event.New[Event](l, component),
		events: ring.New[int64](8),
	}, nil
}

// AddListener registers fn to observe every admission decision this
// window makes. Returns an ID accepted by RemoveListener.
func (sw *SlidingWindow) AddListener(fn func(Event)) event.ListenerID {
	return sw.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener.
func (sw *SlidingWindow) RemoveListener(id event.ListenerID) bool {
	return sw.bus.Remove(id)
}

// TryAcquire performs prune-then-test-then-insert as one atomic action,
// admitting a single event.
func (sw *SlidingWindow) TryAcquire() error {
	sw.mu.Lock()

	now := sw.clock.Now()
	nowNano := now.UnixNano()
	// +1 excludes an event exactly at the window edge: the window is
	// (now-WindowDuration, now], open at the lower bound.
	threshold := now.Add(-sw.cfg.WindowDuration).UnixNano() + 1

	sw.events.RemoveBefore(sw.events.Search(threshold))

	sw.stats.TotalRequests++
	if sw.events.Len() < sw.cfg.MaxRequests {
		sw.events.Insert(sw.events.Search(nowNano), nowNano)
		sw.stats.AcceptedRequests++
		sw.mu.Unlock()
		sw.bus.Emit(Event{Kind: Accepted, Permits: 1})
		return nil
	}

	sw.stats.RejectedRequests++
	sw.mu.Unlock()
	sw.bus.Emit(Event{Kind: Rejected, Permits: 1})
	return rerr.ErrRateLimitExceeded
}

// Remaining reports how many more admissions are currently possible
// within the trailing window, after pruning expired entries.
func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	threshold := now.Add(-sw.cfg.WindowDuration).UnixNano() + 1
	sw.events.RemoveBefore(sw.events.Search(threshold))

	remaining := sw.cfg.MaxRequests - sw.events.Len()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (sw *SlidingWindow) Statistics() SlidingWindowStatistics {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.stats
}

// ResetStatistics zeroes every counter, leaving the event log untouched.
func (sw *SlidingWindow) ResetStatistics() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.stats = SlidingWindowStatistics{}
}
