package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/rlog"
)

// TokenBucketConfig configures a TokenBucket.
type TokenBucketConfig struct {
	// BurstCapacity is the maximum number of tokens the bucket can hold.
	// Must be > 0.
	BurstCapacity float64
	// PermitsPerSecond is the continuous refill rate. Must be > 0.
	PermitsPerSecond float64

	Clock     clock.Clock
	Logger    rlog.Logger
	Component string
}

func (c TokenBucketConfig) validate() error {
	if c.BurstCapacity <= 0 {
		return rerr.NewInvalidArgument("ratelimit: BurstCapacity must be > 0")
	}
	if c.PermitsPerSecond <= 0 {
		return rerr.NewInvalidArgument("ratelimit: PermitsPerSecond must be > 0")
	}
	return nil
}

// TokenBucketStatistics are the monotone counters tracked across every
// admission request.
type TokenBucketStatistics struct {
	TotalRequests    uint64
	AcceptedRequests uint64
	RejectedRequests uint64
}

// TokenBucket is a continuous-refill token bucket rate limiter. Its zero
// value is not usable; construct with NewTokenBucket.
type TokenBucket struct {
	cfg   TokenBucketConfig
	clock clock.Clock
	bus   *event.Bus[Event]

	mu             sync.Mutex
	tokens         float64
	lastRefillTime time.Time
	stats          TokenBucketStatistics
}

// NewTokenBucket validates cfg and constructs a TokenBucket starting full.
func NewTokenBucket(cfg TokenBucketConfig) (*TokenBucket, error) {
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
	return &TokenBucket{
		cfg:            cfg,
		clock:          c,
		bus:            event.New[Event](l, component),
		tokens:         cfg.BurstCapacity,
		lastRefillTime: c.Now(),
	}, nil
}

// AddListener registers fn to observe every admission decision this
// bucket makes. Returns an ID accepted by RemoveListener.
func (tb *TokenBucket) AddListener(fn func(Event)) event.ListenerID {
	return tb.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener.
func (tb *TokenBucket) RemoveListener(id event.ListenerID) bool {
	return tb.bus.Remove(id)
}

// refillLocked adds elapsed*PermitsPerSecond tokens, capped at
// BurstCapacity. Caller must hold tb.mu.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	if elapsed > 0 {
		tb.tokens = math.Min(tb.cfg.BurstCapacity, tb.tokens+elapsed*tb.cfg.PermitsPerSecond)
		tb.lastRefillTime = now
	}
}

// TryAcquire performs one atomic refill-then-deduct admission check for n
// permits, without blocking. Returns rerr.ErrRateLimitExceeded if tokens
// are insufficient, or an *rerr.InvalidArgument if n exceeds the bucket's
// BurstCapacity.
func (tb *TokenBucket) TryAcquire(n float64) error {
	if n > tb.cfg.BurstCapacity {
		return rerr.NewInvalidArgument("ratelimit: requested permits exceed BurstCapacity")
	}

	tb.mu.Lock()
	tb.refillLocked(tb.clock.Now())
	tb.stats.TotalRequests++

	if tb.tokens >= n {
		tb.tokens -= n
		tb.stats.AcceptedRequests++
		tb.mu.Unlock()
		tb.bus.Emit(Event{Kind: Accepted, Permits: n})
		return nil
	}
	tb.stats.RejectedRequests++
	tb.mu.Unlock()
	tb.bus.Emit(Event{Kind: Rejected, Permits: n})
	return rerr.ErrRateLimitExceeded
}

// Acquire blocks until n permits are available or ctx is cancelled,
// sleeping and retrying the admission check.
func (tb *TokenBucket) Acquire(ctx context.Context, n float64) error {
	if n > tb.cfg.BurstCapacity {
		return rerr.NewInvalidArgument("ratelimit: requested permits exceed BurstCapacity")
	}

	for {
		if err := ctx.Err(); err != nil {
			return rerr.ErrCancelled
		}

		tb.mu.Lock()
		tb.refillLocked(tb.clock.Now())
		tb.stats.TotalRequests++
		if tb.tokens >= n {
			tb.tokens -= n
			tb.stats.AcceptedRequests++
			tb.mu.Unlock()
			tb.bus.Emit(Event{Kind: Accepted, Permits: n})
			return nil
		}
		tb.stats.RejectedRequests++
		tb.mu.Unlock()

		wait := time.Duration(n / tb.cfg.PermitsPerSecond * float64(time.Second))
		if err := tb.clock.Sleep(ctx, wait); err != nil {
			return rerr.ErrCancelled
		}
	}
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (tb *TokenBucket) Statistics() TokenBucketStatistics {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.stats
}

// ResetStatistics zeroes every counter.
func (tb *TokenBucket) ResetStatistics() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.stats = TokenBucketStatistics{}
}

// AvailableTokens reports the current token count after an on-demand
// refill, for introspection/testing.
func (tb *TokenBucket) AvailableTokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(tb.clock.Now())
	return tb.tokens
}
