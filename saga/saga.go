package saga

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/resilience/clock"
	"github.com/joeycumines/resilience/event"
	"github.com/joeycumines/resilience/rerr"
	"github.com/joeycumines/resilience/rlog"
)

// Step is one forward/compensate pair in a saga. Results are carried as
// any since consecutive steps in a saga may legitimately produce
// unrelated result types; Compensate is nil for steps with no undo
// action, and is simply skipped with no error.
type Step struct {
	Name       string
	Forward    func(ctx context.Context) (any, error)
	Compensate func(ctx context.Context, result any) error
}

// ExecutedStep records one step that completed its forward action,
// carrying the result later passed to its own Compensate.
type ExecutedStep struct {
	Name   string
	Result any

	compensate func(ctx context.Context, result any) error
}

// Config configures a Saga.
type Config struct {
	// ContinueOnCompensationFailure controls whether a failed
	// compensation stops the rest of the reverse-order sweep. The
	// intended default is true; construct via DefaultConfig to get it,
	// since Go's zero value for bool is false.
	ContinueOnCompensationFailure bool
	// CompensationTimeout, if > 0, bounds the whole compensation phase;
	// steps not yet started when it fires are recorded as Abandoned.
	CompensationTimeout time.Duration

	Clock     clock.Clock
	Logger    rlog.Logger
	Component string
}

// Outcome is the result of one Run, win or lose.
type Outcome struct {
	RunID    string
	Success  bool
	Result   any
	Err      error
	Duration time.Duration

	ExecutedSteps      []ExecutedStep
	CompensatedSteps   []ExecutedStep
	CompensationErrors []*rerr.CompensationError
}

// EventKind classifies a saga lifecycle event.
type EventKind int

const (
	// StepExecuted fires after a step's forward action succeeds.
	StepExecuted EventKind = iota
	// StepFailed fires when a step's forward action fails, before
	// compensation begins.
	StepFailed
	// StepCompensated fires after a step's compensation succeeds.
	StepCompensated
	// CompensationFailed fires when a step's compensation fails or is
	// abandoned.
	CompensationFailed
)

// Event is published on a Saga's listener bus as each run progresses.
type Event struct {
	Kind     EventKind
	RunID    string
	StepName string
	Err      error
}

// Statistics are the monotone counters a Saga tracks across every Run
// made through it (including runs launched via RunAll).
type Statistics struct {
	TotalRuns            uint64
	SuccessfulRuns       uint64
	FailedRuns           uint64
	CompensatedSteps     uint64
	CompensationFailures uint64
}

// Saga runs ordered steps with compensating rollback. Its zero value is
// not usable; construct with New.
type Saga struct {
	cfg   Config
	clock clock.Clock
	log   rlog.Logger
	bus   *event.Bus[Event]

	mu    sync.Mutex
	stats Statistics
}

// DefaultConfig returns a Config with ContinueOnCompensationFailure set
// to true.
func DefaultConfig() Config {
	return Config{ContinueOnCompensationFailure: true}
}

// New constructs a Saga from cfg, honoring every field literally.
func New(cfg Config) *Saga {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = rlog.NoOp()
	}
	component := cfg.Component
	if component == "" {
		component = "saga"
	}
	return &Saga{
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Logger,
		bus:   event.New[Event](cfg.Logger, component),
	}
}

// AddListener registers fn to observe every Event emitted by runs of s.
// Returns an ID accepted by RemoveListener.
func (s *Saga) AddListener(fn func(Event)) event.ListenerID {
	return s.bus.Add(fn)
}

// RemoveListener unregisters a listener added via AddListener.
func (s *Saga) RemoveListener(id event.ListenerID) bool {
	return s.bus.Remove(id)
}

// Statistics returns a snapshot of the counters accumulated since
// construction or the last ResetStatistics call.
func (s *Saga) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ResetStatistics zeroes every counter.
func (s *Saga) ResetStatistics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Statistics{}
}
