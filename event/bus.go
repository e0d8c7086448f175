package event

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/resilience/rlog"
)

// ListenerID identifies a registered listener, for removal. It's never
// reused within the lifetime of a Bus.
type ListenerID uint64

// Bus fans a stream of typed events T out to registered listeners. Add
// and Remove are safe under concurrent Emit; Emit always dispatches to a
// fixed snapshot of the listeners registered at the moment it was called.
type Bus[T any] struct {
	logger    rlog.Logger
	component string

	nextID atomic.Uint64

	mu        sync.Mutex
	listeners []entry[T]
}

type entry[T any] struct {
	id ListenerID
	fn func(T)
}

// New creates a Bus that logs listener panics/errors as the given
// component, via logger (rlog.NoOp() is fine if the caller doesn't care).
func New[T any](logger rlog.Logger, component string) *Bus[T] {
	if logger == nil {
		logger = rlog.NoOp()
	}
	return &Bus[T]{logger: logger, component: component}
}

// Add registers fn, returning an ID that Remove accepts later. Safe to
// call concurrently with Emit.
func (b *Bus[T]) Add(fn func(T)) ListenerID {
	id := ListenerID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	// copy-on-write: Emit's snapshot must never observe a mutation of an
	// in-flight slice.
	next := make([]entry[T], len(b.listeners), len(b.listeners)+1)
	copy(next, b.listeners)
	b.listeners = append(next, entry[T]{id: id, fn: fn})
	return id
}

// Remove unregisters the listener with the given id. It is idempotent:
// removing an id that was never added, or was already removed, is a
// no-op and returns false.
func (b *Bus[T]) Remove(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.listeners {
		if e.id == id {
			next := make([]entry[T], 0, len(b.listeners)-1)
			next = append(next, b.listeners[:i]...)
			next = append(next, b.listeners[i+1:]...)
			b.listeners = next
			return true
		}
	}
	return false
}

// Emit dispatches evt to every listener registered at the time Emit was
// called. Callers must invoke Emit outside of any primitive critical
// section. A listener that panics is recovered, logged, and isolated:
// remaining listeners still run.
func (b *Bus[T]) Emit(evt T) {
	b.mu.Lock()
	snapshot := b.listeners
	b.mu.Unlock()

	for _, e := range snapshot {
		b.dispatch(e, evt)
	}
}

func (b *Bus[T]) dispatch(e entry[T], evt T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Log(rlog.Entry{
				Level:     rlog.LevelWarn,
				Component: b.component,
				Message:   "listener panicked, isolating",
				Fields:    rlog.Fields{"listener_id": e.id, "panic": r},
			})
		}
	}()
	e.fn(evt)
}

// Len reports the current listener count, for tests/introspection.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
