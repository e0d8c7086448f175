package registry

import (
	"sync"

	"github.com/google/uuid"
)

// entry pairs a registered value with the id stamped onto it at creation,
// so callers can correlate log lines across primitives sharing one
// registry.
type entry[T any] struct {
	id    string
	value T
}

// Registry maps a string name to a single instance of T. The zero value
// is ready to use.
type Registry[T any] struct {
	mu    sync.Mutex
	items map[string]*entry[T]
}

// New constructs an empty Registry. Present for symmetry with the rest
// of the module's constructors; &Registry[T]{} works identically.
func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// GetOrCreate returns the instance registered under name, creating it
// with builder if no instance is currently registered under name.
// Idempotent on name: concurrent callers racing the same unseen name all
// observe the single winner's instance, and builder runs at most once per
// name until that name is removed; after Remove, the next GetOrCreate
// builds a new instance.
func (r *Registry[T]) GetOrCreate(name string, builder func() T) T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.items == nil {
		r.items = make(map[string]*entry[T])
	}
	if e, ok := r.items[name]; ok {
		return e.value
	}

	v := builder()
	r.items[name] = &entry[T]{id: uuid.NewString(), value: v}
	return v
}

// Get returns the instance registered under name, if any, without
// creating one.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[name]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// InstanceID returns the correlation id stamped onto name's entry at
// creation time, if it exists.
func (r *Registry[T]) InstanceID(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[name]
	if !ok {
		return "", false
	}
	return e.id, true
}

// Remove deletes and returns the instance registered under name, if any.
func (r *Registry[T]) Remove(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[name]
	if !ok {
		var zero T
		return zero, false
	}
	delete(r.items, name)
	return e.value, true
}

// Names returns every currently registered name, in no particular order.
func (r *Registry[T]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	return names
}

// Len returns the number of currently registered instances.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
