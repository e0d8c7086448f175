package cache

import (
	"context"

	"github.com/joeycumines/resilience/rerr"
)

// inflightCall is the shared future backing GetOrPut's single-flight
// loading: the first caller for a key runs loader and broadcasts its
// result; concurrent callers for the same key await it instead of
// re-running loader.
type inflightCall[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// GetOrPut returns key's cached value if present and unexpired;
// otherwise exactly one concurrent caller runs loader and populates the
// cache, while every other caller for the same key awaits and shares
// that result. A failed load is not cached: the next caller (concurrent
// or subsequent) retries loader independently.
func (c *Cache[K, V]) GetOrPut(ctx context.Context, key K, loader func(context.Context) (V, error)) (V, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	c.mu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return awaitInflight(ctx, call)
	}

	call := &inflightCall[V]{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	val, err := loader(ctx)
	call.val, call.err = val, err

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)

	if err == nil {
		c.Put(key, val)
	}
	return val, err
}

func awaitInflight[V any](ctx context.Context, call *inflightCall[V]) (V, error) {
	var zero V
	select {
	case <-call.done:
		return call.val, call.err
	case <-ctx.Done():
		return zero, rerr.ErrCancelled
	}
}
