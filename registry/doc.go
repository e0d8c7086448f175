// Package registry implements a named-instance registry: a string name
// maps to at most one instance of T, created lazily and idempotently via
// GetOrCreate, and removable via Remove. Locking is a single
// mutex-guarded map plus a generation id per entry, used here to give
// callers a stable handle on instance identity across concurrent
// GetOrCreate/Remove calls.
package registry
