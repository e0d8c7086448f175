// Package bulkhead implements a concurrency-limiting admission gate: a
// concurrency limit (MaxConcurrentCalls) backed by
// golang.org/x/sync/semaphore, plus a bounded FIFO wait queue
// (MaxWaitingCalls) with an optional per-call MaxWaitDuration.
package bulkhead
