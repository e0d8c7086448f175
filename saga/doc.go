// Package saga implements a saga engine: an ordered list of steps
// executed forward, with reverse-order compensation of already-completed
// steps on failure, plus a parallel coordinator for running many sagas
// concurrently.
package saga
