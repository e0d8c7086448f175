// Package rerr defines the closed error taxonomy shared by every
// resilience primitive. All admission and configuration failures across
// breaker, bulkhead, ratelimit, timelimiter, cache, retry, and saga are
// one of the sentinel kinds below, optionally wrapping a caller-supplied
// or underlying cause via errors.Is/errors.As.
package rerr
