// Package ratelimit implements two rate limiters: a continuous-refill
// token bucket, and a sliding-window counter backed by a ring-buffer
// admission log.
package ratelimit
