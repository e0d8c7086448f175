// Package ring implements a growable, sorted, ring-buffer-backed sequence
// of ordered values, supporting binary search, indexed insertion, and
// bulk removal of a sorted prefix. It underlies the sliding-window rate
// limiter's pruning and insertion of admission timestamps.
package ring
