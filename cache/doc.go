// Package cache implements a bounded, TTL-scoped, single-flighted Cache:
// LRU/LFU/FIFO eviction, lazy TTL expiry on get, and a GetOrPut
// single-flight loader keyed per entry.
package cache
