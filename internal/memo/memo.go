// Package memo caches derived analytical results (graphs, critical
// paths, simulations) keyed by plan and validated against the plan's
// content fingerprint. A mutation changes the fingerprint, so stale
// entries miss naturally and age out of the LRU without explicit
// invalidation.
package memo

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the entry capacity when the caller passes none.
const DefaultSize = 256

type entry[V any] struct {
	fingerprint string
	value       V
}

// Cache is a fingerprint-validated LRU. Safe for concurrent use.
type Cache[V any] struct {
	lru *lru.Cache[string, entry[V]]
}

// New creates a cache holding up to size entries.
func New[V any](size int) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	// lru.New only fails on a non-positive size.
	c, _ := lru.New[string, entry[V]](size)
	return &Cache[V]{lru: c}
}

// Get returns the cached value for key if it was stored under the same
// fingerprint. A fingerprint mismatch drops the stale entry.
func (c *Cache[V]) Get(key, fingerprint string) (V, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if e.fingerprint != fingerprint {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value for key under the given fingerprint.
func (c *Cache[V]) Put(key, fingerprint string, value V) {
	c.lru.Add(key, entry[V]{fingerprint: fingerprint, value: value})
}

// Remove drops the entry for key.
func (c *Cache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// GetOrCompute returns the cached value or computes, stores and
// returns a fresh one. Concurrent callers on the same cold key both
// compute; last write wins, which is fine for pure derivations.
func (c *Cache[V]) GetOrCompute(key, fingerprint string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key, fingerprint); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Put(key, fingerprint, v)
	return v, nil
}

// Len returns the live entry count.
func (c *Cache[V]) Len() int { return c.lru.Len() }
