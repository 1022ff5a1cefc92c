// Package cache provides the in-memory cache of parsed per-year datasets.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Metrics holds cache statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
}

// LRU is a bounded least-recently-used cache. Every entry carries the
// fingerprint of the source it was built from; a lookup with a different
// fingerprint is a miss and drops the stale entry.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	items    map[string]*list.Element
	metrics  Metrics
}

type lruEntry[V any] struct {
	key         string
	fingerprint string
	value       V
}

// NewLRU creates a cache holding at most capacity entries. A capacity of
// zero disables caching.
func NewLRU[V any](capacity int) *LRU[V] {
	if capacity < 0 {
		capacity = 0
	}
	return &LRU[V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the value cached under key if it was built from fingerprint.
func (c *LRU[V]) Get(key, fingerprint string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.metrics.Misses.Add(1)
		return zero, false
	}
	e := el.Value.(*lruEntry[V])
	if e.fingerprint != fingerprint {
		c.removeElement(el)
		c.metrics.Misses.Add(1)
		return zero, false
	}
	c.order.MoveToFront(el)
	c.metrics.Hits.Add(1)
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[V]) Put(key, fingerprint string, value V) {
	if c.capacity == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*lruEntry[V])
		e.fingerprint = fingerprint
		e.value = value
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, fingerprint: fingerprint, value: value})
	c.metrics.Entries.Add(1)

	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
		c.metrics.Evictions.Add(1)
	}
}

// Invalidate drops key from the cache.
func (c *LRU[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns current cache metrics.
func (c *LRU[V]) Stats() (hits, misses, evictions, entries int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(), c.metrics.Evictions.Load(),
		c.metrics.Entries.Load()
}

// HitRate returns the cache hit rate as a percentage.
func (c *LRU[V]) HitRate() float64 {
	hits := c.metrics.Hits.Load()
	total := hits + c.metrics.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func (c *LRU[V]) removeElement(el *list.Element) {
	e := el.Value.(*lruEntry[V])
	c.order.Remove(el)
	delete(c.items, e.key)
	c.metrics.Entries.Add(-1)
}
