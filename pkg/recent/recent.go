// Package recent provides a fixed-capacity key/value store that evicts the
// oldest-inserted entry when full.
//
// Reads never change eviction order and neither does overwriting an existing
// key: only the first insertion of a key determines its position.
package recent

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 10

// slot boxes a value so overwrites can happen in place without touching the
// underlying recency list.
type slot[V any] struct {
	value V
}

// Cache is a bounded insertion-order cache.
//
// Cache is not safe for concurrent use. Owners shared across goroutines must
// provide their own locking.
type Cache[K comparable, V any] struct {
	entries *lru.LRU[K, *slot[V]]
	size    int
}

// New creates a cache holding at most size entries.
func New[K comparable, V any](size int) *Cache[K, V] {
	if size <= 0 {
		size = DefaultCapacity
	}
	entries, err := lru.NewLRU[K, *slot[V]](size, nil)
	if err != nil {
		// Only returned for non-positive sizes, which are excluded above.
		panic(fmt.Sprintf("recent: %v", err))
	}
	return &Cache[K, V]{entries: entries, size: size}
}

// Put stores v under k. A new key evicts the oldest entry when the cache is
// full; an existing key keeps its position.
func (c *Cache[K, V]) Put(k K, v V) {
	if s, ok := c.entries.Peek(k); ok {
		s.value = v
		return
	}
	c.entries.Add(k, &slot[V]{value: v})
}

// Get returns the value stored under k.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	s, ok := c.entries.Peek(k)
	if !ok {
		var zero V
		return zero, false
	}
	return s.value, true
}

// Contains reports whether k is present.
func (c *Cache[K, V]) Contains(k K) bool {
	return c.entries.Contains(k)
}

// Remove deletes k if present.
func (c *Cache[K, V]) Remove(k K) {
	c.entries.Remove(k)
}

// Keys returns the keys from oldest to newest.
func (c *Cache[K, V]) Keys() []K {
	return c.entries.Keys()
}

// Len returns the number of stored entries.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// Cap returns the maximum number of entries.
func (c *Cache[K, V]) Cap() int {
	return c.size
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.entries.Purge()
}
