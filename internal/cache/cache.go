// Package cache provides a small size- and TTL-bounded cache for temporary
// results. The clock is injected so eviction is deterministic under test, and
// the cache is owned by whichever component needs it rather than being a
// package-level singleton.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// Cache is a bounded TTL cache with insertion-order eviction.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      Clock

	entries map[string]*list.Element
	order   *list.List // oldest at front
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

// New creates a cache holding at most capacity entries, each fresh for ttl.
// A nil clock uses time.Now.
func New(capacity int, ttl time.Duration, clock Clock) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      clock,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for key, or ok=false when missing or expired.
// Expired entries are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(ent.storedAt) > c.ttl {
		c.removeLocked(elem)
		return nil, false
	}
	return ent.value, true
}

// Set stores value under key, evicting the oldest entry when over capacity.
// Re-setting an existing key refreshes its timestamp and position.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}

	elem := c.order.PushBack(&entry{key: key, value: value, storedAt: c.now()})
	c.entries[key] = elem

	for len(c.entries) > c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Len returns the number of live entries, expired ones included until
// they are touched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.entries, ent.key)
	c.order.Remove(elem)
}
