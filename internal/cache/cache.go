// Package cache provides a time-boxed in-memory cache keyed by string.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache keeps values for a fixed ttl measured on an injected clock.
// Keys are compared literally.
type Cache[V any] struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]entry[V]
}

// New creates a cache whose entries expire ttl after they were stored.
func New[V any](clock clockwork.Clock, ttl time.Duration) *Cache[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[V]{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value stored under key if it is younger than the ttl.
// An expired entry is dropped.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.clock.Since(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, stamped with the current clock time.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now()}
}

// Age reports how long ago key was stored, if it is present and fresh.
func (c *Cache[V]) Age(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	age := c.clock.Since(e.storedAt)
	if age >= c.ttl {
		return 0, false
	}
	return age, true
}

// Len returns the number of stored entries, including ones that expired but
// have not been looked up since.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the configured time-to-live.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Clock returns the clock entries are stamped with.
func (c *Cache[V]) Clock() clockwork.Clock {
	return c.clock
}
