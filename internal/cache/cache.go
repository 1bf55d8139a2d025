// Package cache holds values for a bounded time.
package cache

import (
	"sync"
	"time"
)

// TTL constants for controller data
const (
	// Topology - controllers, virtual drives and slot membership
	TTLTopology = 30 * time.Second

	// State - drive state, locate state
	TTLState = 5 * time.Second
)

// Entry holds a cached value with expiration
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
	FetchedAt time.Time
}

func (e *Entry[V]) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache is a thread-safe TTL cache keyed by string.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]
	now     func() time.Time
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*Entry[V]),
		now:     time.Now,
	}
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(c.now()) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores value for ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		FetchedAt: now,
	}
}

// GetOrFetch returns the live value for key, or calls fetch and stores its
// result for ttl. Errors are not cached.
func (c *Cache[V]) GetOrFetch(key string, ttl time.Duration, fetch func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Delete removes an entry from cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries from cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Cleanup removes expired entries
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.entries {
		if v.expired(now) {
			delete(c.entries, k)
		}
	}
}
