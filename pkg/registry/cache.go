package registry

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached value and the time it stops being served.
type Entry[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Cache is a mutex-guarded TTL cache. Failed fetches are never stored.
type Cache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[K]Entry[V]
}

// NewCache returns a cache whose entries live for ttl. A ttl <= 0 disables caching.
func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]Entry[V]),
	}
}

// Get returns the live value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.ExpiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores value for the cache's TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.SetEntry(key, Entry[V]{Value: value, ExpiresAt: c.now().Add(c.ttl)})
}

// SetEntry stores an entry with an explicit expiry. Already-expired entries are dropped.
func (c *Cache[K, V]) SetEntry(key K, e Entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.now().Before(e.ExpiresAt) {
		return
	}
	c.entries[key] = e
}

// GetOrFetch returns the cached value for key, calling fetch on a miss. Concurrent
// misses may fetch more than once; the last successful result is kept.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, key K, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Invalidate drops one key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Entries returns a copy of the live entries.
func (c *Cache[K, V]) Entries() map[K]Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(map[K]Entry[V], len(c.entries))
	for k, e := range c.entries {
		if now.Before(e.ExpiresAt) {
			out[k] = e
		}
	}
	return out
}
