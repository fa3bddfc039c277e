// ABOUTME: Thread-safe in-process key/value cache with per-key TTLs.
// ABOUTME: Backs gate-state entries, verify-result payloads, rate-limit markers, and log throttles.

package kvcache

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry holds a stored value, its expiry, and its eviction-list element.
type cacheEntry struct {
	value     any
	expiresAt time.Time
	element   *list.Element
}

// Cache is a thread-safe, size-limited key/value cache where every entry
// carries its own TTL. Entries expire lazily on read and are also swept by a
// background goroutine. Uses a doubly-linked list to maintain insertion order
// for O(1) eviction when at capacity.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order (oldest at front)
	maxSize int
	done    chan struct{}
	closed  bool
	now     func() time.Time
}

// New creates a cache bounded to maxSize entries. A background goroutine
// periodically removes expired entries.
func New(maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		maxSize: maxSize,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.cleanup()
	return c
}

// Get returns the value stored under key, or false if the key is absent or
// its TTL has elapsed.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key for the given TTL, replacing any existing entry.
// A non-positive TTL stores nothing.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, exists := c.entries[key]; exists {
		entry.value = value
		entry.expiresAt = now.Add(ttl)
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{
		value:     value,
		expiresAt: now.Add(ttl),
		element:   elem,
	}
}

// SetIfAbsent stores value under key only if no live entry exists. Returns
// true if the value was stored. This is the atomic check used for rate-limit
// markers, where the first writer wins.
func (c *Cache) SetIfAbsent(key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, exists := c.entries[key]; exists && now.Before(entry.expiresAt) {
		return false
	}

	if entry, exists := c.entries[key]; exists {
		// Expired entry: reuse in place.
		entry.value = value
		entry.expiresAt = now.Add(ttl)
		c.order.MoveToBack(entry.element)
		return true
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{
		value:     value,
		expiresAt: now.Add(ttl),
		element:   elem,
	}
	return true
}

// Delete removes the entry under key, if any.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.order.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically sweeping expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
