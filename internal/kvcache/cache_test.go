// ABOUTME: Tests for the TTL key/value cache shared across gate requests.
// ABOUTME: Validates expiry, replacement, size-limited eviction, SetIfAbsent, and concurrency safety.

package kvcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetMissing(t *testing.T) {
	c := New(100)
	defer c.Close()

	_, ok := c.Get("never-set")
	assert.False(t, ok)
}

func TestCache_SetGet(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("k", "v", 5*time.Minute)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_Expiry(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("k", 42, 10*time.Millisecond)

	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_SetReplaces(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("k", "old", 5*time.Minute)
	c.Set("k", "new", 5*time.Minute)

	got, _ := c.Get("k")
	assert.Equal(t, "new", got)
}

func TestCache_ZeroTTLIgnored(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("k", "v", 0)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(2)
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_SetIfAbsent(t *testing.T) {
	c := New(100)
	defer c.Close()

	assert.True(t, c.SetIfAbsent("marker", 1, time.Minute))
	assert.False(t, c.SetIfAbsent("marker", 2, time.Minute), "live entry must win")

	got, _ := c.Get("marker")
	assert.Equal(t, 1, got)
}

func TestCache_SetIfAbsent_ExpiredEntry(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("marker", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.True(t, c.SetIfAbsent("marker", 2, time.Minute), "expired entry should not block")

	got, _ := c.Get("marker")
	assert.Equal(t, 2, got)
}

func TestCache_Delete(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("k", "v", time.Minute)
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)

	// Deleting a missing key is a no-op.
	c.Delete("absent")
}

func TestCache_RunCleanup(t *testing.T) {
	c := New(100)
	defer c.Close()

	c.Set("stale", 1, 5*time.Millisecond)
	c.Set("live", 2, time.Minute)
	time.Sleep(10 * time.Millisecond)

	c.runCleanup()

	c.mu.RLock()
	_, staleExists := c.entries["stale"]
	_, liveExists := c.entries["live"]
	c.mu.RUnlock()

	assert.False(t, staleExists)
	assert.True(t, liveExists)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				c.Set(key, j, time.Minute)
				c.Get(key)
				c.SetIfAbsent(key, j, time.Minute)
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(10)
	c.Close()
	c.Close()
}
