// ABOUTME: Tests for the generic TTL cache used for event dedupe and pending keyboards.
// ABOUTME: Validates TTL expiration, size limits, eviction order, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetMissing(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	v, ok := cache.Get("never-put")
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestCache_PutGet(t *testing.T) {
	cache := New[[]string](5*time.Minute, 100)
	defer cache.Close()

	cache.Put("!room:@alice", []string{"create_agent", "list_agents"})

	v, ok := cache.Get("!room:@alice")
	require.True(t, ok)
	assert.Equal(t, []string{"create_agent", "list_agents"}, v)
}

func TestCache_PutReplacesValue(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	cache.Put("k", 1)
	cache.Put("k", 2)

	v, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Delete(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	cache.Put("k", 1)
	cache.Delete("k")
	cache.Delete("never-there")

	_, ok := cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_Expired(t *testing.T) {
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	cache.Put("expiring-key", 7)
	_, ok := cache.Get("expiring-key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get("expiring-key")
	assert.False(t, ok)
}

func TestCache_PutRefreshesTimestamp(t *testing.T) {
	cache := New[int](50*time.Millisecond, 100)
	defer cache.Close()

	cache.Put("refresh-key", 1)
	time.Sleep(30 * time.Millisecond)

	cache.Put("refresh-key", 1)
	time.Sleep(30 * time.Millisecond)

	// Would be past the original TTL
	_, ok := cache.Get("refresh-key")
	assert.True(t, ok)
}

func TestCache_EvictionOrder(t *testing.T) {
	cache := NewSeen(5*time.Minute, 3)
	defer cache.Close()

	cache.Put("first", struct{}{})
	cache.Put("second", struct{}{})
	cache.Put("third", struct{}{})

	cache.Put("fourth", struct{}{})

	_, ok := cache.Get("first")
	assert.False(t, ok, "first should be evicted")
	for _, k := range []string{"second", "third", "fourth"} {
		_, ok := cache.Get(k)
		assert.True(t, ok, k)
	}

	// Refreshing "second" moves it to the back, so "third" goes next
	cache.Put("second", struct{}{})
	cache.Put("fifth", struct{}{})

	_, ok = cache.Get("third")
	assert.False(t, ok, "third should be evicted")
	_, ok = cache.Get("second")
	assert.True(t, ok)
}

func TestCache_Cleanup(t *testing.T) {
	// The background ticker runs every minute; drive runCleanup directly
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	cache.Put("cleanup-1", 1)
	cache.Put("cleanup-2", 2)
	cache.Put("cleanup-3", 3)

	time.Sleep(20 * time.Millisecond)
	cache.runCleanup()

	assert.Equal(t, 0, cache.Len(), "cleanup should remove expired entries from map")
	assert.Equal(t, 0, cache.order.Len(), "cleanup should remove expired entries from list")
}

func TestCache_CheckAndMark(t *testing.T) {
	cache := NewSeen(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("$event1"), "first sighting is new")
	assert.True(t, cache.CheckAndMark("$event1"), "second sighting is a duplicate")
	assert.False(t, cache.CheckAndMark("$event2"))
}

func TestCache_CheckAndMark_Expired(t *testing.T) {
	cache := NewSeen(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("expiring-key"))
	assert.True(t, cache.CheckAndMark("expiring-key"), "should be seen before expiry")

	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.CheckAndMark("expiring-key"), "should not be seen after expiry")
}

func TestCache_CheckAndMark_Atomic(t *testing.T) {
	cache := NewSeen(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var winners int32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark("contested-key") {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), winners,
		"exactly one goroutine should win the race for CheckAndMark")
}

func TestCache_Concurrent(t *testing.T) {
	cache := New[int](5*time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 100
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := fmt.Sprintf("key-%d-%d", id%26, j%10)
				cache.Put(key, j)
				cache.Get(key)
				if j%7 == 0 {
					cache.Delete(key)
				}
			}
		}(i)
	}

	wg.Wait()

	cache.Put("final-key", 1)
	_, ok := cache.Get("final-key")
	assert.True(t, ok)
}

func TestCache_Close(t *testing.T) {
	cache := New[int](5*time.Minute, 100)

	cache.Put("before-close", 1)

	cache.Close()
	// Multiple closes should not panic
	cache.Close()
}
