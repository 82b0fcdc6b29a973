// ABOUTME: Tests for the wrap-id dedupe cache
// ABOUTME: Covers check-and-mark semantics, TTL expiry, and size eviction

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_ChecksAndMarks(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("wrap-1"), "first sighting is not a duplicate")
	assert.True(t, c.Seen("wrap-1"))
	assert.False(t, c.Seen("wrap-2"))
	assert.Equal(t, 2, c.Len())
}

func TestSeen_TTLExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("wrap-1"))
	assert.True(t, c.Seen("wrap-1"))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.Seen("wrap-1"), "an expired id is fresh again")
}

func TestSeen_SizeEviction(t *testing.T) {
	c := New(time.Hour, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Seen(fmt.Sprintf("wrap-%d", i))
	}
	assert.Equal(t, 3, c.Len())

	// Inserting a fourth evicts the oldest.
	c.Seen("wrap-3")
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("wrap-0"), "oldest entry was evicted")
}

func TestSeen_RefreshMovesToBack(t *testing.T) {
	c := New(time.Hour, 3)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")
	// Touch "a" so "b" becomes the eviction candidate.
	c.Seen("a")
	c.Seen("d")

	assert.True(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
}

func TestSeen_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	duplicates := make([]int, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if c.Seen(fmt.Sprintf("wrap-%d", i)) {
					duplicates[g]++
				}
			}
		}(g)
	}
	wg.Wait()

	// Each id is marked exactly once across all goroutines.
	total := 0
	for _, d := range duplicates {
		total += d
	}
	assert.Equal(t, 700, total)
	assert.Equal(t, 100, c.Len())
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
