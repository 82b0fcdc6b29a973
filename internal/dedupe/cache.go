// ABOUTME: Thread-safe TTL cache over gift-wrap event ids
// ABOUTME: Skips repeat unwrap work when multiple relays deliver the same wrap

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry records when a wrap id was seen and where it sits in the eviction
// order.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a TTL-based, size-limited set of seen wrap ids. Eviction is
// O(1) via an insertion-order linked list. Safe for concurrent use,
// although the inbound pipeline feeds it from a single goroutine.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // wrap ids, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache. A background goroutine sweeps expired entries until
// Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen atomically checks whether id was seen within the TTL and marks it
// if not. Returns true for a duplicate.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[id]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.mark(id)
	return false
}

// Len returns the number of tracked ids, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// mark records id, evicting the oldest entry at capacity. Caller holds mu.
func (c *Cache) mark(id string) {
	now := time.Now()

	if e, ok := c.seen[id]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			old, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, old)
		}
	}

	c.seen[id] = &entry{
		seenAt:  now,
		element: c.order.PushBack(id),
	}
}

// sweep periodically removes expired entries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for id, e := range c.seen {
				if now.Sub(e.seenAt) > c.ttl {
					c.order.Remove(e.element)
					delete(c.seen, id)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
