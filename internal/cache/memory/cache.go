// Package memory provides in-process SeenCache and QuotaCounter implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

type entry struct {
	value    int
	expireAt time.Time
}

// Cache is a mutex-guarded map with per-key expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   lead.Clock
}

// New creates an empty Cache. A nil clock uses the wall clock.
func New(clock lead.Clock) *Cache {
	return &Cache{entries: make(map[string]entry), clock: clock}
}

func (c *Cache) now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now().UTC()
}

func (c *Cache) live(key string, now time.Time) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expireAt.IsZero() && !now.Before(e.expireAt) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

// MarkSeen implements lead.SeenCache.
func (c *Cache) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.live(key, now); ok {
		return false, nil
	}
	e := entry{value: 1}
	if ttl > 0 {
		e.expireAt = now.Add(ttl)
	}
	c.entries[key] = e
	return true, nil
}

// Forget implements lead.SeenCache.
func (c *Cache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Increment implements lead.QuotaCounter.
func (c *Cache) Increment(_ context.Context, key string, n int, expireAt time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key, c.now())
	if !ok {
		e = entry{expireAt: expireAt}
	}
	e.value += n
	c.entries[key] = e
	return e.value, nil
}

// Decrement implements lead.QuotaCounter.
func (c *Cache) Decrement(_ context.Context, key string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.live(key, c.now()); ok {
		e.value -= n
		c.entries[key] = e
	}
	return nil
}

// Len returns the number of unexpired keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k := range c.entries {
		if _, ok := c.live(k, now); ok {
			n++
		}
	}
	return n
}
