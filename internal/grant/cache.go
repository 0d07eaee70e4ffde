// Package grant remembers recent successful verifications per chat so a
// user is not re-challenged for every protected action inside a short
// grace window.
package grant

import (
	"sync"
	"time"
)

// Cache holds time-boxed verification grants keyed by chat. An expired
// grant is indistinguishable from an absent one; eviction happens lazily
// on read.
type Cache struct {
	mu     sync.Mutex
	grants map[int64]time.Time
	ttl    time.Duration

	now func() time.Time
}

// NewCache builds a cache with the given grant lifetime.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &Cache{
		grants: make(map[int64]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetVerified creates or replaces the grant for a chat, restarting the window.
func (c *Cache) SetVerified(chatID int64) {
	c.mu.Lock()
	c.grants[chatID] = c.now().Add(c.ttl)
	c.mu.Unlock()
}

// IsVerified reports whether the chat holds a live grant, evicting an
// expired one as a side effect.
func (c *Cache) IsVerified(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt, ok := c.grants[chatID]
	if !ok {
		return false
	}
	if c.now().After(expiresAt) {
		delete(c.grants, chatID)
		return false
	}
	return true
}

// Revoke drops the grant for a chat, if any.
func (c *Cache) Revoke(chatID int64) {
	c.mu.Lock()
	delete(c.grants, chatID)
	c.mu.Unlock()
}

// Sweep removes expired grants and returns the number evicted.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for id, expiresAt := range c.grants {
		if now.After(expiresAt) {
			delete(c.grants, id)
			removed++
		}
	}
	return removed
}
