package application

import (
	"sync"
	"time"
)

const defaultCategoryCacheTTL = 30 * time.Second

// categoryCache holds the most recent category listing until it expires or a
// write invalidates it. Event pages read the list on every render.
type categoryCache struct {
	mu        sync.RWMutex
	now       func() time.Time
	ttl       time.Duration
	entries   []EventCategory
	expiresAt time.Time
	valid     bool
}

func newCategoryCache(ttl time.Duration, now func() time.Time) *categoryCache {
	if ttl <= 0 {
		ttl = defaultCategoryCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &categoryCache{now: now, ttl: ttl}
}

func (c *categoryCache) Get() ([]EventCategory, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entries, expiresAt, valid := c.entries, c.expiresAt, c.valid
	c.mu.RUnlock()
	if !valid {
		return nil, false
	}
	if !c.now().Before(expiresAt) {
		c.Invalidate()
		return nil, false
	}
	return cloneCategories(entries), true
}

func (c *categoryCache) Store(categories []EventCategory) {
	if c == nil {
		return
	}
	cloned := cloneCategories(categories)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = cloned
	c.expiresAt = expiry
	c.valid = true
}

func (c *categoryCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = nil
	c.valid = false
	c.mu.Unlock()
}

func cloneCategories(categories []EventCategory) []EventCategory {
	out := make([]EventCategory, len(categories))
	copy(out, categories)
	return out
}
