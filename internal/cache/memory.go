package cache

import (
	"sync"
	"time"

	"iap-coordinator/internal/model"
)

// cacheEntry represents a cached product with optional expiration.
type cacheEntry struct {
	product   model.Product
	expiresAt time.Time
}

// isExpired checks if the entry has expired. A zero expiry never expires.
func (e *cacheEntry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-memory implementation of ProductCache.
// With a zero TTL entries live for the lifetime of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a product cache. When ttl is positive a background
// goroutine evicts expired entries every cleanupInterval; call Close to stop it.
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:     make(map[string]*cacheEntry),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if ttl > 0 {
		if cleanupInterval <= 0 {
			cleanupInterval = time.Minute
		}
		go c.cleanup(cleanupInterval)
	}

	return c
}

// Get returns the cached product for id.
func (c *MemoryCache) Get(id string) (model.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[id]
	if !exists || entry.isExpired(c.now()) {
		return model.Product{}, false
	}
	return entry.product, true
}

// Put stores products under their identifiers.
func (c *MemoryCache) Put(products ...model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		c.entries[p.ID] = &cacheEntry{product: p, expiresAt: expiresAt}
	}
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if !e.isExpired(now) {
			n++
		}
	}
	return n
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
}

// Close stops the background cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
	return nil
}

// cleanup periodically removes expired entries.
func (c *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

// removeExpired removes all expired entries.
func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, id)
		}
	}
}

var _ ProductCache = (*MemoryCache)(nil)
