package spotify

import (
	"sync"
	"time"
)

// Cache is an injectable short-circuit for identical page reads. It is
// advisory: full-scan reads bypass it so diff decisions never depend on a
// stale entry.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// NoopCache caches nothing; the default for tests and one-shot commands.
type NoopCache struct{}

func (NoopCache) Get(string) ([]byte, bool)         { return nil, false }
func (NoopCache) Set(string, []byte, time.Duration) {}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process-wide TTL cache keyed by request parameters.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
}
