// Package cache is a small in-process TTL cache. The engine uses it to
// serve latest-flow lookups without hitting the ledger on every
// execute-by-name call.
package cache

import (
	"sync"
	"time"

	"github.com/dynaflow/engine/common/logger"
)

// MemoryCache stores byte values with a fixed TTL
type MemoryCache struct {
	data map[string]entry
	mu   sync.RWMutex
	ttl  time.Duration
	log  *logger.Logger
	stop chan struct{}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl. A janitor
// goroutine evicts expired entries until Close is called.
func NewMemoryCache(ttl time.Duration, log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]entry),
		ttl:  ttl,
		log:  log,
		stop: make(chan struct{}),
	}

	go c.janitor()

	return c
}

// Get retrieves a live value
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value under the cache TTL
func (c *MemoryCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes a key; used to invalidate on writes
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

// Close stops the janitor and drops all entries
func (c *MemoryCache) Close() {
	close(c.stop)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.data {
				if now.After(e.expiresAt) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
