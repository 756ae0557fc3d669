// Package memory provides a process-local TTL cache for API responses.
package memory

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	body      []byte
	expiresAt time.Time
}

// Cache is a TTL response cache. Entries are checked lazily on read; there is
// no background sweeper, a stale entry is dropped on the next Get that hits it.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New creates a Cache with the given TTL. A ttl <= 0 disables caching
// entirely: Get always misses and Set is a no-op.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Fingerprint builds a cache key from an endpoint path and its query
// parameters. Parameters are serialized in sorted key order so that two
// requests differing only in parameter order share an entry.
func Fingerprint(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(params[k], ","))
	}
	return b.String()
}

// Get returns the cached body for key, or false when absent or expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresher Set may have raced us.
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.body, true
}

// Set stores body under key. A ttl > 0 overrides the cache's default for
// this entry only; ttl <= 0 uses the default.
func (c *Cache) Set(key string, body []byte, ttl time.Duration) {
	if c.ttl <= 0 {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.entries[key] = entry{body: body, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len reports the number of stored entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
