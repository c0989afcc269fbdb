package llm

import (
	"crypto/md5" // #nosec -- MD5 keys a process-local response cache, not a security boundary
	"encoding/hex"
	"log"
	"sync"
)

// responseCache is a bounded insertion-order FIFO: when full, the
// oldest-inserted entry is evicted. Lookups do not refresh an entry's
// position. The whole check-evict-insert sequence runs under one mutex so
// the size bound holds even when two streams complete at the same time.
type responseCache struct {
	mu      sync.Mutex
	enabled bool
	maxSize int
	entries map[string]string
	order   []string
}

func newResponseCache(enabled bool, maxSize int) *responseCache {
	return &responseCache{
		enabled: enabled,
		maxSize: maxSize,
		entries: make(map[string]string),
	}
}

func (c *responseCache) get(key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *responseCache) put(key, value string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		log.Printf("Cache eviction: removed oldest entry %s...", oldest[:8])
	}

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = value
	log.Printf("Cached response for key: %s...", key[:8])
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey hashes the post-truncation input text, so identical truncated
// prefixes share one entry.
func cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
