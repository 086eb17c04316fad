package ocr

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	cacheCapacity  = 32
	cacheFreshness = 5 * time.Minute
)

// resultCache memoizes recognition results keyed by decoded-image identity.
// Bounded by entry count (oldest-by-timestamp eviction on insert) and by a
// freshness window checked lazily on lookup; there is no background sweep.
type resultCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	capacity int
	ttl      time.Duration
}

type cacheEntry struct {
	result    *Result
	timestamp time.Time
}

func newResultCache() *resultCache {
	return &resultCache{
		entries:  make(map[string]*cacheEntry),
		capacity: cacheCapacity,
		ttl:      cacheFreshness,
	}
}

// cacheKey derives the image identity from its normalized bytes.
func cacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns a fresh cached result, or nil. Stale entries are dropped on
// lookup rather than swept.
func (c *resultCache) Get(key string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}

	if time.Since(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		return nil
	}

	return entry.result
}

// Put stores a result, evicting the oldest entry when at capacity.
func (c *resultCache) Put(key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.timestamp.Before(oldest) {
				oldestKey = k
				oldest = e.timestamp
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = &cacheEntry{result: result, timestamp: time.Now()}
}

// Clear drops every entry.
func (c *resultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
