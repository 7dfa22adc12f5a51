package providers

import (
	"sync"
	"time"
)

type cachedResult struct {
	result    Result
	expiresAt time.Time
}

// resultCache holds finished synchronous renders until they are claimed or
// their TTL lapses. Expired entries are swept on every write so the map
// stays bounded even if results are never read back.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedResult
	now     func() time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cachedResult),
		now:     time.Now,
	}
}

func (c *resultCache) Put(jobID string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if entry.expiresAt.Before(now) {
			delete(c.entries, key)
		}
	}
	c.entries[jobID] = cachedResult{result: result, expiresAt: now.Add(c.ttl)}
}

func (c *resultCache) Get(jobID string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[jobID]
	if !ok || entry.expiresAt.Before(c.now()) {
		delete(c.entries, jobID)
		return nil, false
	}
	result := entry.result
	return &result, true
}

// Reset drops every cached result.
func (c *resultCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedResult)
}
