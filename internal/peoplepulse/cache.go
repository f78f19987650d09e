package peoplepulse

import (
	"sync"
	"time"
)

type cacheEntry struct {
	projects  []Project
	fetchedAt time.Time
}

// ProjectCache keeps each resource's assignable projects for ttl.
type ProjectCache struct {
	mu      sync.RWMutex
	entries map[int64]cacheEntry
	ttl     time.Duration
}

func NewProjectCache(ttl time.Duration) *ProjectCache {
	return &ProjectCache{
		entries: make(map[int64]cacheEntry),
		ttl:     ttl,
	}
}

func (c *ProjectCache) Get(resourceID int64) []Project {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[resourceID]
	if !ok || time.Since(e.fetchedAt) > c.ttl {
		return nil
	}

	result := make([]Project, len(e.projects))
	copy(result, e.projects)
	return result
}

func (c *ProjectCache) Set(resourceID int64, projects []Project) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]Project, len(projects))
	copy(stored, projects)
	c.entries[resourceID] = cacheEntry{projects: stored, fetchedAt: time.Now()}
}

func (c *ProjectCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[int64]cacheEntry)
}
