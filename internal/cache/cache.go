package cache

import (
	"sync"

	"github.com/23skdu/longbow-recurve/internal/sequence"
)

// ScheduleCache defines a generic interface for caching batch schedules.
// Workloads tend to repeat batch shapes, so the sort and row-index build
// is worth amortizing.
type ScheduleCache interface {
	// Get retrieves a schedule from the cache.
	Get(key string) (*sequence.Schedule, bool)
	// Put stores a schedule in the cache.
	Put(key string, s *sequence.Schedule)
	// Size returns the number of items in the cache.
	Size() int
}

// MapCache is a simple in-memory implementation of ScheduleCache.
// Schedules are stored by reference; they are never mutated after build.
type MapCache struct {
	data map[string]*sequence.Schedule
	mu   sync.RWMutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[string]*sequence.Schedule),
	}
}

func (c *MapCache) Get(key string) (*sequence.Schedule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.data[key]
	return v, ok
}

func (c *MapCache) Put(key string, s *sequence.Schedule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = s
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
