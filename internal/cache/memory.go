package cache

import (
	"context"
	"sync"
)

// MemoryCache is a process-local Cache. Used as the default when no
// persistent backend is configured, and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]any)}
}

func (c *MemoryCache) Get(ctx context.Context, toolName string, args map[string]any) (any, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[Key(toolName, args)]
	return v, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, toolName string, args map[string]any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(toolName, args)] = result
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ Cache = (*MemoryCache)(nil)
