package blueprint

import (
	"context"
	"sync"
)

// Cache holds resolved blueprints keyed by Source.Key. Presets never change
// and custom documents are swapped in by a Watcher or dropped by Invalidate.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Blueprint
	fetcher CustomFetcher
}

// NewCache creates a cache that resolves custom sources through fetcher.
func NewCache(fetcher CustomFetcher) *Cache {
	return &Cache{
		entries: make(map[string]*Blueprint),
		fetcher: fetcher,
	}
}

// Get returns the cached blueprint for src, resolving it on a miss.
func (c *Cache) Get(ctx context.Context, src Source) (*Blueprint, error) {
	key := src.Key()

	c.mu.RLock()
	bp, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return bp, nil
	}

	bp, err := Resolve(ctx, src, c.fetcher)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = bp
	c.mu.Unlock()

	return bp, nil
}

// Put replaces the blueprint cached for src.
func (c *Cache) Put(src Source, bp *Blueprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[src.Key()] = bp
}

// Invalidate drops the entry for src so the next Get resolves it again.
func (c *Cache) Invalidate(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, src.Key())
}

// Len returns the number of cached blueprints.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
