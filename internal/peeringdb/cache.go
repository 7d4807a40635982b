package peeringdb

import (
	"context"
	"sync"
)

// Cache memoizes successful lookups for a single reconciliation run.
// Failures are never stored, so a later row may retry the same AS.
type Cache struct {
	lookup Lookup

	mu    sync.Mutex
	names map[string]string
}

// NewCache wraps lookup with a fresh, empty cache
func NewCache(lookup Lookup) *Cache {
	return &Cache{lookup: lookup, names: make(map[string]string)}
}

// ASName returns the cached name or asks the underlying lookup
func (c *Cache) ASName(ctx context.Context, asn string) (string, error) {
	c.mu.Lock()
	name, ok := c.names[asn]
	c.mu.Unlock()
	if ok {
		return name, nil
	}

	name, err := c.lookup.ASName(ctx, asn)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.names[asn] = name
	c.mu.Unlock()
	return name, nil
}

// Len returns the number of cached names
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}
