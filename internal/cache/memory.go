package cache

import "sync"

// MemoryCache is a mutex-guarded in-process cache, used in tests and
// as a zero-dependency fallback when no cache path is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]StoredVariant
}

var _ VariantCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]StoredVariant)}
}

func (c *MemoryCache) Get(key string) (*StoredVariant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *MemoryCache) Put(key string, v StoredVariant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
