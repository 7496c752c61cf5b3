package boundary

import (
	"sync"

	"github.com/sells-group/pickup-cli/internal/textnorm"
)

// Cache holds resolutions for one batch run. Entries are never evicted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Resolution
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Resolution)}
}

// CacheKey folds name and country hint so spelling variants share an entry.
func CacheKey(name, countryHint string) string {
	return textnorm.Fold(name) + ":" + textnorm.Fold(countryHint)
}

// Get returns the cached resolution for key.
func (c *Cache) Get(key string) (*Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

// Put stores r under key.
func (c *Cache) Put(key string, r *Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
