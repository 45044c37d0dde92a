package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/opendatahub-io/odh-e2e/internal/logger"
)

type cachedLoad struct {
	load      *ModelLoad
	fetchedAt time.Time
}

// LoadCache caches CollectModelLoad answers per model and namespace so
// that specs polling the same model do not hammer Prometheus.
type LoadCache struct {
	entries map[string]cachedLoad
	mu      sync.RWMutex
	ttl     time.Duration
}

// NewLoadCache builds a cache whose entries expire after ttl.
func NewLoadCache(ttl time.Duration) *LoadCache {
	if ttl <= 0 {
		logger.Log.Warn("Invalid TTL provided, using default", "provided", ttl, "default", "30s")
		ttl = 30 * time.Second
	}
	return &LoadCache{
		entries: make(map[string]cachedLoad),
		ttl:     ttl,
	}
}

func cacheKey(modelName, namespace string) string {
	return modelName + ":" + namespace
}

// Get returns the cached load if present and not expired.
func (c *LoadCache) Get(modelName, namespace string) (*ModelLoad, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(modelName, namespace)]
	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.load, true
}

// Set stores a freshly collected load.
func (c *LoadCache) Set(modelName, namespace string, load *ModelLoad) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(modelName, namespace)] = cachedLoad{
		load:      load,
		fetchedAt: time.Now(),
	}
}

// GetOrCollect returns the cached load, collecting and caching a
// fresh one when the entry is missing or expired.
func (c *LoadCache) GetOrCollect(ctx context.Context, promAPI Querier, modelName, namespace string) (*ModelLoad, error) {
	if load, ok := c.Get(modelName, namespace); ok {
		return load, nil
	}
	load, err := CollectModelLoad(ctx, promAPI, modelName, namespace)
	if err != nil {
		return nil, err
	}
	c.Set(modelName, namespace, load)
	return load, nil
}

// Invalidate drops the entry for a model, forcing a refetch.
func (c *LoadCache) Invalidate(modelName, namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(modelName, namespace))
}

// Size returns the number of cached entries, expired ones included.
func (c *LoadCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries and reports how many were dropped.
func (c *LoadCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.fetchedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
