package planner

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ministore/recordstore/recordstore/query"
)

const (
	DefaultParseCacheExpiration = 5 * time.Minute
	DefaultParseCacheCleanup    = 10 * time.Minute
)

// Cache is a typed wrapper over an in-memory expiring cache.
type Cache[V any] struct {
	cache *gocache.Cache
}

func NewCache[V any](defaultExpiration, cleanupInterval time.Duration) *Cache[V] {
	return &Cache[V]{cache: gocache.New(defaultExpiration, cleanupInterval)}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}
	v, ok := value.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.cache.SetDefault(key, value)
}

func (c *Cache[V]) Flush() {
	c.cache.Flush()
}

var parseCache = NewCache[[]query.ExprGroup](DefaultParseCacheExpiration, DefaultParseCacheCleanup)

// ParseFilter parses a filter expression, reusing earlier results for the
// same text. The returned groups are shared and must not be modified.
func ParseFilter(raw string) ([]query.ExprGroup, error) {
	if groups, ok := parseCache.Get(raw); ok {
		return groups, nil
	}

	groups, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	parseCache.Set(raw, groups)
	return groups, nil
}
