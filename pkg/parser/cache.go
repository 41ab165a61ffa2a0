package parser

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"egg/interpreter-go/pkg/ast"
)

// DefaultCacheBytes bounds the total source length memoized by a Cache.
const DefaultCacheBytes = 64 << 20

// Cache memoizes Parse by source text. Parsing is pure and ASTs are never
// mutated, so a cached tree may be shared by concurrent evaluations.
// Failed parses are not cached.
type Cache struct {
	cache *ristretto.Cache
}

// NewCache builds a cache holding at most maxBytes of source text.
func NewCache(maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	// Roughly ten counters per expected entry, assuming ~64 byte programs.
	counters := maxBytes / 64 * 10
	if counters < 1024 {
		counters = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("parser: create cache: %w", err)
	}
	return &Cache{cache: cache}, nil
}

// Parse returns the cached tree for source or parses and stores it.
func (c *Cache) Parse(source string) (ast.Expression, error) {
	if c == nil || c.cache == nil {
		return Parse(source)
	}
	if hit, ok := c.cache.Get(source); ok {
		if expr, ok := hit.(ast.Expression); ok {
			return expr, nil
		}
	}
	expr, err := Parse(source)
	if err != nil {
		return nil, err
	}
	c.cache.Set(source, expr, int64(len(source))+1)
	return expr, nil
}

// Wait blocks until pending writes are visible to Parse.
func (c *Cache) Wait() {
	if c != nil && c.cache != nil {
		c.cache.Wait()
	}
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	if c != nil && c.cache != nil {
		c.cache.Close()
	}
}
