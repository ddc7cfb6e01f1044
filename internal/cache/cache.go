// Package cache holds short-lived aggregates such as parcel stats and
// dashboard summaries. Keys are namespaced so a write can drop every scope
// of a view with one DeletePrefix.
package cache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	val any
	exp time.Time
}

type Cache struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
	// bumped by every invalidation; a load that started before the bump is
	// returned to its callers but not stored
	gen uint64
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Cache{ttl: ttl, entries: map[string]entry{}}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.exp) {
		return nil, false
	}
	return e.val, true
}

func (c *Cache) Set(key string, val any) {
	c.mu.Lock()
	c.entries[key] = entry{val: val, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// DeletePrefix drops every key under prefix, plus anything already expired.
func (c *Cache) DeletePrefix(prefix string) {
	now := time.Now()

	c.mu.Lock()
	c.gen++
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) || now.After(e.exp) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key, or runs load once for all
// concurrent callers missing the same key. The bool reports a cache hit.
// Errors are not cached.
func GetOrLoad[T any](c *Cache, key string, load func() (T, error)) (T, bool, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, true, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		v, err := load()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = entry{val: v, exp: time.Now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), false, nil
}
