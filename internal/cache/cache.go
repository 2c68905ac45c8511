// Package cache holds hydrated entities keyed by id for the lifetime of a
// process. It is not shared across processes and performs no distributed
// invalidation.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/polystore/internal/entity"
)

// DefaultCapacity bounds the number of cached entities.
const DefaultCapacity = 256

// Cache is a capacity-bounded id → entity LRU. When full, Put evicts the
// least recently used entry.
//
// Thread-safety: methods are safe for concurrent use. A reader racing a
// writer may still observe the pre-write entity until the writer calls
// Invalidate.
type Cache struct {
	items *lru.Cache[int64, entity.Entity]
}

// New creates a Cache. A non-positive capacity uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	items, err := lru.New[int64, entity.Entity](capacity)
	if err != nil {
		// Only a non-positive size is rejected.
		panic(err)
	}
	return &Cache{items: items}
}

// Get returns the cached entity for id and marks it recently used.
func (c *Cache) Get(id int64) (entity.Entity, bool) {
	return c.items.Get(id)
}

// Put stores e under its id. Entities without an id are ignored.
func (c *Cache) Put(e entity.Entity) {
	if e == nil {
		return
	}
	id := e.Attributes().ID
	if id == 0 {
		return
	}
	c.items.Add(id, e)
}

// Invalidate drops the entries for ids.
func (c *Cache) Invalidate(ids ...int64) {
	for _, id := range ids {
		c.items.Remove(id)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.items.Purge()
}

// Len reports the number of cached entities.
func (c *Cache) Len() int {
	return c.items.Len()
}
