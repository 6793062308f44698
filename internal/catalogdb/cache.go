package catalogdb

import (
	"container/list"
	"fmt"
	"sort"
	"sync"

	"github.com/rljson/catalog/pkg/rljson"
)

// queryCache is a bounded map from (route.flat, stringify(where)) to the
// last-returned payload, per spec.md §4.3's Cache section. Content-safe
// because every stored row is immutable: two queries with the same key
// always return identical data, so eviction only affects memory, never
// correctness. FIFO eviction, grounded on the teacher's ChangefeedStream
// sequence-counter bookkeeping applied here to cache-slot rotation instead
// of changefeed cursors.
type queryCache struct {
	mu       sync.Mutex
	size     int
	order    *list.List
	elements map[string]*list.Element
	values   map[string]rljson.Document
}

type cacheEntry struct{ key string }

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &queryCache{
		size:     size,
		order:    list.New(),
		elements: map[string]*list.Element{},
		values:   map[string]rljson.Document{},
	}
}

func cacheKey(routeFlat string, where rljson.Row) string {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := routeFlat
	for _, k := range keys {
		key += fmt.Sprintf("|%s=%v", k, where[k])
	}
	return key
}

func (c *queryCache) get(key string) (rljson.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *queryCache) put(key string, doc rljson.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		c.values[key] = doc
		return
	}
	c.values[key] = doc
	c.elements[key] = c.order.PushBack(cacheEntry{key: key})
	for c.order.Len() > c.size {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.values, oldest.Value.(cacheEntry).key)
		delete(c.elements, oldest.Value.(cacheEntry).key)
	}
}

// invalidate drops every cached entry for table — called after an insert
// widens what a future read of that table could return. Not required for
// correctness (spec.md §4.3), but keeps the cache compact as spec.md
// allows.
func (c *queryCache) invalidate(routeFlat string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.elements {
		if len(key) >= len(routeFlat) && key[:len(routeFlat)] == routeFlat {
			c.order.Remove(el)
			delete(c.elements, key)
			delete(c.values, key)
		}
	}
}
