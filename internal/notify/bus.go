// Package notify implements the catalog's observer registry: a process-
// wide, route-keyed, synchronous pub/sub bus. Grounded on the teacher's
// internal/store.Store.SubscribeLogs fan-out registry, collapsed from
// channels to direct callback invocation per spec.md §4.8.
package notify

import (
	"sync"

	"github.com/rljson/catalog/internal/logging"
	"github.com/rljson/catalog/pkg/rljson"
)

// Callback observes an insert-history row written on a route.
type Callback func(routeFlat string, row rljson.Row)

// Bus is a process-wide, route-keyed observer registry. Registration order
// is preserved and notifications fire synchronously, in that order; a
// callback panic or the (non-existent here, by design) error return is
// caught and logged rather than aborting the remaining callbacks.
type Bus struct {
	mu        sync.Mutex
	observers map[string][]Callback
	ids       map[string][]int
	nextID    int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{observers: map[string][]Callback{}, ids: map[string][]int{}}
}

// Register adds cb as an observer of routeFlat, returning a token usable
// with Unregister.
func (b *Bus) Register(routeFlat string, cb Callback) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.observers[routeFlat] = append(b.observers[routeFlat], cb)
	b.ids[routeFlat] = append(b.ids[routeFlat], id)
	return id
}

// Unregister removes the callback previously returned by Register with id.
func (b *Bus) Unregister(routeFlat string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.ids[routeFlat]
	for i, existing := range ids {
		if existing != id {
			continue
		}
		cbs := b.observers[routeFlat]
		b.observers[routeFlat] = append(cbs[:i], cbs[i+1:]...)
		b.ids[routeFlat] = append(ids[:i], ids[i+1:]...)
		if len(b.observers[routeFlat]) == 0 {
			delete(b.observers, routeFlat)
			delete(b.ids, routeFlat)
		}
		return
	}
}

// Notify invokes every callback registered on routeFlat, synchronously, in
// registration order. A callback that panics is caught and logged; the
// remaining callbacks still run.
func (b *Bus) Notify(routeFlat string, row rljson.Row) {
	b.mu.Lock()
	cbs := append([]Callback(nil), b.observers[routeFlat]...)
	b.mu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Default.Error("notify: observer for %q panicked: %v", routeFlat, r)
				}
			}()
			cb(routeFlat, row)
		}()
	}
}
