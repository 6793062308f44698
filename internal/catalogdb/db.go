// Package catalogdb implements the route-driven core (spec.md §4.3): get,
// insert, observer registration, and insert-history queries layered over a
// storage.Gateway. Grounded on the teacher's internal/db.Manager method-
// per-operation style and its resolve-mutate-audit sequencing.
package catalogdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

// Db is the catalog core: route-driven get/insert over a storage.Gateway,
// an insert-history writer, observer dispatch, and a bounded query cache.
type Db struct {
	gw    storage.Gateway
	bus   *notify.Bus
	now   func() time.Time
	mu    sync.RWMutex
	cache *queryCache
	// history indexes one google/btree.BTree per table, ordered by timeId's
	// numeric prefix, built lazily from storage on first history query and
	// kept current as inserts land.
	history map[string]*btree.BTreeG[historyItem]
}

// Option configures a Db at construction.
type Option func(*Db)

// WithClock overrides the time source insert() uses to mint timeIds,
// for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(d *Db) { d.now = now }
}

// WithCacheSize bounds the (route,where) query cache, resolving spec.md
// §9's unnamed cache-eviction open question via a configurable FIFO size.
func WithCacheSize(n int) Option {
	return func(d *Db) { d.cache = newQueryCache(n) }
}

// New constructs a Db over gw, notifying through bus.
func New(gw storage.Gateway, bus *notify.Bus, opts ...Option) *Db {
	d := &Db{
		gw:      gw,
		bus:     bus,
		now:     time.Now,
		cache:   newQueryCache(defaultCacheSize),
		history: map[string]*btree.BTreeG[historyItem]{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

const defaultCacheSize = 512

func (d *Db) kindOf(ctx context.Context, table string) (rljson.Kind, error) {
	exists, err := d.gw.TableExists(ctx, table)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	return d.gw.ContentType(ctx, table)
}

func (d *Db) controllerFor(ctx context.Context, table string) (controller, error) {
	kind, err := d.kindOf(ctx, table)
	if err != nil {
		return nil, err
	}
	return controllerFor(kind)
}

// RegisterObserver subscribes cb to insert-history writes on r, returning a
// token for UnregisterObserver.
func (d *Db) RegisterObserver(r route.Route, cb notify.Callback) int {
	return d.bus.Register(r.Flat(), cb)
}

// UnregisterObserver removes a callback previously returned by
// RegisterObserver.
func (d *Db) UnregisterObserver(r route.Route, id int) {
	d.bus.Unregister(r.Flat(), id)
}

func historyTable(table string) string { return table + "InsertHistory" }
