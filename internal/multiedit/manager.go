package multiedit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/rljson"
)

// Manager tracks the current head Processor of each cake's multi-edit
// chain, per spec.md §4.7's EditHistoryManager example ("registers an
// observer on <cakeKey>EditHistory"). Grounded on the teacher's
// internal/cluster.Registry: a mutex-guarded map of per-key live instances,
// lazily created and cached.
type Manager struct {
	db  *catalogdb.Db
	gw  storage.Gateway
	bus *notify.Bus
	now func() time.Time

	mu    sync.RWMutex
	heads map[string]*Processor
}

// NewManager constructs a Manager sharing db's gateway and bus, so edit
// chains participate in the same notification fabric as ordinary inserts.
func NewManager(db *catalogdb.Db, gw storage.Gateway, bus *notify.Bus, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{db: db, gw: gw, bus: bus, now: now, heads: map[string]*Processor{}}
}

// Observe subscribes cb to every edit landing on cakeKey's chain (fired
// after the EditHistory row is written), returning a token for Unobserve.
func (m *Manager) Observe(cakeKey string, cb notify.Callback) int {
	return m.bus.Register("/"+editHistoryTable(cakeKey), cb)
}

// Unobserve removes a callback previously returned by Observe.
func (m *Manager) Unobserve(cakeKey string, id int) {
	m.bus.Unregister("/"+editHistoryTable(cakeKey), id)
}

// Edit applies edit to cakeKey's chain. cakeRef must be non-nil exactly
// when cakeKey has no live head in this Manager (EditHistory rows already
// in storage are not consulted, so a Manager without a head always starts
// a fresh chain); it must be nil for every later edit, per
// spec.md §4.7's single worked example, which supplies a cakeRef only once.
func (m *Manager) Edit(ctx context.Context, cakeKey string, edit rljson.Edit, cakeRef *string) (*Processor, error) {
	if err := ensureChainTables(ctx, m.gw, cakeKey); err != nil {
		return nil, err
	}

	m.mu.Lock()
	head, ok := m.heads[cakeKey]
	m.mu.Unlock()

	if !ok {
		if cakeRef == nil {
			return nil, ErrCakeRefRequired
		}
		if edit.Type != rljson.EditSelection {
			return nil, ErrFirstEditNotSelection
		}
		head = newProcessor(m.db, m.gw, m.bus, m.now, cakeKey, *cakeRef)
	} else if cakeRef != nil {
		return nil, ErrCakeRefForbidden
	}

	next, err := head.Apply(ctx, edit)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.heads[cakeKey] = next
	m.mu.Unlock()
	return next, nil
}

// Head returns the current live Processor for cakeKey, if any edit has been
// applied to it in this process.
func (m *Manager) Head(cakeKey string) (*Processor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.heads[cakeKey]
	return p, ok
}

// EditHistoryRef rebuilds the Processor that produced multiEditRef, by
// walking cakeKey's MultiEdit table back to the chain's root and replaying
// every edit from scratch via a fresh join.Materialize. cakeRef is the
// cake revision the chain was originally built against.
//
// Before replaying, it resolves the EditHistory node recorded for
// multiEditRef and enforces spec.md §4.7's editHistoryRef failure modes:
// ErrEditHistoryNotFound/ErrAmbiguousEditHistory when that node can't be
// resolved to exactly one row, and ErrMergeNotSupported when the resolved
// node's previous has more than one entry (this core detects DAG merges
// but refuses to replay through one).
func (m *Manager) EditHistoryRef(ctx context.Context, cakeKey, cakeRef, multiEditRef string) (*Processor, error) {
	if multiEditRef == "" {
		return newProcessor(m.db, m.gw, m.bus, m.now, cakeKey, cakeRef), nil
	}
	if err := checkEditHistoryMergeState(ctx, m.gw, cakeKey, multiEditRef); err != nil {
		return nil, err
	}
	edits, err := resolveChain(ctx, m.gw, cakeKey, multiEditRef)
	if err != nil {
		return nil, err
	}
	p := newProcessor(m.db, m.gw, m.bus, m.now, cakeKey, cakeRef)
	for _, e := range edits {
		p, err = p.Apply(ctx, e)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func ensureChainTables(ctx context.Context, gw storage.Gateway, cakeKey string) error {
	if err := ensureTable(ctx, gw, editTable(cakeKey), rljson.KindEdit); err != nil {
		return fmt.Errorf("multiedit: %w", err)
	}
	if err := ensureTable(ctx, gw, multiEditTable(cakeKey), rljson.KindMultiEdit); err != nil {
		return fmt.Errorf("multiedit: %w", err)
	}
	if err := ensureTable(ctx, gw, editHistoryTable(cakeKey), rljson.KindEditHistory); err != nil {
		return fmt.Errorf("multiedit: %w", err)
	}
	return nil
}
