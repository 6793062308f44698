// Package multiedit implements spec.md §4.7's multi-edit chain: a
// content-addressed, append-only sequence of Edit rows linked by MultiEdit
// rows, replayed through internal/join to produce a materialized view
// without ever touching the underlying cake until Publish is called.
package multiedit

import (
	"context"
	"fmt"
	"time"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/columns"
	"github.com/rljson/catalog/internal/join"
	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// Processor replays one multi-edit chain's edits against a join.Join,
// accumulating the edit/multiEdit/editHistory rows produced along the way.
// It is immutable from the caller's point of view: every mutating method
// returns a new *Processor, leaving the receiver untouched, the same
// convention join.Join itself follows.
type Processor struct {
	db      *catalogdb.Db
	gw      storage.Gateway
	bus     *notify.Bus
	now     func() time.Time
	cakeKey string
	cakeRef string

	j *join.Join

	multiEditRef string
	timeID       string
}

// Head returns the chain's current tip (the multiEdit ref of the last
// applied edit, or "" for a chain with no edits yet).
func (p *Processor) Head() string { return p.multiEditRef }

// CakeKey returns the cake table this chain edits.
func (p *Processor) CakeKey() string { return p.cakeKey }

// Join exposes the processor's current materialized view, e.g. for reading
// rows without applying another edit.
func (p *Processor) Join() *join.Join { return p.j }

// newProcessor starts an empty chain anchored at cakeRef; the first Apply
// must be an EditSelection (spec.md §4.7), which is what actually
// materializes j.
func newProcessor(db *catalogdb.Db, gw storage.Gateway, bus *notify.Bus, now func() time.Time, cakeKey, cakeRef string) *Processor {
	return &Processor{db: db, gw: gw, bus: bus, now: now, cakeKey: cakeKey, cakeRef: cakeRef}
}

// Apply replays edit on top of the processor's current view, persisting an
// Edit row, a MultiEdit row linking it to the chain's previous tip, and an
// EditHistory row recording the new tip, then returns the resulting
// Processor. ctx governs every storage call Apply makes.
func (p *Processor) Apply(ctx context.Context, edit rljson.Edit) (*Processor, error) {
	nextJoin, err := p.applyToJoin(ctx, edit)
	if err != nil {
		return nil, err
	}

	editRow, err := writeHashed(ctx, p.gw, editTable(p.cakeKey), editToRow(edit))
	if err != nil {
		return nil, err
	}
	editRef := editRow[hashkit.HashField].(string)

	multiEditRow, err := writeHashed(ctx, p.gw, multiEditTable(p.cakeKey),
		multiEditToRow(rljson.MultiEdit{EditRef: editRef, PreviousRef: p.multiEditRef}))
	if err != nil {
		return nil, err
	}
	multiEditRef := multiEditRow[hashkit.HashField].(string)

	dataRef, err := dataHash(nextJoin)
	if err != nil {
		return nil, err
	}

	timeID := hashkit.NewTimeID(p.now())
	var previous []string
	if p.timeID != "" {
		previous = []string{p.timeID}
	}
	historyRow := editHistoryToRow(rljson.EditHistory{
		TimeID: timeID, DataRef: dataRef, MultiEditRef: multiEditRef, Previous: previous,
	})
	writtenHistory, err := writeHashed(ctx, p.gw, editHistoryTable(p.cakeKey), historyRow)
	if err != nil {
		return nil, err
	}

	// Mirrors catalogdb's insert-history notify (spec.md §4.3 step 5): every
	// chain this cake has a live head for fires on <cakeKey>EditHistory so
	// sync/watchers can follow edits as they land, not just published cakes.
	p.bus.Notify("/"+editHistoryTable(p.cakeKey), writtenHistory)

	next := &Processor{
		db: p.db, gw: p.gw, bus: p.bus, now: p.now, cakeKey: p.cakeKey, cakeRef: p.cakeRef,
		j: nextJoin, multiEditRef: multiEditRef, timeID: timeID,
	}
	return next, nil
}

func (p *Processor) applyToJoin(ctx context.Context, edit rljson.Edit) (*join.Join, error) {
	switch edit.Type {
	case rljson.EditSelection:
		routes, ok := edit.Data.([]string)
		if !ok {
			return nil, fmt.Errorf("%w: selection data must be []string", ErrUnsupportedEditType)
		}
		sel, err := columns.FromRoutes(routes)
		if err != nil {
			return nil, err
		}
		if p.j == nil {
			return join.Materialize(ctx, p.db, sel, p.cakeKey, p.cakeRef)
		}
		return p.j.Select(sel)
	case rljson.EditFilter:
		if p.j == nil {
			return nil, fmt.Errorf("%w: first edit must be a selection", ErrFirstEditNotSelection)
		}
		rf, ok := edit.Data.(join.RowFilter)
		if !ok {
			return nil, fmt.Errorf("%w: filter data must be join.RowFilter", ErrUnsupportedEditType)
		}
		return p.j.Filter(rf)
	case rljson.EditSort:
		if p.j == nil {
			return nil, fmt.Errorf("%w: first edit must be a selection", ErrFirstEditNotSelection)
		}
		rs, ok := edit.Data.(join.RowSort)
		if !ok {
			return nil, fmt.Errorf("%w: sort data must be join.RowSort", ErrUnsupportedEditType)
		}
		return p.j.Sort(rs)
	case rljson.EditSetValue:
		if p.j == nil {
			return nil, fmt.Errorf("%w: first edit must be a selection", ErrFirstEditNotSelection)
		}
		switch data := edit.Data.(type) {
		case join.SetValue:
			return p.j.SetValue(data)
		case []join.SetValue:
			return p.j.SetValues(data)
		default:
			return nil, fmt.Errorf("%w: setValue data must be join.SetValue or []join.SetValue", ErrUnsupportedEditType)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEditType, edit.Type)
	}
}

// Publish commits the processor's accumulated overrides to the underlying
// cake via its Join's Insert/Publish, per spec.md §4.5's insert() semantics,
// and returns the resulting cake hash.
func (p *Processor) Publish(ctx context.Context) (string, error) {
	if p.j == nil {
		return p.cakeRef, nil
	}
	return p.j.Publish(ctx)
}

// dataHash content-addresses a join's current row set, independent of the
// cake it came from, so EditHistory.DataRef is stable across equivalent
// replays of the same edit chain.
func dataHash(j *join.Join) (string, error) {
	if j == nil {
		return "", nil
	}
	return hashkit.CalcHash(rljson.Row{"rows": j.RowHashes()})
}
