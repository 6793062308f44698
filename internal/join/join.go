package join

import (
	"context"
	"fmt"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/columns"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

// colMeta records what a selection column's route resolves to, computed
// once at materialization time so later stages (filter/sort/setValue/
// insert) don't re-parse routes.
type colMeta struct {
	layerTable     string
	componentTable string
	propertyKey    string
}

// process is one entry of a Join's process stack (spec.md §4.5 "Processes").
type process struct {
	Type      string
	Instance  any
	Data      *JoinRows
	Selection columns.Selection
}

// Join materializes a cake revision into rows and layers processes on top.
type Join struct {
	db      *catalogdb.Db
	cakeKey string
	cakeRef string

	// layers is the materialized cake's layers map (layerTable -> hash),
	// used by Insert to reconstruct untouched layers as hash passthroughs.
	layers map[string]string
	// layerAdds is each referenced layer's sliceId -> componentHash map.
	layerAdds map[string]map[string]string
	// componentCache avoids re-fetching the same component hash twice
	// across columns that share a layer.
	componentCache map[string]rljson.Row
	colMeta        []colMeta

	stack []process
}

// CakeKey returns the table this join's cake belongs to.
func (j *Join) CakeKey() string { return j.cakeKey }

// CakeRef returns the revision this join was materialized at.
func (j *Join) CakeRef() string { return j.cakeRef }

func (j *Join) current() process {
	return j.stack[len(j.stack)-1]
}

// Materialize implements spec.md §4.5's materialization algorithm: resolve
// the cake row, enumerate its layers and the union of slice identifiers
// visible there, then extract one cell per selected column per slice.
func Materialize(ctx context.Context, db *catalogdb.Db, sel columns.Selection, cakeKey, cakeRef string) (*Join, error) {
	cakeRoute := route.Route{Segments: []route.Segment{{TableKey: cakeKey, Ref: cakeRef}}}
	cakeDoc, err := db.Get(ctx, cakeRoute, rljson.Row{})
	if err != nil {
		return nil, err
	}
	cakeRows := cakeDoc[cakeKey].Data
	if len(cakeRows) != 1 {
		return nil, fmt.Errorf("%w: %s@%s", ErrCakeNotFound, cakeKey, cakeRef)
	}
	layers, ok := asStringMap(cakeRows[0]["layers"])
	if !ok {
		return nil, fmt.Errorf("join: cake row has no usable %q map", "layers")
	}

	layerAdds := map[string]map[string]string{}
	sliceSet := map[string]struct{}{}
	for layerTable, layerHash := range layers {
		layerRoute := route.Route{Segments: []route.Segment{{TableKey: layerTable, Ref: layerHash}}}
		layerDoc, err := db.Get(ctx, layerRoute, rljson.Row{})
		if err != nil {
			return nil, fmt.Errorf("%w: %s@%s: %v", ErrLayerNotFound, layerTable, layerHash, err)
		}
		rows := layerDoc[layerTable].Data
		if len(rows) != 1 {
			return nil, fmt.Errorf("%w: %s@%s", ErrLayerNotFound, layerTable, layerHash)
		}
		add, ok := asStringMap(rows[0]["add"])
		if !ok {
			return nil, fmt.Errorf("join: layer %q row has no usable %q map", layerTable, "add")
		}
		layerAdds[layerTable] = add
		for sliceID := range add {
			sliceSet[sliceID] = struct{}{}
		}
	}
	sliceIDs := sortedKeys(sliceSet)

	metas := make([]colMeta, len(sel.Columns))
	for i, col := range sel.Columns {
		meta, err := parseColumnRoute(col.Route)
		if err != nil {
			return nil, err
		}
		metas[i] = meta
	}

	componentCache := map[string]rljson.Row{}
	getComponent := func(table, hash string) (rljson.Row, error) {
		key := table + "@" + hash
		if row, ok := componentCache[key]; ok {
			return row, nil
		}
		r := route.Route{Segments: []route.Segment{{TableKey: table, Ref: hash}}}
		doc, err := db.Get(ctx, r, rljson.Row{})
		if err != nil {
			return nil, err
		}
		rows := doc[table].Data
		if len(rows) != 1 {
			return nil, fmt.Errorf("join: component %s@%s not found", table, hash)
		}
		componentCache[key] = rows[0]
		return rows[0], nil
	}

	rows := make([]JoinRow, len(sliceIDs))
	for ri, sliceID := range sliceIDs {
		cells := make([]Cell, len(sel.Columns))
		for ci, col := range sel.Columns {
			meta := metas[ci]
			add := layerAdds[meta.layerTable]
			hash, present := add[sliceID]
			var value any
			if present {
				row, err := getComponent(meta.componentTable, hash)
				if err != nil {
					return nil, err
				}
				if meta.propertyKey != "" {
					value = row[meta.propertyKey]
				} else {
					value = row
				}
			}
			cells[ci] = Cell{Route: col.Route, Value: value}
		}
		rows[ri] = JoinRow{SliceID: sliceID, Cells: cells}
	}

	data, err := hashRows(rows)
	if err != nil {
		return nil, err
	}

	j := &Join{
		db:             db,
		cakeKey:        cakeKey,
		cakeRef:        cakeRef,
		layers:         layers,
		layerAdds:      layerAdds,
		componentCache: componentCache,
		colMeta:        metas,
		stack: []process{{
			Type: "materialize", Data: data, Selection: sel,
		}},
	}
	return j, nil
}

// Clone shares the materialized base but duplicates the process stack, so
// mutating the clone's stack (select/filter/sort/setValue) never affects j.
func (j *Join) Clone() *Join {
	clone := *j
	clone.stack = make([]process, len(j.stack))
	copy(clone.stack, j.stack)
	clone.colMeta = append([]colMeta(nil), j.colMeta...)
	return &clone
}
