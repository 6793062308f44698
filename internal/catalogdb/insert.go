package catalogdb

import (
	"context"
	"fmt"

	"github.com/rljson/catalog/internal/metrics"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

// InsertSpec is the insert() contract of spec.md §4.3: a route, a command
// (only "add" is defined), the value to write, and the optional origin/
// acknowledged/previous bookkeeping fields an insert-history row carries.
type InsertSpec struct {
	Route        route.Route
	Command      string
	Value        rljson.Row
	Origin       string
	Acknowledged bool
	// Previous lists the timeIds this insert supersedes, taken from an
	// explicit route "@ref" (resolved to its timeId by the caller) or
	// supplied directly. Db.Insert never infers it (see DESIGN.md's Open
	// Question decision on Db.insert auto-previous-fill).
	Previous []string
}

// InsertResult carries the hash written at every table segment touched by
// an insert, keyed by table name, plus the insert-history row appended at
// each.
type InsertResult struct {
	Hashes      map[string]string
	HistoryRows map[string]rljson.InsertHistoryRow
}

// Insert performs spec.md §4.3's insert() algorithm: resolve controllers
// for every route segment, recursively writing children before parents,
// appending an insert-history row and notifying observers at each level.
func (d *Db) Insert(ctx context.Context, spec InsertSpec) (InsertResult, error) {
	if spec.Command == "" {
		spec.Command = "add"
	}
	if spec.Command != "add" {
		return InsertResult{}, fmt.Errorf("catalogdb: unsupported insert command %q", spec.Command)
	}
	if err := spec.Route.Validate(); err != nil {
		return InsertResult{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	result := InsertResult{Hashes: map[string]string{}, HistoryRows: map[string]rljson.InsertHistoryRow{}}
	if _, err := d.insertNode(ctx, spec.Route, spec.Value, &spec, &result); err != nil {
		return InsertResult{}, err
	}
	return result, nil
}

func (d *Db) insertNode(ctx context.Context, r route.Route, value rljson.Row, spec *InsertSpec, result *InsertResult) (string, error) {
	seg := r.Root()
	ctrl, err := d.controllerFor(ctx, seg.TableKey)
	if err != nil {
		return "", err
	}

	var row rljson.Row
	if r.IsRoot() {
		row, err = ctrl.build(value, nil)
		if err != nil {
			return "", err
		}
	} else {
		inferior, _ := r.Inferior()
		childTable := inferior.Root().TableKey
		children, passthrough, err := ctrl.decompose(childTable, value)
		if err != nil {
			return "", err
		}
		resolved := map[string]string{}
		for k, v := range passthrough {
			resolved[k] = v
		}
		for key, childValue := range children {
			childHash, err := d.insertNode(ctx, inferior, childValue, spec, result)
			if err != nil {
				return "", err
			}
			resolved[key] = childHash
		}
		row, err = ctrl.build(value, resolved)
		if err != nil {
			return "", err
		}
	}

	return d.writeRow(ctx, r, seg.TableKey, row, spec, result)
}

func (d *Db) writeRow(ctx context.Context, r route.Route, table string, row rljson.Row, spec *InsertSpec, result *InsertResult) (string, error) {
	hashed, err := hashkit.WithHash(row)
	if err != nil {
		return "", err
	}
	newHash := hashed[hashkit.HashField].(string)

	if err := d.gw.Write(ctx, rljson.Document{table: {Data: []rljson.Row{hashed}}}); err != nil {
		return "", err
	}

	h := rljson.InsertHistoryRow{
		TimeID:       hashkit.NewTimeID(d.now()),
		Ref:          newHash,
		Route:        spec.Route.Flat(),
		Previous:     spec.Previous,
		Origin:       spec.Origin,
		Acknowledged: spec.Acknowledged,
	}
	hTable := historyTable(table)
	exists, err := d.gw.TableExists(ctx, hTable)
	if err != nil {
		return "", err
	}
	if !exists {
		cfg := rljson.TableCfg{
			Table: hTable,
			Kind:  rljson.KindInsertHistory,
			Columns: []rljson.ColumnCfg{
				{Key: "timeId", Type: rljson.ColString},
				{Key: refColumn(table), Type: rljson.ColString},
				{Key: "route", Type: rljson.ColString},
			},
		}
		if err := d.gw.CreateOrExtendTable(ctx, cfg); err != nil {
			return "", err
		}
	}
	historyRow, err := hashkit.WithHash(h.ToRow(table))
	if err != nil {
		return "", err
	}
	if err := d.gw.Write(ctx, rljson.Document{hTable: {Data: []rljson.Row{historyRow}}}); err != nil {
		return "", err
	}
	d.indexHistoryRow(table, h)
	d.cache.invalidate("/" + table)

	result.Hashes[table] = newHash
	result.HistoryRows[table] = h
	metrics.IncOp(table, "insert", 1)

	// Notify observers on the bare table route and on the insert route
	// itself, at every level of the recursion — spec.md §4.3 step 5 says
	// "observers registered on the insert route and every ancestor-
	// equivalent route" fire for every write the insert performs, not
	// only the write that happens to land at the insert route's own
	// table. r is this call's ancestor-equivalent sub-route (e.g.
	// /carGeneral while recursing, /carCake/carGeneralLayer/carGeneral at
	// the top); spec.Route is the full route the caller passed to
	// Insert, which stays constant across the whole recursion.
	bareRoute := "/" + table
	d.bus.Notify(bareRoute, historyRow)
	insertRoute := spec.Route.Flat()
	if insertRoute != bareRoute {
		d.bus.Notify(insertRoute, historyRow)
	}
	if full := r.Flat(); full != bareRoute && full != insertRoute {
		d.bus.Notify(full, historyRow)
	}
	return newHash, nil
}
