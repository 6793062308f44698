package catalogdb

import (
	"context"
	"fmt"

	"github.com/google/btree"

	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// historyItem is the btree element for a table's insert-history index,
// ordered by the numeric prefix of timeId (not lexicographic string order)
// per spec.md's getInsertHistory contract.
type historyItem struct {
	millis int64
	timeID string
	row    rljson.InsertHistoryRow
}

func lessHistoryItem(a, b historyItem) bool {
	if a.millis != b.millis {
		return a.millis < b.millis
	}
	return a.timeID < b.timeID
}

func (d *Db) historyIndex(ctx context.Context, table string) (*btree.BTreeG[historyItem], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx, ok := d.history[table]; ok {
		return idx, nil
	}
	idx := btree.NewG(32, lessHistoryItem)
	hTable := historyTable(table)
	exists, err := d.gw.TableExists(ctx, hTable)
	if err != nil {
		return nil, err
	}
	if exists {
		doc, err := d.gw.DumpTable(ctx, hTable)
		if err != nil {
			return nil, err
		}
		for _, row := range doc[hTable].Data {
			h := rljson.HistoryRowFromRow(table, row)
			millis, _ := hashkit.TimeIDMillis(h.TimeID)
			idx.ReplaceOrInsert(historyItem{millis: millis, timeID: h.TimeID, row: h})
		}
	}
	d.history[table] = idx
	return idx, nil
}

func (d *Db) indexHistoryRow(table string, h rljson.InsertHistoryRow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.history[table]
	if !ok {
		return
	}
	millis, _ := hashkit.TimeIDMillis(h.TimeID)
	idx.ReplaceOrInsert(historyItem{millis: millis, timeID: h.TimeID, row: h})
}

// GetInsertHistory dumps table's insert-history, ordered by the numeric
// prefix of timeId. Rows come back in ascending order unless sorted is set
// and ascending is false, which yields descending order.
func (d *Db) GetInsertHistory(ctx context.Context, table string, sorted, ascending bool) ([]rljson.InsertHistoryRow, error) {
	idx, err := d.historyIndex(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []rljson.InsertHistoryRow
	visit := func(it historyItem) bool {
		out = append(out, it.row)
		return true
	}
	if !sorted {
		idx.Ascend(visit)
		return out, nil
	}
	if ascending {
		idx.Ascend(visit)
	} else {
		idx.Descend(visit)
	}
	return out, nil
}

// GetInsertHistoryRowsByRef returns every history row written for ref
// (a content hash) in table.
func (d *Db) GetInsertHistoryRowsByRef(ctx context.Context, table, ref string) ([]rljson.InsertHistoryRow, error) {
	idx, err := d.historyIndex(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []rljson.InsertHistoryRow
	idx.Ascend(func(it historyItem) bool {
		if it.row.Ref == ref {
			out = append(out, it.row)
		}
		return true
	})
	return out, nil
}

// GetInsertHistoryRowByTimeId looks up the single history row written with
// the given timeId.
func (d *Db) GetInsertHistoryRowByTimeId(ctx context.Context, table, timeID string) (rljson.InsertHistoryRow, error) {
	idx, err := d.historyIndex(ctx, table)
	if err != nil {
		return rljson.InsertHistoryRow{}, err
	}
	millis, _ := hashkit.TimeIDMillis(timeID)
	item, ok := idx.Get(historyItem{millis: millis, timeID: timeID})
	if !ok {
		return rljson.InsertHistoryRow{}, fmt.Errorf("%w: timeId %q in table %q", ErrRefNotFound, timeID, table)
	}
	return item.row, nil
}

// GetTimeIdsForRef returns every timeId under which ref was written.
func (d *Db) GetTimeIdsForRef(ctx context.Context, table, ref string) ([]string, error) {
	rows, err := d.GetInsertHistoryRowsByRef(ctx, table, ref)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.TimeID
	}
	return out, nil
}

// GetRefOfTimeId resolves the content hash a given timeId points to.
func (d *Db) GetRefOfTimeId(ctx context.Context, table, timeID string) (string, error) {
	row, err := d.GetInsertHistoryRowByTimeId(ctx, table, timeID)
	if err != nil {
		return "", err
	}
	return row.Ref, nil
}
