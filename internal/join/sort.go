package join

import "sort"

// SortKey is one entry of a RowSort: a column route and its direction.
// RowSort is a slice rather than a map because key order defines primary/
// secondary precedence (spec.md §4.6).
type SortKey struct {
	Route      string
	Descending bool
}

// RowSort is an ordered list of sort keys.
type RowSort []SortKey

// Sort pushes a sort process, stable-sorting rows by rowSort's keys in
// order, ties carried to the next key and finally broken by original
// position (stable).
func (j *Join) Sort(rowSort RowSort) (*Join, error) {
	top := j.current()
	colIdx := make([]int, len(rowSort))
	for i, k := range rowSort {
		idx, err := top.Selection.ColumnIndex(k.Route, true)
		if err != nil {
			return nil, err
		}
		colIdx[i] = idx
	}

	rows := append([]JoinRow(nil), top.Data.Rows...)
	hashes := append([]string(nil), top.Data.Hashes...)
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := rows[order[a]], rows[order[b]]
		for i, k := range rowSort {
			cmp := compareValues(ra.Cells[colIdx[i]].Effective(), rb.Cells[colIdx[i]].Effective())
			if cmp == 0 {
				continue
			}
			if k.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	sortedRows := make([]JoinRow, len(rows))
	sortedHashes := make([]string, len(rows))
	for i, idx := range order {
		sortedRows[i] = rows[idx]
		sortedHashes[i] = hashes[idx]
	}

	clone := j.Clone()
	clone.stack = append(clone.stack, process{
		Type: "sort", Instance: rowSort,
		Data:      &JoinRows{Rows: sortedRows, Hashes: sortedHashes},
		Selection: top.Selection,
	})
	return clone, nil
}

func compareValues(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	return 0
}
