package join

import (
	"fmt"
	"strings"
)

// RowCount returns the number of rows in the current top of the stack.
func (j *Join) RowCount() int { return len(j.current().Data.Rows) }

// ColumnCount returns the number of columns in the current selection.
func (j *Join) ColumnCount() int { return len(j.current().Selection.Columns) }

// RowIndices returns every valid row index, 0..RowCount-1.
func (j *Join) RowIndices() []int {
	n := j.RowCount()
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Row returns the dense cell values (effective value, or nil when missing)
// for the row matching sliceID, or (nil, false) if no such row exists.
func (j *Join) Row(sliceID string) ([]any, bool) {
	for _, row := range j.current().Data.Rows {
		if row.SliceID == sliceID {
			return effectiveValues(row), true
		}
	}
	return nil, false
}

// Rows returns the dense 2-D view of every row, in row order.
func (j *Join) Rows() [][]any {
	data := j.current().Data
	out := make([][]any, len(data.Rows))
	for i, row := range data.Rows {
		out[i] = effectiveValues(row)
	}
	return out
}

func effectiveValues(row JoinRow) []any {
	out := make([]any, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.Effective()
	}
	return out
}

// ComponentRoutes returns the unique set of component-table segments
// addressed by the current selection, upper-cased and without refs.
func (j *Join) ComponentRoutes() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range j.colMeta {
		u := strings.ToUpper(m.componentTable)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// LayerRoutes returns the unique (layerTable, componentTable) pairs the
// current selection addresses.
func (j *Join) LayerRoutes() [][2]string {
	seen := map[[2]string]struct{}{}
	var out [][2]string
	for _, m := range j.colMeta {
		pair := [2]string{m.layerTable, m.componentTable}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		out = append(out, pair)
	}
	return out
}

// RowHashes returns the content hash of every row at the current top of the
// stack, in row order, usable as a stable fingerprint of the join's current
// data without exposing its internal JoinRows representation.
func (j *Join) RowHashes() []string {
	return append([]string(nil), j.current().Data.Hashes...)
}

// CakeRoute returns the join's cake table, failing if more than one route
// would be implied (always unique today since a Join anchors exactly one
// cake, kept as a query for API symmetry with spec.md §4.5).
func (j *Join) CakeRoute() (string, error) {
	if j.cakeKey == "" {
		return "", fmt.Errorf("%w: join has no cake", ErrCakeRouteNotUnique)
	}
	return j.cakeKey, nil
}
