package join

import (
	"github.com/rljson/catalog/internal/columns"
)

// Select pushes a select process, reordering/projecting columns by mapping
// each column of newSelection to an index in the current selection via its
// routeHash, then rehashing rows.
func (j *Join) Select(newSelection columns.Selection) (*Join, error) {
	top := j.current()
	idx := make([]int, len(newSelection.RouteHashes))
	for i, h := range newSelection.RouteHashes {
		found, err := top.Selection.ColumnIndex(h, true)
		if err != nil {
			return nil, err
		}
		idx[i] = found
	}

	rows := make([]JoinRow, len(top.Data.Rows))
	for ri, row := range top.Data.Rows {
		cells := make([]Cell, len(idx))
		for ci, srcIdx := range idx {
			cells[ci] = row.Cells[srcIdx]
		}
		rows[ri] = JoinRow{SliceID: row.SliceID, Cells: cells}
	}
	data, err := hashRows(rows)
	if err != nil {
		return nil, err
	}

	clone := j.Clone()
	clone.stack = append(clone.stack, process{Type: "select", Instance: newSelection, Data: data, Selection: newSelection})
	return clone, nil
}
