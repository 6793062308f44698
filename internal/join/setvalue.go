package join

import "fmt"

// SetValue is spec.md §4.6's { route, value } pair: applied by attaching an
// override to the matching column's cell, never mutating the cell's
// original Value.
type SetValue struct {
	Route string
	Value any
}

// SetValue pushes a setValue process, appending value as an override on
// every row's cell whose route matches. Fails with ErrSetValueAmbiguous if
// no column or more than one column matches the route.
func (j *Join) SetValue(sv SetValue) (*Join, error) {
	top := j.current()
	matches := 0
	matchIdx := -1
	for i, c := range top.Selection.Columns {
		if c.Route == sv.Route {
			matches++
			matchIdx = i
		}
	}
	if matches != 1 {
		return nil, fmt.Errorf("%w: route %q matched %d columns", ErrSetValueAmbiguous, sv.Route, matches)
	}

	rows := make([]JoinRow, len(top.Data.Rows))
	for ri, row := range top.Data.Rows {
		cells := append([]Cell(nil), row.Cells...)
		cell := cells[matchIdx]
		cell.Inserts = append(append([]any(nil), cell.Inserts...), sv.Value)
		cells[matchIdx] = cell
		rows[ri] = JoinRow{SliceID: row.SliceID, Cells: cells}
	}
	data, err := hashRows(rows)
	if err != nil {
		return nil, err
	}

	clone := j.Clone()
	clone.stack = append(clone.stack, process{Type: "setValue", Instance: sv, Data: data, Selection: top.Selection})
	return clone, nil
}

// SetValues folds SetValue over a clone of j, applying each in order.
func (j *Join) SetValues(values []SetValue) (*Join, error) {
	cur := j
	for _, sv := range values {
		next, err := cur.SetValue(sv)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
