package join

import (
	"fmt"
	"strings"

	"github.com/rljson/catalog/internal/columns"
)

// ColumnFilter is one predicate of a RowFilter, per spec.md §4.6's
// per-kind operator tables.
type ColumnFilter struct {
	Route    string
	Kind     string // "number" | "string" | "boolean"
	Operator string
	Value    any
}

func (f ColumnFilter) matches(cellValue any) (bool, error) {
	switch f.Kind {
	case "number":
		a, aok := toFloat(cellValue)
		b, bok := toFloat(f.Value)
		if !aok || !bok {
			return false, nil
		}
		switch f.Operator {
		case "equals":
			return a == b, nil
		case "notEquals":
			return a != b, nil
		case "lessThan":
			return a < b, nil
		case "lessOrEqual":
			return a <= b, nil
		case "greaterThan":
			return a > b, nil
		case "greaterOrEqual":
			return a >= b, nil
		}
	case "string":
		a, aok := cellValue.(string)
		b, bok := f.Value.(string)
		if !aok || !bok {
			return false, nil
		}
		switch f.Operator {
		case "equals":
			return a == b, nil
		case "notEquals":
			return a != b, nil
		case "startsWith":
			return strings.HasPrefix(a, b), nil
		case "endsWith":
			return strings.HasSuffix(a, b), nil
		case "contains":
			return strings.Contains(a, b), nil
		}
	case "boolean":
		a, aok := cellValue.(bool)
		b, bok := f.Value.(bool)
		if !aok || !bok {
			return false, nil
		}
		switch f.Operator {
		case "equals":
			return a == b, nil
		case "notEquals":
			return a != b, nil
		}
	}
	return false, fmt.Errorf("join: unsupported filter operator %q for kind %q", f.Operator, f.Kind)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// RowFilter is spec.md §4.6's { columnFilters, operator } pair.
type RowFilter struct {
	ColumnFilters []ColumnFilter
	Operator      string // "and" | "or"
}

// Filter pushes a filter process onto the stack, producing a JoinRows
// restricted to rows matching rowFilter.
func (j *Join) Filter(rowFilter RowFilter) (*Join, error) {
	top := j.current()
	filtered, err := applyFilter(top.Data, top.Selection, rowFilter)
	if err != nil {
		return nil, err
	}
	clone := j.Clone()
	clone.stack = append(clone.stack, process{Type: "filter", Instance: rowFilter, Data: filtered, Selection: top.Selection})
	return clone, nil
}

func applyFilter(data *JoinRows, sel columns.Selection, rowFilter RowFilter) (*JoinRows, error) {
	colIdx := make([]int, len(rowFilter.ColumnFilters))
	for i, cf := range rowFilter.ColumnFilters {
		idx, err := sel.ColumnIndex(cf.Route, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFilterRouteNotInJoin, cf.Route)
		}
		colIdx[i] = idx
	}

	var kept []JoinRow
	var keptHashes []string
	switch rowFilter.Operator {
	case "or":
		for ri, row := range data.Rows {
			match := false
			for i, cf := range rowFilter.ColumnFilters {
				ok, err := cf.matches(row.Cells[colIdx[i]].Effective())
				if err != nil {
					return nil, err
				}
				if ok {
					match = true
					break
				}
			}
			if match {
				kept = append(kept, row)
				keptHashes = append(keptHashes, data.Hashes[ri])
			}
		}
	default: // "and"
		for ri, row := range data.Rows {
			match := true
			for i, cf := range rowFilter.ColumnFilters {
				ok, err := cf.matches(row.Cells[colIdx[i]].Effective())
				if err != nil {
					return nil, err
				}
				if !ok {
					match = false
					break
				}
			}
			if match {
				kept = append(kept, row)
				keptHashes = append(keptHashes, data.Hashes[ri])
			}
		}
	}
	return &JoinRows{Rows: kept, Hashes: keptHashes}, nil
}
