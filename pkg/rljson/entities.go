package rljson

import (
	"fmt"
	"sort"

	"github.com/rljson/catalog/pkg/hashkit"
)

// InsertHistoryRow is the append-only record written for every insert,
// per spec.md §3 / §6.4.
type InsertHistoryRow struct {
	TimeID       string   `json:"timeId"`
	Ref          string   `json:"ref"`
	Route        string   `json:"route"`
	Previous     []string `json:"previous,omitempty"`
	Origin       string   `json:"origin,omitempty"`
	Acknowledged bool     `json:"acknowledged,omitempty"`
}

// RefColumn returns the "<table>Ref" column name an insert-history row for
// the given table carries its written hash under.
func RefColumn(table string) string { return table + "Ref" }

// ToRow renders the history row as a generic Row for storage, attaching the
// table-specific ref column.
func (h InsertHistoryRow) ToRow(table string) Row {
	row := Row{
		"timeId": h.TimeID,
		"route":  h.Route,
		RefColumn(table): h.Ref,
	}
	if len(h.Previous) > 0 {
		row["previous"] = h.Previous
	}
	if h.Origin != "" {
		row["origin"] = h.Origin
	}
	if h.Acknowledged {
		row["acknowledged"] = h.Acknowledged
	}
	return row
}

// HistoryRowFromRow reconstructs an InsertHistoryRow from a generic Row.
func HistoryRowFromRow(table string, row Row) InsertHistoryRow {
	h := InsertHistoryRow{}
	if v, ok := row["timeId"].(string); ok {
		h.TimeID = v
	}
	if v, ok := row["route"].(string); ok {
		h.Route = v
	}
	if v, ok := row[RefColumn(table)].(string); ok {
		h.Ref = v
	}
	if v, ok := row["previous"].([]string); ok {
		h.Previous = v
	} else if v, ok := row["previous"].([]any); ok {
		for _, p := range v {
			if s, ok := p.(string); ok {
				h.Previous = append(h.Previous, s)
			}
		}
	}
	if v, ok := row["origin"].(string); ok {
		h.Origin = v
	}
	if v, ok := row["acknowledged"].(bool); ok {
		h.Acknowledged = v
	}
	return h
}

// HashRow computes and attaches a content hash to a generic Row.
func HashRow(row Row) (Row, error) { return hashkit.WithHash(row) }

// NewLayer builds a Layer row: a mapping from sliceId to component hash,
// plus a reference to the SliceIds row enumerating the covered ids, hashed
// per spec.md §3 invariant 1.
func NewLayer(add map[string]string, sliceIDsRef string) (Row, error) {
	row := Row{"add": add}
	if sliceIDsRef != "" {
		row["sliceIdsRef"] = sliceIDsRef
	}
	return HashRow(row)
}

// NewCake builds a Cake row: a mapping from layer name to layer hash, plus
// a reference to a SliceIds row.
func NewCake(layers map[string]string, sliceIDsRef string) (Row, error) {
	row := Row{"layers": layers}
	if sliceIDsRef != "" {
		row["sliceIdsRef"] = sliceIDsRef
	}
	return HashRow(row)
}

// NewSliceIDs builds a SliceIds append row.
func NewSliceIDs(add []string, previousRef string) (Row, error) {
	row := Row{"add": add}
	if previousRef != "" {
		row["previousRef"] = previousRef
	}
	return HashRow(row)
}

// UnionSliceIDs computes the purely-additive union of slice ids visible
// across a set of SliceIds rows (spec.md §3 invariant 6).
func UnionSliceIDs(rows []Row) []string {
	set := map[string]struct{}{}
	for _, row := range rows {
		add, _ := row["add"].([]string)
		if add == nil {
			if raw, ok := row["add"].([]any); ok {
				for _, v := range raw {
					if s, ok := v.(string); ok {
						add = append(add, s)
					}
				}
			}
		}
		for _, id := range add {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EditActionType enumerates the four edit kinds spec.md §3/§4.7 define.
type EditActionType string

const (
	EditSelection EditActionType = "selection"
	EditFilter    EditActionType = "filter"
	EditSetValue  EditActionType = "setValue"
	EditSort      EditActionType = "sort"
)

// Edit is {name, action:{type,data}, _hash}.
type Edit struct {
	Name   string         `json:"name"`
	Type   EditActionType `json:"type"`
	Data   any            `json:"data"`
	Hash   string         `json:"_hash"`
}

// NewEdit computes and attaches the content hash for an Edit.
func NewEdit(name string, typ EditActionType, data any) (Edit, error) {
	row := Row{"name": name, "action": Row{"type": string(typ), "data": data}}
	h, err := hashkit.CalcHash(row)
	if err != nil {
		return Edit{}, fmt.Errorf("rljson: hash edit: %w", err)
	}
	return Edit{Name: name, Type: typ, Data: data, Hash: h}, nil
}

// MultiEdit is a singly-linked list node: {edit, previous, _hash}.
type MultiEdit struct {
	EditRef     string `json:"edit"`
	PreviousRef string `json:"previous,omitempty"`
	Hash        string `json:"_hash"`
}

// NewMultiEdit computes and attaches the content hash.
func NewMultiEdit(editRef, previousRef string) (MultiEdit, error) {
	row := Row{"edit": editRef}
	if previousRef != "" {
		row["previous"] = previousRef
	}
	h, err := hashkit.CalcHash(row)
	if err != nil {
		return MultiEdit{}, fmt.Errorf("rljson: hash multiEdit: %w", err)
	}
	return MultiEdit{EditRef: editRef, PreviousRef: previousRef, Hash: h}, nil
}

// EditHistory is a DAG node: {timeId, dataRef, multiEditRef, previous}.
type EditHistory struct {
	TimeID       string   `json:"timeId"`
	DataRef      string   `json:"dataRef"`
	MultiEditRef string   `json:"multiEditRef"`
	Previous     []string `json:"previous,omitempty"`
}
