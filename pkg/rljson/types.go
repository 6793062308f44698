// Package rljson defines the shared, duck-typed-in-the-original data model
// for the catalog store: tagged table payloads, table schemas, and the
// handful of well-known content-kinds every table belongs to.
package rljson

import "fmt"

// Kind is the content-kind a table declares, dispatched on by storage
// controllers instead of type-switching on an untyped "_type" tag.
type Kind string

const (
	KindComponents    Kind = "components"
	KindLayers        Kind = "layers"
	KindCakes         Kind = "cakes"
	KindSliceIds      Kind = "sliceIds"
	KindInsertHistory Kind = "insertHistory"
	KindEditHistory   Kind = "editHistory"
	KindMultiEdit     Kind = "multiEdit"
	KindEdit          Kind = "edit"
	KindTrees         Kind = "trees"
)

// ColumnType is one of the scalar/composite column types a TableCfg column
// may declare.
type ColumnType string

const (
	ColString    ColumnType = "string"
	ColNumber    ColumnType = "number"
	ColBoolean   ColumnType = "boolean"
	ColJSON      ColumnType = "json"
	ColJSONArray ColumnType = "jsonArray"
	ColJSONValue ColumnType = "jsonValue"
)

// ColumnCfg declares one column of a table's schema.
type ColumnCfg struct {
	Key  string     `json:"key"`
	Type ColumnType `json:"type"`
}

// TableCfg declares a table's schema and content-kind.
type TableCfg struct {
	Table   string      `json:"table"`
	Kind    Kind        `json:"kind"`
	Columns []ColumnCfg `json:"columns"`
}

// Validate checks that a TableCfg names a known kind and well-typed columns.
func (t TableCfg) Validate() error {
	switch t.Kind {
	case KindComponents, KindLayers, KindCakes, KindSliceIds, KindInsertHistory,
		KindEditHistory, KindMultiEdit, KindEdit, KindTrees:
	default:
		return fmt.Errorf("rljson: table %q has unsupported kind %q", t.Table, t.Kind)
	}
	for _, c := range t.Columns {
		switch c.Type {
		case ColString, ColNumber, ColBoolean, ColJSON, ColJSONArray, ColJSONValue:
		default:
			return fmt.Errorf("rljson: table %q column %q has unsupported type %q", t.Table, c.Key, c.Type)
		}
	}
	return nil
}

// Row is one generic, untyped record — a component, layer, cake, history
// row, or edit-chain node, all of which are JSON objects keyed by field
// name plus metadata fields prefixed with "_".
type Row = map[string]any

// TableData is the tagged payload for a single table: its declared kind
// plus the rows currently in scope for a query, mirroring the "{ _type,
// _data }" shape spec.md's data model uses on the wire.
type TableData struct {
	Type Kind  `json:"_type"`
	Data []Row `json:"_data"`
}

// Document is a multi-table payload: the unit returned by Gateway.dump,
// Gateway.readRows, and Db.Get.
type Document map[string]TableData

// Merge folds other into d, concatenating rows for tables present in both
// and copying over tables only present in other.
func (d Document) Merge(other Document) Document {
	if d == nil {
		d = Document{}
	}
	for table, data := range other {
		if existing, ok := d[table]; ok {
			existing.Data = append(existing.Data, data.Data...)
			d[table] = existing
		} else {
			d[table] = data
		}
	}
	return d
}
