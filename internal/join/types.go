// Package join materializes a rectangular view over a cake revision
// (spec.md §4.5) and layers filter/sort/select/setValue processes on top of
// it, lazily, as an ordered process stack. No GuildNet analog exists for
// this; the process-stack shape follows spec.md §9's re-architecture
// guidance to "represent as an ordered list of variant values" rather than
// a chain of interface-wrapped decorators.
package join

import (
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// Cell is one column's materialized value for one row, per spec.md §4.5
// step 3: a route, the value read from the store, and zero or more
// overrides layered on top by setValue.
type Cell struct {
	Route   string
	Value   any
	Inserts []any
}

// Effective returns the cell's current value: the latest override if any,
// else the materialized value.
func (c Cell) Effective() any {
	if n := len(c.Inserts); n > 0 {
		return c.Inserts[n-1]
	}
	return c.Value
}

// JoinRow is one slice's worth of cells, in selection column order.
type JoinRow struct {
	SliceID string
	Cells   []Cell
}

func (r JoinRow) hash() (string, error) {
	values := make([]any, len(r.Cells))
	for i, c := range r.Cells {
		values[i] = c.Effective()
	}
	return hashkit.CalcHash(rljson.Row{"sliceId": r.SliceID, "cells": values})
}

// JoinRows is the data a process stack entry carries: the rows materialized
// or produced by the previous process, plus their content hashes.
type JoinRows struct {
	Rows   []JoinRow
	Hashes []string
}

func hashRows(rows []JoinRow) (*JoinRows, error) {
	hashes := make([]string, len(rows))
	for i, r := range rows {
		h, err := r.hash()
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	return &JoinRows{Rows: rows, Hashes: hashes}, nil
}
