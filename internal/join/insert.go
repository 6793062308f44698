package join

import (
	"context"
	"fmt"

	"github.com/go-openapi/jsonpointer"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

// Insert implements spec.md §4.5's insert(): for every row carrying
// overrides, isolate the override path from the component's original tree,
// inject the override value, strip the stale hash, then group the rewritten
// components by cake layer and produce one catalogdb.InsertSpec per touched
// layer. Untouched layers and untouched sliceIds pass through as their
// existing hash, so committing the result only rewrites what changed.
func (j *Join) Insert() ([]catalogdb.InsertSpec, error) {
	top := j.current()

	touchedLayers := map[string]bool{}
	for _, row := range top.Data.Rows {
		for ci, cell := range row.Cells {
			if len(cell.Inserts) > 0 {
				touchedLayers[j.colMeta[ci].layerTable] = true
			}
		}
	}
	if len(touchedLayers) == 0 {
		return nil, nil
	}

	var specs []catalogdb.InsertSpec
	for layerTable := range touchedLayers {
		componentTable := ""
		layerValue := rljson.Row{}
		for _, row := range top.Data.Rows {
			changed := false
			for ci, cell := range row.Cells {
				meta := j.colMeta[ci]
				if meta.layerTable != layerTable {
					continue
				}
				componentTable = meta.componentTable
				if len(cell.Inserts) > 0 {
					changed = true
				}
			}
			add := j.layerAdds[layerTable]
			existingHash, present := add[row.SliceID]
			if !changed {
				if present {
					layerValue[row.SliceID] = existingHash
				}
				continue
			}
			patched, err := isolateInject(j.componentCache, componentTable, existingHash, row, layerTable, j.colMeta)
			if err != nil {
				return nil, err
			}
			layerValue[row.SliceID] = patched
		}

		cakeValue := rljson.Row{}
		for lt, h := range j.layers {
			if lt != layerTable {
				cakeValue[lt] = h
			}
		}
		cakeValue[layerTable] = layerValue

		r, err := route.FromFlat(fmt.Sprintf("/%s/%s/%s", j.cakeKey, layerTable, componentTable))
		if err != nil {
			return nil, err
		}
		specs = append(specs, catalogdb.InsertSpec{Route: r, Value: cakeValue})
	}
	return specs, nil
}

// Publish commits Insert()'s specs via db, one per touched layer, in turn,
// and returns the resulting cake hash (the final spec's). Each spec after
// the first has the layer hashes written by the specs before it folded
// into its cake value, so the final cake carries every touched layer's
// change.
func (j *Join) Publish(ctx context.Context) (string, error) {
	specs, err := j.Insert()
	if err != nil {
		return "", err
	}
	if len(specs) == 0 {
		return j.cakeRef, nil
	}
	var cakeHash string
	written := map[string]string{}
	for _, spec := range specs {
		for lt, h := range written {
			spec.Value[lt] = h
		}
		result, err := j.db.Insert(ctx, spec)
		if err != nil {
			return "", err
		}
		cakeHash = result.Hashes[j.cakeKey]
		layerTable := spec.Route.Segments[1].TableKey
		written[layerTable] = result.Hashes[layerTable]
	}
	return cakeHash, nil
}

// isolateInject rebuilds component's JSON tree with row's overrides applied
// via an RFC 6901 JSON Pointer built from each cell's propertyKey, then
// strips the stale _hash so the caller re-hashes the patched row.
func isolateInject(cache map[string]rljson.Row, componentTable, originalHash string, row JoinRow, layerTable string, metas []colMeta) (rljson.Row, error) {
	var base rljson.Row
	if originalHash != "" {
		if orig, ok := cache[componentTable+"@"+originalHash]; ok {
			base = rljson.Row{}
			for k, v := range orig {
				base[k] = v
			}
		}
	}
	if base == nil {
		base = rljson.Row{}
	}
	delete(base, hashkit.HashField)

	for ci, cell := range row.Cells {
		meta := metas[ci]
		if meta.layerTable != layerTable || len(cell.Inserts) == 0 {
			continue
		}
		value := cell.Inserts[len(cell.Inserts)-1]
		if meta.propertyKey == "" {
			if row, ok := value.(rljson.Row); ok {
				base = row
				delete(base, hashkit.HashField)
			}
			continue
		}
		ptr, err := jsonpointer.New("/" + meta.propertyKey)
		if err != nil {
			return nil, err
		}
		if _, err := ptr.Set(base, value); err != nil {
			return nil, err
		}
	}
	return base, nil
}
