package catalogdb

import (
	"context"
	"fmt"

	"github.com/rljson/catalog/internal/metrics"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

// Get performs spec.md §4.3's get() algorithm: resolve the route's root
// segment against where (honoring an "@ref" anchor if present), then
// recurse into the route's inferior (the next segment in), asking the
// root segment's content-kind controller which child hashes to follow
// (a cake's named layer, a layer's scoped or unscoped component set). The
// returned Document is the union of every table payload touched.
func (d *Db) Get(ctx context.Context, r route.Route, where rljson.Row) (rljson.Document, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	key := cacheKey(r.Flat(), where)
	if cached, ok := d.cache.get(key); ok {
		metrics.IncOp(r.Root().TableKey, "getCached", 1)
		return cached, nil
	}
	doc, err := d.get(ctx, r, where)
	if err != nil {
		return nil, err
	}
	d.cache.put(key, doc)
	metrics.IncOp(r.Root().TableKey, "get", 1)
	return doc, nil
}

func (d *Db) get(ctx context.Context, r route.Route, where rljson.Row) (rljson.Document, error) {
	seg := r.Root()
	kind, err := d.kindOf(ctx, seg.TableKey)
	if err != nil {
		return nil, err
	}
	ctrl, err := controllerFor(kind)
	if err != nil {
		return nil, err
	}

	effectiveWhere := rljson.Row{}
	for k, v := range where {
		effectiveWhere[k] = v
	}
	if seg.HasRef() {
		if seg.HasHistoryRef() {
			effectiveWhere["_hash"] = seg.Ref
		} else {
			ref, err := d.GetRefOfTimeId(ctx, seg.TableKey, seg.Ref)
			if err != nil {
				return nil, err
			}
			effectiveWhere["_hash"] = ref
		}
	}

	rowsDoc, err := d.gw.ReadRows(ctx, seg.TableKey, effectiveWhere)
	if err != nil {
		return nil, err
	}
	result := rljson.Document{}.Merge(rljson.Document{seg.TableKey: rowsDoc[seg.TableKey]})

	inferior, hasInferior := r.Inferior()
	if !hasInferior {
		return result, nil
	}
	childTable := inferior.Root().TableKey

	for _, row := range rowsDoc[seg.TableKey].Data {
		hashes, err := ctrl.childHashes(row, childTable, seg.SliceIDs)
		if err != nil {
			return nil, err
		}
		for _, childHash := range hashes {
			childDoc, err := d.get(ctx, inferior, rljson.Row{"_hash": childHash})
			if err != nil {
				return nil, err
			}
			result = result.Merge(childDoc)
		}
	}
	return result, nil
}
