package catalogdb

import (
	"fmt"

	"github.com/rljson/catalog/pkg/rljson"
)

// controller specializes insert decomposition per content-kind, per
// spec.md §4.3 step 2 ("Controllers specialize reads for components,
// layers, cakes, sliceIds").
type controller interface {
	kind() rljson.Kind

	// decompose splits a caller-supplied value into the nested child values
	// that must be inserted (recursively) into childTable before this
	// node's own row can be built, keyed by the field they occupy in value.
	// Entries whose value is already a hash string (caller pre-resolved the
	// child) are returned in passthrough instead.
	decompose(childTable string, value rljson.Row) (children map[string]rljson.Row, passthrough map[string]string, err error)

	// build assembles this node's final, hashable row from the original
	// value and the hashes resolved for every child decompose returned.
	build(value rljson.Row, resolved map[string]string) (rljson.Row, error)

	// childHashes returns the content hashes get() should recurse into for
	// childTable given this node's already-resolved row, honoring sliceIDs
	// as a scoping filter when non-empty (route segment "(sliceId,...)").
	childHashes(row rljson.Row, childTable string, sliceIDs []string) ([]string, error)
}

func refColumn(table string) string { return table + "Ref" }

// asStringMap tolerates both the in-process map[string]string a controller
// just built and the map[string]any a JSON round trip through a storage
// driver produces.
func asStringMap(v any) (map[string]string, bool) {
	switch m := v.(type) {
	case map[string]string:
		return m, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// componentController: components are always leaves; nothing to decompose.
type componentController struct{}

func (componentController) kind() rljson.Kind { return rljson.KindComponents }

func (componentController) decompose(string, rljson.Row) (map[string]rljson.Row, map[string]string, error) {
	return nil, nil, nil
}

func (componentController) build(value rljson.Row, _ map[string]string) (rljson.Row, error) {
	return value, nil
}

func (componentController) childHashes(rljson.Row, string, []string) ([]string, error) {
	return nil, nil
}

// sliceIdsController: leaf-shaped like components, but its value is an
// "add" list rather than a raw record.
type sliceIdsController struct{}

func (sliceIdsController) kind() rljson.Kind { return rljson.KindSliceIds }

func (sliceIdsController) decompose(string, rljson.Row) (map[string]rljson.Row, map[string]string, error) {
	return nil, nil, nil
}

func (sliceIdsController) build(value rljson.Row, _ map[string]string) (rljson.Row, error) {
	if _, ok := value["add"]; !ok {
		return nil, fmt.Errorf("catalogdb: sliceIds insert value missing %q", "add")
	}
	return value, nil
}

func (sliceIdsController) childHashes(rljson.Row, string, []string) ([]string, error) {
	return nil, nil
}

// layerController: value is a map from sliceId to either a nested component
// value (needs recursion) or an already-resolved component hash.
type layerController struct{}

func (layerController) kind() rljson.Kind { return rljson.KindLayers }

func (layerController) decompose(childTable string, value rljson.Row) (map[string]rljson.Row, map[string]string, error) {
	children := map[string]rljson.Row{}
	passthrough := map[string]string{}
	for sliceID, raw := range value {
		if sliceID == "sliceIdsRef" {
			passthrough[sliceID] = fmt.Sprint(raw)
			continue
		}
		switch v := raw.(type) {
		case string:
			passthrough[sliceID] = v
		case map[string]any:
			children[sliceID] = rljson.Row(v)
		default:
			return nil, nil, fmt.Errorf("catalogdb: layer value for slice %q is neither a %s hash nor an object", sliceID, childTable)
		}
	}
	return children, passthrough, nil
}

func (layerController) build(value rljson.Row, resolved map[string]string) (rljson.Row, error) {
	add := map[string]string{}
	for k, v := range resolved {
		if k == "sliceIdsRef" {
			continue
		}
		add[k] = v
	}
	row := rljson.Row{"add": add}
	if ref, ok := resolved["sliceIdsRef"]; ok {
		row["sliceIdsRef"] = ref
	}
	return row, nil
}

// childHashes returns the component hashes in this layer's "add" map,
// restricted to sliceIDs when the caller scoped the route segment with
// "(sliceId,sliceId)".
func (layerController) childHashes(row rljson.Row, childTable string, sliceIDs []string) ([]string, error) {
	add, ok := asStringMap(row["add"])
	if !ok {
		return nil, fmt.Errorf("catalogdb: layer row has no usable %q map", "add")
	}
	if len(sliceIDs) == 0 {
		out := make([]string, 0, len(add))
		for _, h := range add {
			out = append(out, h)
		}
		return out, nil
	}
	out := make([]string, 0, len(sliceIDs))
	for _, id := range sliceIDs {
		h, ok := add[id]
		if !ok {
			return nil, fmt.Errorf("%w: slice %q not in layer", ErrRefNotFound, id)
		}
		out = append(out, h)
	}
	return out, nil
}

// cakeController: value is keyed by literal layer-table names. Exactly the
// entry named after the route's current child segment recurses; any other
// entries are either pre-resolved hashes (pass through) or left untouched
// layers the caller didn't intend to change — the latter must already be a
// hash string or they are rejected.
type cakeController struct{}

func (cakeController) kind() rljson.Kind { return rljson.KindCakes }

func (cakeController) decompose(childTable string, value rljson.Row) (map[string]rljson.Row, map[string]string, error) {
	children := map[string]rljson.Row{}
	passthrough := map[string]string{}
	for key, raw := range value {
		if key == "sliceIdsRef" {
			passthrough[key] = fmt.Sprint(raw)
			continue
		}
		switch v := raw.(type) {
		case string:
			passthrough[key] = v
		case map[string]any:
			if key != childTable {
				return nil, nil, fmt.Errorf("catalogdb: cake value targets layer %q but route's next segment is %q", key, childTable)
			}
			children[key] = rljson.Row(v)
		default:
			return nil, nil, fmt.Errorf("catalogdb: cake value for layer %q is neither a hash nor an object", key)
		}
	}
	return children, passthrough, nil
}

func (cakeController) build(value rljson.Row, resolved map[string]string) (rljson.Row, error) {
	layers := map[string]string{}
	for k, v := range resolved {
		if k == "sliceIdsRef" {
			continue
		}
		layers[k] = v
	}
	row := rljson.Row{"layers": layers}
	if ref, ok := resolved["sliceIdsRef"]; ok {
		row["sliceIdsRef"] = ref
	}
	return row, nil
}

// childHashes returns the single layer hash named childTable in this
// cake's "layers" map.
func (cakeController) childHashes(row rljson.Row, childTable string, _ []string) ([]string, error) {
	layers, ok := asStringMap(row["layers"])
	if !ok {
		return nil, fmt.Errorf("catalogdb: cake row has no usable %q map", "layers")
	}
	h, ok := layers[childTable]
	if !ok {
		return nil, fmt.Errorf("%w: layer %q not in cake", ErrRefNotFound, childTable)
	}
	return []string{h}, nil
}

func controllerFor(kind rljson.Kind) (controller, error) {
	switch kind {
	case rljson.KindComponents:
		return componentController{}, nil
	case rljson.KindLayers:
		return layerController{}, nil
	case rljson.KindCakes:
		return cakeController{}, nil
	case rljson.KindSliceIds:
		return sliceIdsController{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}
