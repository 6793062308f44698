package join

import (
	"fmt"
	"sort"
	"strings"
)

// parseColumnRoute splits a column route into its layer table, component
// table, and optional trailing property key. Column routes are always
// exactly two table hops deep (a column addresses one layer's one
// component kind) plus an optional scalar field, so this parses
// structurally by position rather than reusing route.FromFlat's generic
// grammar: that grammar can't tell a further table hop from a trailing
// property key by shape alone (both are just `[a-zA-Z][a-zA-Z0-9]*`), and
// here the depth is known up front.
func parseColumnRoute(route string) (colMeta, error) {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	switch len(parts) {
	case 2:
		return colMeta{layerTable: parts[0], componentTable: parts[1]}, nil
	case 3:
		return colMeta{layerTable: parts[0], componentTable: parts[1], propertyKey: parts[2]}, nil
	default:
		return colMeta{}, fmt.Errorf("%w: %q", ErrInvalidColumnRoute, route)
	}
}

// asStringMap tolerates both the in-process map[string]string a controller
// builds and the map[string]any a JSON round trip through a storage driver
// produces — the same tolerance catalogdb's controllers need for the same
// reason.
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

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
