package columns

import (
	"fmt"

	"github.com/rljson/catalog/pkg/hashkit"
)

// Selection is an ordered, alias-unique list of Columns plus their stable
// routeHashes index, per spec.md §4.4.
type Selection struct {
	Columns     []Column
	RouteHashes []string
}

// NewSelection validates alias uniqueness and computes routeHashes.
func NewSelection(cols []Column) (Selection, error) {
	seen := map[string]struct{}{}
	hashes := make([]string, len(cols))
	for i, c := range cols {
		if _, dup := seen[c.Alias]; dup {
			return Selection{}, fmt.Errorf("%w: %q", ErrInvalidAlias, c.Alias)
		}
		seen[c.Alias] = struct{}{}
		h, err := hashkit.CalcHash(c.Route)
		if err != nil {
			return Selection{}, err
		}
		hashes[i] = h
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return Selection{Columns: out, RouteHashes: hashes}, nil
}

// FromRoutes builds a Selection from bare routes, deriving key/alias from
// the route's leaf segment. Duplicate routes are dropped; alias collisions
// between distinct routes are resolved by appending a numeric suffix
// ("brand", "brand2", "brand3", ...).
func FromRoutes(routes []string) (Selection, error) {
	var cols []Column
	seenRoutes := map[string]struct{}{}
	aliasCount := map[string]int{}
	for _, route := range routes {
		if _, dup := seenRoutes[route]; dup {
			continue
		}
		seenRoutes[route] = struct{}{}
		base := leafSegment(route)
		alias := base
		aliasCount[base]++
		if n := aliasCount[base]; n > 1 {
			alias = fmt.Sprintf("%s%d", base, n)
		}
		col, err := NewColumn(base, route, alias, base, base, "")
		if err != nil {
			return Selection{}, err
		}
		cols = append(cols, col)
	}
	return NewSelection(cols)
}

func leafSegment(route string) string {
	last := route
	for i := len(route) - 1; i >= 0; i-- {
		if route[i] == '/' {
			last = route[i+1:]
			break
		}
	}
	return last
}

// ColumnIndex resolves key (an alias, a route, a routeHash, or an int index)
// to its position in the selection. It returns -1, nil when not found
// unless throwIfNotExisting is set, in which case it returns an error.
func (s Selection) ColumnIndex(key any, throwIfNotExisting bool) (int, error) {
	notFound := func() (int, error) {
		if throwIfNotExisting {
			return -1, fmt.Errorf("%w: %v", ErrColumnNotFound, key)
		}
		return -1, nil
	}
	switch v := key.(type) {
	case int:
		if v < 0 || v >= len(s.Columns) {
			return notFound()
		}
		return v, nil
	case string:
		for i, h := range s.RouteHashes {
			if h == v {
				return i, nil
			}
		}
		for i, c := range s.Columns {
			if c.Alias == v || c.Route == v {
				return i, nil
			}
		}
		return notFound()
	default:
		return notFound()
	}
}

// Alias returns the alias of the column at i.
func (s Selection) Alias(i int) string { return s.Columns[i].Alias }

// Merge unions selections by route, preserving the alias of each route's
// first occurrence and appending columns new to later selections at the end.
func Merge(selections []Selection) (Selection, error) {
	var cols []Column
	seen := map[string]struct{}{}
	for _, sel := range selections {
		for _, c := range sel.Columns {
			if _, dup := seen[c.Route]; dup {
				continue
			}
			seen[c.Route] = struct{}{}
			cols = append(cols, c)
		}
	}
	return NewSelection(cols)
}
