// Package columns implements spec.md §4.4's column selection: an ordered,
// alias-unique list of routes a join materializes into rows. Not grounded
// on a specific teacher file — GuildNet has no column-projection concept —
// so this package is built directly from spec.md in the teacher's
// struct-with-ordered-slice style (c.f. its schema/config value objects).
package columns

import (
	"fmt"
	"regexp"

	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

var lowerCamelCase = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)

// Column is one projected cell of a join, per spec.md §4.4.
type Column struct {
	Key        string          `json:"key"`
	Route      string          `json:"route"`
	Alias      string          `json:"alias"`
	TitleShort string          `json:"titleShort"`
	TitleLong  string          `json:"titleLong"`
	Type       rljson.ColumnType `json:"type"`
	Hash       string          `json:"_hash"`
}

// NewColumn builds a Column and stamps its content hash.
func NewColumn(key, route, alias, titleShort, titleLong string, typ rljson.ColumnType) (Column, error) {
	if !lowerCamelCase.MatchString(alias) {
		return Column{}, fmt.Errorf("%w: alias %q must be lower-camel-case", ErrInvalidAlias, alias)
	}
	if !validRoute(route) {
		return Column{}, fmt.Errorf("%w: route %q must be lower-camel-case segments separated by /", ErrInvalidRoute, route)
	}
	c := Column{Key: key, Route: route, Alias: alias, TitleShort: titleShort, TitleLong: titleLong, Type: typ}
	h, err := hashkit.CalcHash(c.withoutHash())
	if err != nil {
		return Column{}, err
	}
	c.Hash = h
	return c, nil
}

func (c Column) withoutHash() rljson.Row {
	return rljson.Row{
		"key": c.Key, "route": c.Route, "alias": c.Alias,
		"titleShort": c.TitleShort, "titleLong": c.TitleLong, "type": string(c.Type),
	}
}

func validRoute(route string) bool {
	if route == "" {
		return false
	}
	seg := ""
	for _, r := range route + "/" {
		if r == '/' {
			if !lowerCamelCase.MatchString(seg) {
				return false
			}
			seg = ""
			continue
		}
		seg += string(r)
	}
	return true
}
