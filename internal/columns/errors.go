package columns

import "errors"

var (
	// ErrInvalidAlias is returned when an alias is empty, not lower-camel-
	// case, or collides with another column at construction time.
	ErrInvalidAlias = errors.New("columns: invalid or duplicate alias")
	// ErrInvalidRoute is returned when a route string fails the
	// lower-camel-case-segments-separated-by-/ grammar.
	ErrInvalidRoute = errors.New("columns: invalid route")
	// ErrColumnNotFound is returned by columnIndex when
	// throwIfNotExisting is set and no column matches.
	ErrColumnNotFound = errors.New("columns: column not found")
)
