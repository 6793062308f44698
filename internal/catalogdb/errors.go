package catalogdb

import "errors"

// Error taxonomy per spec.md §4.3's Failure section. Wrapped with context
// via fmt.Errorf("%w: ...", ...) at each call site.
var (
	ErrTableNotFound   = errors.New("catalogdb: table not found")
	ErrUnsupportedKind = errors.New("catalogdb: unsupported content kind")
	ErrInvalidRoute    = errors.New("catalogdb: invalid route")
	ErrRefNotFound     = errors.New("catalogdb: ref not found")
)
