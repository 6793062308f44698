// Package storage declares the Gateway contract the catalog core consumes
// (spec.md §4.2/§6.1) and hosts the three concrete drivers: memstore,
// sqlitestore, and rethinkstore.
package storage

import (
	"context"
	"errors"

	"github.com/rljson/catalog/pkg/rljson"
)

// ErrTableNotFound is returned by operations addressing a table that has
// never been created with CreateOrExtendTable.
var ErrTableNotFound = errors.New("storage: table not found")

// Where is an equality-match filter over column values, per readRows'
// "equality match on columns" contract.
type Where = rljson.Row

// Gateway is the storage driver contract the core depends on. It never
// interprets routes or hashes; it only persists and retrieves whole rows
// tagged by table and content-kind.
type Gateway interface {
	// CreateOrExtendTable registers a table schema, creating it if absent
	// or widening its declared columns if already present.
	CreateOrExtendTable(ctx context.Context, cfg rljson.TableCfg) error

	// Write persists the rows in data, keyed by table. Writing a row whose
	// hash already exists in its table is a no-op (hash-idempotent).
	Write(ctx context.Context, data rljson.Document) error

	// Dump returns every table's full contents.
	Dump(ctx context.Context) (rljson.Document, error)

	// DumpTable returns one table's full contents.
	DumpTable(ctx context.Context, table string) (rljson.Document, error)

	// ReadRows returns the rows of table matching an equality filter over
	// where's columns.
	ReadRows(ctx context.Context, table string, where Where) (rljson.Document, error)

	// ContentType returns the content-kind a table was registered with.
	ContentType(ctx context.Context, table string) (rljson.Kind, error)

	// TableExists reports whether a table has been registered.
	TableExists(ctx context.Context, table string) (bool, error)

	// RawTableCfgs returns the schema of every registered table.
	RawTableCfgs(ctx context.Context) ([]rljson.TableCfg, error)
}
