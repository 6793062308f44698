package multiedit

import (
	"context"

	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// Table naming resolves spec.md §4.7's unnamed table-naming question the
// same way §4.7's own EditHistoryManager example does for EditHistory
// ("registers an observer on <cakeKey>EditHistory"): every per-cake table
// this package owns is prefixed with the cake's table name.
func editTable(cakeKey string) string       { return cakeKey + "Edit" }
func multiEditTable(cakeKey string) string  { return cakeKey + "MultiEdit" }
func editHistoryTable(cakeKey string) string { return cakeKey + "EditHistory" }

func ensureTable(ctx context.Context, gw storage.Gateway, table string, kind rljson.Kind) error {
	exists, err := gw.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return gw.CreateOrExtendTable(ctx, rljson.TableCfg{Table: table, Kind: kind})
}

func writeHashed(ctx context.Context, gw storage.Gateway, table string, row rljson.Row) (rljson.Row, error) {
	hashed, err := hashkit.WithHash(row)
	if err != nil {
		return nil, err
	}
	if err := gw.Write(ctx, rljson.Document{table: {Data: []rljson.Row{hashed}}}); err != nil {
		return nil, err
	}
	return hashed, nil
}
