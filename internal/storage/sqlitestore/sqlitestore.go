// Package sqlitestore is a Gateway backed by a single sqlite file, rows
// stored as zstd-compressed JSON blobs keyed by (table, content hash).
// Grounded on the teacher's internal/localdb key/value store: one physical
// database, schema ensured at Open, no migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a sqlite-backed Gateway.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens/creates the sqlite database file under stateDir.
func Open(stateDir string) (*Store, error) {
	if stateDir == "" {
		stateDir = "."
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(stateDir, "catalog.sqlite")
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		// non-fatal
		_ = err
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS table_cfgs (table_name TEXT PRIMARY KEY, cfg BLOB NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS rows (table_name TEXT NOT NULL, hash TEXT NOT NULL, row BLOB NOT NULL, seq INTEGER PRIMARY KEY AUTOINCREMENT, UNIQUE(table_name, hash))`,
	}
	for _, s := range schema {
		if _, err := sqlDB.Exec(s); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("sqlitestore: init schema: %w", err)
		}
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &Store{db: sqlDB, enc: enc, dec: dec}, nil
}

// Close releases the underlying sqlite connection and codecs.
func (s *Store) Close() error {
	s.dec.Close()
	return s.db.Close()
}

var _ storage.Gateway = (*Store)(nil)

func (s *Store) CreateOrExtendTable(ctx context.Context, cfg rljson.TableCfg) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := s.loadCfg(ctx, cfg.Table)
	if err == nil {
		if existing.Kind != cfg.Kind {
			return fmt.Errorf("sqlitestore: table %q already has kind %q, cannot become %q", cfg.Table, existing.Kind, cfg.Kind)
		}
		have := map[string]struct{}{}
		for _, c := range existing.Columns {
			have[c.Key] = struct{}{}
		}
		for _, c := range cfg.Columns {
			if _, ok := have[c.Key]; !ok {
				existing.Columns = append(existing.Columns, c)
			}
		}
		cfg = existing
	} else if !errors.Is(err, storage.ErrTableNotFound) {
		return err
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO table_cfgs(table_name, cfg) VALUES(?, ?) ON CONFLICT(table_name) DO UPDATE SET cfg=excluded.cfg`,
		cfg.Table, s.enc.EncodeAll(b, nil))
	return err
}

func (s *Store) loadCfg(ctx context.Context, table string) (rljson.TableCfg, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cfg FROM table_cfgs WHERE table_name = ?`, table)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rljson.TableCfg{}, fmt.Errorf("%w: %q", storage.ErrTableNotFound, table)
		}
		return rljson.TableCfg{}, err
	}
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return rljson.TableCfg{}, err
	}
	var cfg rljson.TableCfg
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return rljson.TableCfg{}, err
	}
	return cfg, nil
}

func (s *Store) Write(ctx context.Context, data rljson.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for table, td := range data {
		if _, err := s.loadCfg(ctx, table); err != nil {
			return err
		}
		for _, row := range td.Data {
			h, _ := row[hashkit.HashField].(string)
			if h == "" {
				return fmt.Errorf("sqlitestore: row for table %q has no %s", table, hashkit.HashField)
			}
			b, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO rows(table_name, hash, row) VALUES(?, ?, ?) ON CONFLICT(table_name, hash) DO NOTHING`,
				table, h, s.enc.EncodeAll(b, nil)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *Store) scanRows(ctx context.Context, query string, args ...any) ([]rljson.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rljson.Row
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		raw, err := s.dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, err
		}
		var row rljson.Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) DumpTable(ctx context.Context, table string) (rljson.Document, error) {
	cfg, err := s.loadCfg(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := s.scanRows(ctx, `SELECT row FROM rows WHERE table_name = ? ORDER BY seq`, table)
	if err != nil {
		return nil, err
	}
	return rljson.Document{table: {Type: cfg.Kind, Data: rows}}, nil
}

func (s *Store) Dump(ctx context.Context) (rljson.Document, error) {
	cfgs, err := s.RawTableCfgs(ctx)
	if err != nil {
		return nil, err
	}
	doc := rljson.Document{}
	for _, cfg := range cfgs {
		td, err := s.DumpTable(ctx, cfg.Table)
		if err != nil {
			return nil, err
		}
		doc[cfg.Table] = td[cfg.Table]
	}
	return doc, nil
}

func (s *Store) ReadRows(ctx context.Context, table string, where rljson.Row) (rljson.Document, error) {
	cfg, err := s.loadCfg(ctx, table)
	if err != nil {
		return nil, err
	}
	allRows, err := s.scanRows(ctx, `SELECT row FROM rows WHERE table_name = ? ORDER BY seq`, table)
	if err != nil {
		return nil, err
	}
	var matched []rljson.Row
	for _, row := range allRows {
		if rowMatches(row, where) {
			matched = append(matched, row)
		}
	}
	return rljson.Document{table: {Type: cfg.Kind, Data: matched}}, nil
}

func (s *Store) ContentType(ctx context.Context, table string) (rljson.Kind, error) {
	cfg, err := s.loadCfg(ctx, table)
	if err != nil {
		return "", err
	}
	return cfg.Kind, nil
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	_, err := s.loadCfg(ctx, table)
	if errors.Is(err, storage.ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) RawTableCfgs(ctx context.Context) ([]rljson.TableCfg, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cfg FROM table_cfgs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rljson.TableCfg
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		raw, err := s.dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, err
		}
		var cfg rljson.TableCfg
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func rowMatches(row, where rljson.Row) bool {
	for k, v := range where {
		if row[k] != v {
			return false
		}
	}
	return true
}
