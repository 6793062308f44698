// Package memstore is an in-memory Gateway, dependency-free by design: it
// exists to back unit tests the way GuildNet's own demo Store backs its
// UI without a database.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

type table struct {
	cfg  rljson.TableCfg
	rows map[string]rljson.Row // keyed by "_hash"
	// order preserves insertion order for dump/readRows determinism.
	order []string
}

// Store is a minimal in-memory Gateway for demo/testing.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// New returns an empty Store.
func New() *Store {
	return &Store{tables: map[string]*table{}}
}

var _ storage.Gateway = (*Store)(nil)

func (s *Store) CreateOrExtendTable(ctx context.Context, cfg rljson.TableCfg) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tables[cfg.Table]
	if !ok {
		s.tables[cfg.Table] = &table{cfg: cfg, rows: map[string]rljson.Row{}}
		return nil
	}
	if existing.cfg.Kind != cfg.Kind {
		return fmt.Errorf("memstore: table %q already has kind %q, cannot become %q", cfg.Table, existing.cfg.Kind, cfg.Kind)
	}
	have := map[string]struct{}{}
	for _, c := range existing.cfg.Columns {
		have[c.Key] = struct{}{}
	}
	for _, c := range cfg.Columns {
		if _, ok := have[c.Key]; !ok {
			existing.cfg.Columns = append(existing.cfg.Columns, c)
		}
	}
	return nil
}

func (s *Store) Write(ctx context.Context, data rljson.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, td := range data {
		t, ok := s.tables[name]
		if !ok {
			return fmt.Errorf("%w: %q", storage.ErrTableNotFound, name)
		}
		for _, row := range td.Data {
			h, _ := row[hashkit.HashField].(string)
			if h == "" {
				return fmt.Errorf("memstore: row for table %q has no %s", name, hashkit.HashField)
			}
			if _, exists := t.rows[h]; exists {
				continue
			}
			t.rows[h] = row
			t.order = append(t.order, h)
		}
	}
	return nil
}

func (s *Store) Dump(ctx context.Context) (rljson.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := rljson.Document{}
	for name, t := range s.tables {
		doc[name] = rljson.TableData{Type: t.cfg.Kind, Data: snapshot(t)}
	}
	return doc, nil
}

func (s *Store) DumpTable(ctx context.Context, tableName string) (rljson.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrTableNotFound, tableName)
	}
	return rljson.Document{tableName: {Type: t.cfg.Kind, Data: snapshot(t)}}, nil
}

func (s *Store) ReadRows(ctx context.Context, tableName string, where rljson.Row) (rljson.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrTableNotFound, tableName)
	}
	var matched []rljson.Row
	for _, h := range t.order {
		row := t.rows[h]
		if rowMatches(row, where) {
			matched = append(matched, copyRow(row))
		}
	}
	return rljson.Document{tableName: {Type: t.cfg.Kind, Data: matched}}, nil
}

func (s *Store) ContentType(ctx context.Context, tableName string) (rljson.Kind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return "", fmt.Errorf("%w: %q", storage.ErrTableNotFound, tableName)
	}
	return t.cfg.Kind, nil
}

func (s *Store) TableExists(ctx context.Context, tableName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[tableName]
	return ok, nil
}

func (s *Store) RawTableCfgs(ctx context.Context) ([]rljson.TableCfg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rljson.TableCfg, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t.cfg)
	}
	return out, nil
}

func snapshot(t *table) []rljson.Row {
	out := make([]rljson.Row, 0, len(t.order))
	for _, h := range t.order {
		out = append(out, copyRow(t.rows[h]))
	}
	return out
}

func copyRow(row rljson.Row) rljson.Row {
	out := make(rljson.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func rowMatches(row, where rljson.Row) bool {
	for k, v := range where {
		if row[k] != v {
			return false
		}
	}
	return true
}
