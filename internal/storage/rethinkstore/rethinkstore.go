// Package rethinkstore is a Gateway backed by a RethinkDB cluster, grounded
// on the teacher's internal/db.Manager: one physical database per store
// instance, a _schemas meta-table tracking TableCfg, changefeeds exposed for
// notification wiring.
package rethinkstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// Store is a RethinkDB-backed Gateway.
type Store struct {
	sess *r.Session
	db   string
}

// Connect opens a session against addr (host:port) and ensures the named
// logical database exists. addr defaults to the RETHINKDB_ADDR env var,
// then localhost:28015, matching the teacher's AutoDiscoverAddr fallback
// chain minus the Kubernetes-service-discovery branch (handled separately
// by internal/sync/discovery for peer lookup, not storage).
func Connect(ctx context.Context, database string) (*Store, error) {
	addr := strings.TrimSpace(os.Getenv("RETHINKDB_ADDR"))
	if addr == "" {
		addr = "127.0.0.1:28015"
	}
	opts := r.ConnectOpts{
		Address:      addr,
		InitialCap:   5,
		MaxOpen:      20,
		Timeout:      5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	if u := os.Getenv("RETHINKDB_USER"); u != "" {
		opts.Username = u
	}
	if p := os.Getenv("RETHINKDB_PASS"); p != "" {
		opts.Password = p
	}
	sess, err := r.Connect(opts)
	if err != nil {
		return nil, err
	}
	s := &Store{sess: sess, db: database}
	if err := s.ensureDatabase(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureDatabase(ctx context.Context) error {
	cur, err := r.DBList().Run(s.sess)
	if err != nil {
		return err
	}
	defer cur.Close()
	var dbs []string
	if err := cur.All(&dbs); err != nil {
		return err
	}
	for _, d := range dbs {
		if d == s.db {
			return s.ensureSchemasTable()
		}
	}
	if _, err := r.DBCreate(s.db).RunWrite(s.sess); err != nil {
		return err
	}
	return s.ensureSchemasTable()
}

func (s *Store) ensureSchemasTable() error {
	if _, err := r.DB(s.db).TableCreate("_schemas").RunWrite(s.sess); err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

// Close shuts down the RethinkDB session.
func (s *Store) Close() error {
	if s == nil || s.sess == nil {
		return nil
	}
	return s.sess.Close()
}

var _ storage.Gateway = (*Store)(nil)

func (s *Store) CreateOrExtendTable(ctx context.Context, cfg rljson.TableCfg) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := s.loadCfg(cfg.Table)
	if err == nil {
		if existing.Kind != cfg.Kind {
			return fmt.Errorf("rethinkstore: table %q already has kind %q, cannot become %q", cfg.Table, existing.Kind, cfg.Kind)
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
	} else {
		if _, err := r.DB(s.db).TableCreate(cfg.Table, r.TableCreateOpts{PrimaryKey: hashkit.HashField}).RunWrite(s.sess); err != nil && !strings.Contains(err.Error(), "already exists") {
			return err
		}
	}
	_, err = r.DB(s.db).Table("_schemas").Insert(schemaDoc(cfg), r.InsertOpts{Conflict: "replace"}).RunWrite(s.sess)
	return err
}

type schemaRow struct {
	Table   string             `rethinkdb:"id"`
	Kind    rljson.Kind        `rethinkdb:"kind"`
	Columns []rljson.ColumnCfg `rethinkdb:"columns"`
}

func schemaDoc(cfg rljson.TableCfg) schemaRow {
	return schemaRow{Table: cfg.Table, Kind: cfg.Kind, Columns: cfg.Columns}
}

func (s *Store) loadCfg(table string) (rljson.TableCfg, error) {
	cur, err := r.DB(s.db).Table("_schemas").Get(table).Run(s.sess)
	if err != nil {
		return rljson.TableCfg{}, err
	}
	defer cur.Close()
	var row schemaRow
	if err := cur.One(&row); err != nil {
		if errors.Is(err, r.ErrEmptyResult) {
			return rljson.TableCfg{}, fmt.Errorf("%w: %q", storage.ErrTableNotFound, table)
		}
		return rljson.TableCfg{}, err
	}
	return rljson.TableCfg{Table: row.Table, Kind: row.Kind, Columns: row.Columns}, nil
}

func (s *Store) Write(ctx context.Context, data rljson.Document) error {
	for table, td := range data {
		if _, err := s.loadCfg(table); err != nil {
			return err
		}
		if len(td.Data) == 0 {
			continue
		}
		docs := make([]rljson.Row, 0, len(td.Data))
		for _, row := range td.Data {
			if h, _ := row[hashkit.HashField].(string); h == "" {
				return fmt.Errorf("rethinkstore: row for table %q has no %s", table, hashkit.HashField)
			}
			docs = append(docs, withIDAlias(row))
		}
		if _, err := r.DB(s.db).Table(table).Insert(docs, r.InsertOpts{Conflict: "replace"}).RunWrite(s.sess); err != nil {
			return err
		}
	}
	return nil
}

// withIDAlias copies the content hash into RethinkDB's required "id" primary
// key field without disturbing the original "_hash" field callers expect
// back out of ReadRows/Dump.
func withIDAlias(row rljson.Row) rljson.Row {
	out := make(rljson.Row, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	out["id"] = row[hashkit.HashField]
	return out
}

func stripIDAlias(row rljson.Row) rljson.Row {
	out := make(rljson.Row, len(row))
	for k, v := range row {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Store) DumpTable(ctx context.Context, table string) (rljson.Document, error) {
	cfg, err := s.loadCfg(table)
	if err != nil {
		return nil, err
	}
	cur, err := r.DB(s.db).Table(table).Run(s.sess)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var raw []rljson.Row
	if err := cur.All(&raw); err != nil {
		return nil, err
	}
	rows := make([]rljson.Row, len(raw))
	for i, row := range raw {
		rows[i] = stripIDAlias(row)
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
	cfg, err := s.loadCfg(table)
	if err != nil {
		return nil, err
	}
	term := r.DB(s.db).Table(table).Filter(func(row r.Term) r.Term {
		cond := r.Expr(true)
		for k, v := range where {
			cond = cond.And(row.Field(k).Eq(v))
		}
		return cond
	})
	cur, err := term.Run(s.sess)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var raw []rljson.Row
	if err := cur.All(&raw); err != nil {
		return nil, err
	}
	rows := make([]rljson.Row, len(raw))
	for i, row := range raw {
		rows[i] = stripIDAlias(row)
	}
	return rljson.Document{table: {Type: cfg.Kind, Data: rows}}, nil
}

func (s *Store) ContentType(ctx context.Context, table string) (rljson.Kind, error) {
	cfg, err := s.loadCfg(table)
	if err != nil {
		return "", err
	}
	return cfg.Kind, nil
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	_, err := s.loadCfg(table)
	if errors.Is(err, storage.ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) RawTableCfgs(ctx context.Context) ([]rljson.TableCfg, error) {
	cur, err := r.DB(s.db).Table("_schemas").Run(s.sess)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var rows []schemaRow
	if err := cur.All(&rows); err != nil {
		return nil, err
	}
	out := make([]rljson.TableCfg, len(rows))
	for i, row := range rows {
		out[i] = rljson.TableCfg{Table: row.Table, Kind: row.Kind, Columns: row.Columns}
	}
	return out, nil
}

// ChangeEvent is one changefeed entry delivered by Changes: a table's row
// before and after an insert, update or delete.
type ChangeEvent struct {
	Table  string
	Before rljson.Row
	After  rljson.Row
}

// Changes exposes a table's changefeed as a channel of ChangeEvents, plus a
// func that closes the feed. Nothing in this module subscribes to it; the
// catalog core's notifications come from internal/notify alone.
func (s *Store) Changes(ctx context.Context, table string) (<-chan ChangeEvent, func(), error) {
	cur, err := r.DB(s.db).Table(table).Changes(r.ChangesOpts{IncludeInitial: false}).Run(s.sess)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan ChangeEvent, 256)
	go func() {
		defer close(ch)
		defer cur.Close()
		type raw struct {
			NewVal rljson.Row `rethinkdb:"new_val"`
			OldVal rljson.Row `rethinkdb:"old_val"`
		}
		for {
			var chg raw
			if !cur.Next(&chg) {
				return
			}
			ev := ChangeEvent{Table: table}
			if chg.NewVal != nil {
				ev.After = stripIDAlias(chg.NewVal)
			}
			if chg.OldVal != nil {
				ev.Before = stripIDAlias(chg.OldVal)
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, func() { cur.Close() }, nil
}
