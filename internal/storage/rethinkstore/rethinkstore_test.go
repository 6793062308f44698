package rethinkstore

import (
	"context"
	"os"
	"testing"

	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

// These tests require a live RethinkDB reachable at RETHINKDB_TEST_ADDR,
// mirroring the teacher's own untested-without-a-live-server RethinkDB code
// path (internal/db has no unit tests in the pack either).
func mustLiveAddr(t *testing.T) string {
	addr := os.Getenv("RETHINKDB_TEST_ADDR")
	if addr == "" {
		t.Skip("RETHINKDB_TEST_ADDR not set, skipping rethinkstore integration test")
	}
	return addr
}

func TestWriteAndReadRows(t *testing.T) {
	addr := mustLiveAddr(t)
	os.Setenv("RETHINKDB_ADDR", addr)
	ctx := context.Background()
	s, err := Connect(ctx, "catalog_test")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	cfg := rljson.TableCfg{Table: "carGeneral", Kind: rljson.KindComponents}
	if err := s.CreateOrExtendTable(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	row, err := hashkit.WithHash(rljson.Row{"brand": "Audi"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, rljson.Document{"carGeneral": {Data: []rljson.Row{row}}}); err != nil {
		t.Fatal(err)
	}
	doc, err := s.ReadRows(ctx, "carGeneral", rljson.Row{"brand": "Audi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc["carGeneral"].Data) != 1 {
		t.Fatalf("expected 1 matching row, got %d", len(doc["carGeneral"].Data))
	}
}
