package sqlitestore

import (
	"context"
	"testing"

	"github.com/rljson/catalog/pkg/hashkit"
	"github.com/rljson/catalog/pkg/rljson"
)

func TestCreateWriteDumpRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	cfg := rljson.TableCfg{Table: "carGeneral", Kind: rljson.KindComponents, Columns: []rljson.ColumnCfg{{Key: "brand", Type: rljson.ColString}}}
	if err := s.CreateOrExtendTable(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	row, err := hashkit.WithHash(rljson.Row{"brand": "Audi"})
	if err != nil {
		t.Fatal(err)
	}
	doc := rljson.Document{"carGeneral": {Data: []rljson.Row{row}}}
	if err := s.Write(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, doc); err != nil {
		t.Fatal("second write should be idempotent, got", err)
	}
	dumped, err := s.DumpTable(ctx, "carGeneral")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(dumped["carGeneral"].Data); got != 1 {
		t.Fatalf("expected 1 row, got %d", got)
	}
	if dumped["carGeneral"].Type != rljson.KindComponents {
		t.Fatalf("unexpected content type %q", dumped["carGeneral"].Type)
	}
}

func TestCreateOrExtendTablePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := rljson.TableCfg{Table: "carGeneral", Kind: rljson.KindComponents}
	if err := s.CreateOrExtendTable(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	exists, err := s2.TableExists(ctx, "carGeneral")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected table to persist across reopen")
	}
}
