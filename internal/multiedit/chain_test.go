package multiedit

import (
	"context"
	"errors"
	"testing"

	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/pkg/rljson"
)

func TestResolveChainReturnsEditsRootFirst(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	if err := ensureChainTables(ctx, gw, "carCake"); err != nil {
		t.Fatal(err)
	}
	bus := notify.New()
	p0 := newProcessor(db, gw, bus, fixedClock(), "carCake", cakeRef)

	p1, err := p0.Apply(ctx, rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	})
	if err != nil {
		t.Fatal(err)
	}
	p2, err := p1.Apply(ctx, rljson.Edit{Name: "sortByBrand", Type: rljson.EditSort, Data: brandSort()})
	if err != nil {
		t.Fatal(err)
	}

	edits, err := resolveChain(ctx, gw, "carCake", p2.Head())
	if err != nil {
		t.Fatal(err)
	}
	if len(edits) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(edits))
	}
	if edits[0].Name != "select" || edits[1].Name != "sortByBrand" {
		t.Fatalf("expected root-first order [select, sortByBrand], got [%s, %s]", edits[0].Name, edits[1].Name)
	}
}

func TestResolveChainUnknownRefFails(t *testing.T) {
	ctx := context.Background()
	_, gw, _ := seedCake(t)
	if err := ensureChainTables(ctx, gw, "carCake"); err != nil {
		t.Fatal(err)
	}
	_, err := resolveChain(ctx, gw, "carCake", "sha256-does-not-exist")
	if !errors.Is(err, ErrEditHistoryNotFound) {
		t.Fatalf("expected ErrEditHistoryNotFound, got %v", err)
	}
}
