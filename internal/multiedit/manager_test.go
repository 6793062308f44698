package multiedit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/join"
	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage/memstore"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

func brandSort() join.RowSort {
	return join.RowSort{{Route: "carGeneralLayer/carGeneral/brand"}}
}

func rebrandSetValue() join.SetValue {
	return join.SetValue{Route: "carGeneralLayer/carGeneral/brand", Value: "Audi"}
}

func seedCake(t *testing.T) (*catalogdb.Db, *memstore.Store, string) {
	t.Helper()
	ctx := context.Background()
	gw := memstore.New()
	for _, cfg := range []rljson.TableCfg{
		{Table: "carGeneral", Kind: rljson.KindComponents},
		{Table: "carGeneralLayer", Kind: rljson.KindLayers},
		{Table: "carCake", Kind: rljson.KindCakes},
	} {
		if err := gw.CreateOrExtendTable(ctx, cfg); err != nil {
			t.Fatal(err)
		}
	}
	bus := notify.New()
	db := catalogdb.New(gw, bus)
	r, err := route.FromFlat("/carCake/carGeneralLayer/carGeneral")
	if err != nil {
		t.Fatal(err)
	}
	value := rljson.Row{
		"carGeneralLayer": rljson.Row{
			"VIN5": rljson.Row{"brand": "Porsche", "doors": float64(2)},
			"VIN6": rljson.Row{"brand": "Mercedes Benz", "doors": float64(4)},
		},
	}
	result, err := db.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: value})
	if err != nil {
		t.Fatal(err)
	}
	return db, gw, result.Hashes["carCake"]
}

func fixedClock() func() time.Time {
	t := time.Unix(1700000000, 0)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestManagerEditRequiresCakeRefOnFirstEdit(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	selection := rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	}
	if _, err := m.Edit(ctx, "carCake", selection, nil); err == nil {
		t.Fatal("expected ErrCakeRefRequired without a cakeRef")
	}
	p, err := m.Edit(ctx, "carCake", selection, &cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	if p.Join().RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", p.Join().RowCount())
	}
}

func TestManagerForbidsCakeRefOnSubsequentEdit(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	selection := rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	}
	if _, err := m.Edit(ctx, "carCake", selection, &cakeRef); err != nil {
		t.Fatal(err)
	}

	sortEdit := rljson.Edit{
		Name: "sortByBrand", Type: rljson.EditSort,
		Data: brandSort(),
	}
	if _, err := m.Edit(ctx, "carCake", sortEdit, &cakeRef); err == nil {
		t.Fatal("expected ErrCakeRefForbidden on a non-first edit")
	}
	if _, err := m.Edit(ctx, "carCake", sortEdit, nil); err != nil {
		t.Fatal(err)
	}
}

func TestManagerFirstEditMustBeSelection(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	sortEdit := rljson.Edit{Name: "sortByBrand", Type: rljson.EditSort, Data: brandSort()}
	if _, err := m.Edit(ctx, "carCake", sortEdit, &cakeRef); err == nil {
		t.Fatal("expected ErrFirstEditNotSelection")
	}
}

func TestManagerEditHistoryRefReplaysChain(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	selection := rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	}
	p1, err := m.Edit(ctx, "carCake", selection, &cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := m.Edit(ctx, "carCake", rljson.Edit{Name: "sortByBrand", Type: rljson.EditSort, Data: brandSort()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Head() == p2.Head() {
		t.Fatal("expected the chain tip to advance after the second edit")
	}

	replayed, err := m.EditHistoryRef(ctx, "carCake", cakeRef, p2.Head())
	if err != nil {
		t.Fatal(err)
	}
	rows := replayed.Join().Rows()
	if rows[0][0] != "Mercedes Benz" || rows[1][0] != "Porsche" {
		t.Fatalf("expected replay to reproduce the sorted view, got %v then %v", rows[0][0], rows[1][0])
	}
}

func TestManagerEditHistoryRefRejectsMergeNode(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	selection := rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	}
	p1, err := m.Edit(ctx, "carCake", selection, &cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := m.Edit(ctx, "carCake", rljson.Edit{Name: "sortByBrand", Type: rljson.EditSort, Data: brandSort()}, nil)
	if err != nil {
		t.Fatal(err)
	}

	const mergeMultiEditRef = "merge-multi-edit-ref"
	if _, err := writeHashed(ctx, gw, editHistoryTable("carCake"), editHistoryToRow(rljson.EditHistory{
		TimeID:       "merge-time-id",
		DataRef:      "deadbeef",
		MultiEditRef: mergeMultiEditRef,
		Previous:     []string{p1.Head(), p2.Head()},
	})); err != nil {
		t.Fatal(err)
	}

	if _, err := m.EditHistoryRef(ctx, "carCake", cakeRef, mergeMultiEditRef); !errors.Is(err, ErrMergeNotSupported) {
		t.Fatalf("expected ErrMergeNotSupported, got %v", err)
	}
}

func TestManagerEditHistoryRefRejectsAmbiguousNode(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	selection := rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	}
	p1, err := m.Edit(ctx, "carCake", selection, &cakeRef)
	if err != nil {
		t.Fatal(err)
	}

	const dupeMultiEditRef = "dupe-multi-edit-ref"
	for _, timeID := range []string{"dupe-time-id-a", "dupe-time-id-b"} {
		if _, err := writeHashed(ctx, gw, editHistoryTable("carCake"), editHistoryToRow(rljson.EditHistory{
			TimeID: timeID, DataRef: "deadbeef", MultiEditRef: dupeMultiEditRef, Previous: []string{p1.Head()},
		})); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := m.EditHistoryRef(ctx, "carCake", cakeRef, dupeMultiEditRef); !errors.Is(err, ErrAmbiguousEditHistory) {
		t.Fatalf("expected ErrAmbiguousEditHistory, got %v", err)
	}
}

func TestManagerPublishCommitsSetValue(t *testing.T) {
	ctx := context.Background()
	db, gw, cakeRef := seedCake(t)
	bus := notify.New()
	m := NewManager(db, gw, bus, fixedClock())

	selection := rljson.Edit{
		Name: "select", Type: rljson.EditSelection,
		Data: []string{"carGeneralLayer/carGeneral/brand", "carGeneralLayer/carGeneral/doors"},
	}
	p, err := m.Edit(ctx, "carCake", selection, &cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	p, err = m.Edit(ctx, "carCake", rljson.Edit{
		Name: "rebrand", Type: rljson.EditSetValue,
		Data: rebrandSetValue(),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	newRef, err := p.Publish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if newRef == "" || newRef == cakeRef {
		t.Fatalf("expected a new cake hash distinct from %q, got %q", cakeRef, newRef)
	}
}
