package join

import (
	"context"
	"testing"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/columns"
	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage/memstore"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

func seedCake(t *testing.T) (*catalogdb.Db, string) {
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
	db := catalogdb.New(gw, notify.New())
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
	return db, result.Hashes["carCake"]
}

func newCarSelection(t *testing.T) columns.Selection {
	t.Helper()
	sel, err := columns.FromRoutes([]string{
		"carGeneralLayer/carGeneral/brand",
		"carGeneralLayer/carGeneral/doors",
	})
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func TestMaterializeProducesOneRowPerSliceId(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)

	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	if j.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", j.RowCount())
	}
	if j.ColumnCount() != 2 {
		t.Fatalf("expected 2 columns, got %d", j.ColumnCount())
	}
	row, ok := j.Row("VIN5")
	if !ok {
		t.Fatal("expected VIN5 row")
	}
	if row[0] != "Porsche" {
		t.Fatalf("expected Porsche brand, got %v", row[0])
	}
}

func TestFilterAndRequiresAllColumnsMatch(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)
	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	filtered, err := j.Filter(RowFilter{
		Operator: "and",
		ColumnFilters: []ColumnFilter{
			{Route: "carGeneralLayer/carGeneral/doors", Kind: "number", Operator: "equals", Value: float64(2)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.RowCount() != 1 {
		t.Fatalf("expected 1 matching row, got %d", filtered.RowCount())
	}
}

func TestFilterUnknownRouteFails(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)
	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	_, err = j.Filter(RowFilter{Operator: "and", ColumnFilters: []ColumnFilter{{Route: "nope", Kind: "string", Operator: "equals", Value: "x"}}})
	if err == nil {
		t.Fatal("expected ErrFilterRouteNotInJoin")
	}
}

func TestSortOrdersBySpecifiedColumn(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)
	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	sorted, err := j.Sort(RowSort{{Route: "carGeneralLayer/carGeneral/brand", Descending: false}})
	if err != nil {
		t.Fatal(err)
	}
	rows := sorted.Rows()
	if rows[0][0] != "Mercedes Benz" || rows[1][0] != "Porsche" {
		t.Fatalf("expected ascending brand order, got %v then %v", rows[0][0], rows[1][0])
	}
}

func TestSetValueThenInsertProducesLayerPatch(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)
	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	patched, err := j.SetValue(SetValue{Route: "carGeneralLayer/carGeneral/brand", Value: "Audi"})
	if err != nil {
		t.Fatal(err)
	}
	specs, err := patched.Insert()
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected one insert spec for the touched layer, got %d", len(specs))
	}
	newRef, err := patched.Publish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if newRef == "" || newRef == cakeRef {
		t.Fatalf("expected a new cake hash distinct from the original, got %q", newRef)
	}
}

func TestSetValueAmbiguousRoute(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)
	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	_, err = j.SetValue(SetValue{Route: "nope", Value: "x"})
	if err == nil {
		t.Fatal("expected ErrSetValueAmbiguous")
	}
}

func TestCloneIsolatesProcessStack(t *testing.T) {
	ctx := context.Background()
	db, cakeRef := seedCake(t)
	sel := newCarSelection(t)
	j, err := Materialize(ctx, db, sel, "carCake", cakeRef)
	if err != nil {
		t.Fatal(err)
	}
	clone := j.Clone()
	sorted, err := clone.Sort(RowSort{{Route: "carGeneralLayer/carGeneral/brand"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(j.stack) != 1 {
		t.Fatalf("expected original stack untouched, got depth %d", len(j.stack))
	}
	if len(sorted.stack) != 2 {
		t.Fatalf("expected clone's stack to grow, got depth %d", len(sorted.stack))
	}
}
