package columns

import "testing"

func TestNewColumnRejectsBadAlias(t *testing.T) {
	if _, err := NewColumn("brand", "carGeneral/brand", "Brand", "Brand", "Brand", "string"); err == nil {
		t.Fatal("expected error for non-lower-camel-case alias")
	}
}

func TestNewSelectionRejectsDuplicateAlias(t *testing.T) {
	c1, err := NewColumn("brand", "a/brand", "brand", "", "", "string")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := NewColumn("brand", "b/brand", "brand", "", "", "string")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewSelection([]Column{c1, c2}); err == nil {
		t.Fatal("expected duplicate alias error")
	}
}

func TestFromRoutesDedupsAndResolvesAliasCollisions(t *testing.T) {
	sel, err := FromRoutes([]string{
		"carCake/carGeneralLayer/carGeneral/brand",
		"carCake/carGeneralLayer/carGeneral/brand",
		"carCake/otherLayer/otherComponent/brand",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Columns) != 2 {
		t.Fatalf("expected dedup to leave 2 columns, got %d", len(sel.Columns))
	}
	if sel.Columns[0].Alias != "brand" || sel.Columns[1].Alias != "brand2" {
		t.Fatalf("expected alias collision suffixing, got %q, %q", sel.Columns[0].Alias, sel.Columns[1].Alias)
	}
}

func TestColumnIndexResolvesAllKeyForms(t *testing.T) {
	sel, err := FromRoutes([]string{"carGeneral/brand", "carGeneral/doors"})
	if err != nil {
		t.Fatal(err)
	}
	if i, _ := sel.ColumnIndex("brand", true); i != 0 {
		t.Fatalf("alias lookup: got %d", i)
	}
	if i, _ := sel.ColumnIndex("carGeneral/doors", true); i != 1 {
		t.Fatalf("route lookup: got %d", i)
	}
	if i, _ := sel.ColumnIndex(sel.RouteHashes[1], true); i != 1 {
		t.Fatalf("hash lookup: got %d", i)
	}
	if i, _ := sel.ColumnIndex(1, true); i != 1 {
		t.Fatalf("index lookup: got %d", i)
	}
	if _, err := sel.ColumnIndex("missing", true); err == nil {
		t.Fatal("expected ErrColumnNotFound")
	}
	if i, err := sel.ColumnIndex("missing", false); i != -1 || err != nil {
		t.Fatalf("expected (-1, nil) without throwIfNotExisting, got (%d, %v)", i, err)
	}
}

func TestMergePreservesFirstAliasAndAppendsNew(t *testing.T) {
	a, err := FromRoutes([]string{"carGeneral/brand"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromRoutes([]string{"carGeneral/brand", "carGeneral/doors"})
	if err != nil {
		t.Fatal(err)
	}
	merged, err := Merge([]Selection{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Columns) != 2 {
		t.Fatalf("expected 2 merged columns, got %d", len(merged.Columns))
	}
	if merged.Columns[0].Route != "carGeneral/brand" || merged.Columns[1].Route != "carGeneral/doors" {
		t.Fatalf("unexpected merge order: %+v", merged.Columns)
	}
}
