package hashkit

import "testing"

func TestCalcHashOrderIndependent(t *testing.T) {
	a := map[string]any{"brand": "Porsche", "doors": int64(2)}
	b := map[string]any{"doors": int64(2), "brand": "Porsche"}
	ha, err := CalcHash(a)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hb, err := CalcHash(b)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected order-independent hash, got %q vs %q", ha, hb)
	}
}

func TestCalcHashDifferentForDifferentContent(t *testing.T) {
	a := map[string]any{"brand": "Porsche"}
	b := map[string]any{"brand": "Audi"}
	ha, _ := CalcHash(a)
	hb, _ := CalcHash(b)
	if ha == hb {
		t.Fatalf("expected distinct hashes, got identical %q", ha)
	}
}

func TestWithHashRoundTrip(t *testing.T) {
	raw := map[string]any{"brand": "Porsche", "doors": int64(2)}
	hashed, err := WithHash(raw)
	if err != nil {
		t.Fatalf("with hash: %v", err)
	}
	clean := Rmhsh(hashed)
	again, err := CalcHash(clean)
	if err != nil {
		t.Fatalf("calc hash: %v", err)
	}
	if again != hashed[HashField] {
		t.Fatalf("rmhsh is not a left inverse: got %q want %q", again, hashed[HashField])
	}
}

func TestRmhshStripsAllMetadataFields(t *testing.T) {
	raw := map[string]any{"brand": "Porsche", "_hash": "x", "_type": "components"}
	clean := Rmhsh(raw)
	if _, ok := clean["_hash"]; ok {
		t.Fatalf("expected _hash stripped")
	}
	if _, ok := clean["_type"]; ok {
		t.Fatalf("expected _type stripped")
	}
	if clean["brand"] != "Porsche" {
		t.Fatalf("expected brand preserved")
	}
}
