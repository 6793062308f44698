// Package hashkit computes deterministic content hashes over structural
// data and provides the small set of helpers the rest of the catalog
// depends on to stay content-addressed.
package hashkit

import (
	"crypto/sha256"
	"encoding/base32"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// HashField is the metadata field every hashed record carries.
const HashField = "_hash"

var canonicalEncMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("hashkit: invalid canonical cbor options: " + err.Error())
	}
	return m
}()

var hashEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CalcHash computes the canonical content hash of value. Maps are encoded
// with sorted keys and fixed-width lengths per CBOR's canonical form
// (RFC 8949 §4.2.1), so two structurally identical values hash identically
// regardless of field order.
func CalcHash(value any) (string, error) {
	b, err := canonicalEncMode.Marshal(normalize(value))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return strings.ToLower(hashEncoding.EncodeToString(sum[:])), nil
}

// Rmhsh returns a copy of value with the top-level hash field and any
// metadata field (one whose key starts with "_") removed. It is a left
// inverse of hashing: CalcHash(Rmhsh(x)) == x[HashField] whenever x was
// produced by attaching CalcHash(Rmhsh(x)) to x.
func Rmhsh(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	for k, v := range value {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// WithHash returns a copy of value with its content hash attached under
// HashField, first removing any stale top-level hash and other "_" metadata
// fields via Rmhsh (nested values are left as they are).
func WithHash(value map[string]any) (map[string]any, error) {
	clean := Rmhsh(value)
	h, err := CalcHash(clean)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(clean)+1)
	for k, v := range clean {
		out[k] = v
	}
	out[HashField] = h
	return out, nil
}

// normalize walks generic JSON-shaped data (maps/slices/scalars) and
// produces a form with map keys collected and sorted before CBOR encoding
// sees them is unnecessary (CBOR canonical mode already sorts map keys),
// but nested slices of maps and numeric types coming from encoding/json
// (float64) are passed through unchanged; normalize exists as the single
// seam where future structural coercions (e.g. decimal normalization) go.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// SortedKeys returns the sorted keys of m, used by callers that need a
// deterministic iteration order outside of hashing itself (e.g. building
// SliceIds unions).
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
