// Package route parses and composes catalog routes: ordered paths through
// cake -> layer -> component, optionally anchored at a revision.
package route

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rljson/catalog/pkg/hashkit"
)

// Segment is one hop of a Route: a table key, an optional set of slice ids
// the caller scoped the hop to, an optional revision ref (hash or timeId),
// and an optional trailing property key (only legal on the last segment).
type Segment struct {
	TableKey    string
	SliceIDs    []string
	Ref         string
	PropertyKey string
}

// HasRef reports whether the segment carries any ref.
func (s Segment) HasRef() bool { return s.Ref != "" }

// HasDefaultRef reports whether the ref is a timeId (the "current head as of
// this local sequence point" ref), as opposed to an explicit content hash.
func (s Segment) HasDefaultRef() bool { return s.Ref != "" && hashkit.IsTimeID(s.Ref) }

// HasHistoryRef reports whether the segment carries an explicit revision
// hash rather than a timeId.
func (s Segment) HasHistoryRef() bool { return s.Ref != "" && !hashkit.IsTimeID(s.Ref) }

// HasPropertyKey reports whether the segment addresses a scalar property.
func (s Segment) HasPropertyKey() bool { return s.PropertyKey != "" }

func (s Segment) flat() string {
	var b strings.Builder
	b.WriteString(s.TableKey)
	if len(s.SliceIDs) > 0 {
		b.WriteByte('(')
		b.WriteString(strings.Join(s.SliceIDs, ","))
		b.WriteByte(')')
	}
	if s.Ref != "" {
		b.WriteByte('@')
		b.WriteString(s.Ref)
	}
	if s.PropertyKey != "" {
		b.WriteByte('/')
		b.WriteString(s.PropertyKey)
	}
	return b.String()
}

// Route is a non-empty ordered list of Segments, root-first.
type Route struct {
	Segments []Segment
}

// ErrInvalidRoute is returned (wrapped) for any malformed route string.
var ErrInvalidRoute = fmt.Errorf("route: invalid route")

var segmentPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)(\(([^)]*)\))?(@([^/]+))?$`)

// FromFlat parses the slash-delimited flat form described in spec.md §4.1:
// "/seg0/seg1/..." with optional "@ref", "(sliceId,sliceId)", and a trailing
// "/propertyKey" on the final segment. A plain-identifier propertyKey is
// structurally indistinguishable from another table segment (both match
// the same grammar) without knowing how many table hops the route is
// supposed to have; FromFlat only recognizes a trailing element as a
// propertyKey when it fails the table-segment grammar outright (e.g.
// contains characters a tableKey can't). Callers that know their route's
// expected depth up front and need reliable propertyKey detection on
// ordinary identifiers — e.g. internal/join's column routes — parse that
// shape themselves instead of relying on this heuristic.
func FromFlat(s string) (Route, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Route{}, fmt.Errorf("%w: empty route", ErrInvalidRoute)
	}
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Route{}, fmt.Errorf("%w: empty route", ErrInvalidRoute)
	}
	parts := strings.Split(s, "/")

	var segments []Segment
	i := 0
	for i < len(parts) {
		part := parts[i]
		m := segmentPattern.FindStringSubmatch(part)
		if m == nil {
			return Route{}, fmt.Errorf("%w: bad segment %q", ErrInvalidRoute, part)
		}
		seg := Segment{TableKey: m[1], Ref: m[5]}
		if m[3] != "" {
			for _, id := range strings.Split(m[3], ",") {
				id = strings.TrimSpace(id)
				if id == "" {
					return Route{}, fmt.Errorf("%w: empty sliceId in %q", ErrInvalidRoute, part)
				}
				seg.SliceIDs = append(seg.SliceIDs, id)
			}
		}
		i++
		// A trailing element with no recognizable table-key grammar (e.g.
		// one containing characters segmentPattern rejects) is a property
		// key, legal only immediately after the final table segment.
		if i < len(parts) && segmentPattern.FindStringSubmatch(parts[i]) == nil {
			seg.PropertyKey = parts[i]
			i++
			if i != len(parts) {
				return Route{}, fmt.Errorf("%w: propertyKey must be the last element", ErrInvalidRoute)
			}
		}
		segments = append(segments, seg)
	}
	return Route{Segments: segments}, nil
}

// Flat renders the canonical flat form. FromFlat(r.Flat()) equals r except
// when the leaf's PropertyKey also matches the table-key grammar: FromFlat
// then reads it back as one more table segment (see FromFlat).
func (r Route) Flat() string {
	parts := make([]string, len(r.Segments))
	for i, s := range r.Segments {
		parts[i] = s.flat()
	}
	return "/" + strings.Join(parts, "/")
}

// IsRoot reports whether this route addresses a single top-level segment.
func (r Route) IsRoot() bool { return len(r.Segments) == 1 }

// Root returns the first (outermost) segment, e.g. the cake in
// "/carCake/carGeneralLayer/carGeneral". A revision ref anchors the whole
// route and is only meaningful on this segment.
func (r Route) Root() Segment { return r.Segments[0] }

// Leaf returns the last (innermost/most specific) segment, e.g. the
// component in "/carCake/carGeneralLayer/carGeneral". Insert writes flow
// leaf-first (children before parents); property keys address a field on
// the leaf's resolved value.
func (r Route) Leaf() Segment { return r.Segments[len(r.Segments)-1] }

// Inferior returns the route with the root segment removed — the path one
// step closer to the leaf, used when descending during get() resolution.
func (r Route) Inferior() (Route, bool) {
	if len(r.Segments) <= 1 {
		return Route{}, false
	}
	return Route{Segments: r.Segments[1:]}, true
}

// Superior returns the route with the leaf segment removed — the path one
// step closer to the root, used when an insert substitutes a written
// child's hash into its parent's value before writing the parent.
func (r Route) Superior() (Route, bool) {
	if len(r.Segments) <= 1 {
		return Route{}, false
	}
	return Route{Segments: r.Segments[:len(r.Segments)-1]}, true
}

// EqualsWithoutRefs compares two routes ignoring each segment's Ref.
func (r Route) EqualsWithoutRefs(other Route) bool {
	if len(r.Segments) != len(other.Segments) {
		return false
	}
	for i := range r.Segments {
		a, b := r.Segments[i], other.Segments[i]
		a.Ref, b.Ref = "", ""
		if a.flat() != b.flat() {
			return false
		}
	}
	return true
}

// Validate performs structural checks beyond parsing: non-empty, every
// table key present, property key only on the leaf.
func (r Route) Validate() error {
	if len(r.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidRoute)
	}
	for i, s := range r.Segments {
		if s.TableKey == "" {
			return fmt.Errorf("%w: missing tableKey at position %d", ErrInvalidRoute, i)
		}
		if s.PropertyKey != "" && i != len(r.Segments)-1 {
			return fmt.Errorf("%w: propertyKey only legal on leaf segment", ErrInvalidRoute)
		}
	}
	return nil
}
