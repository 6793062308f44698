package sync

// dedupSet is the bounded two-generation membership set spec.md §4.9
// describes: current and previous generations, rotating when current fills
// up so memory stays bounded while recently-seen refs are still caught.
// An element fully evicted from both generations can be re-observed.
type dedupSet struct {
	max      int
	current  map[string]struct{}
	previous map[string]struct{}
}

func newDedupSet(max int) *dedupSet {
	return &dedupSet{
		max:      max,
		current:  map[string]struct{}{},
		previous: map[string]struct{}{},
	}
}

// has reports whether ref is present in either generation.
func (d *dedupSet) has(ref string) bool {
	if _, ok := d.current[ref]; ok {
		return true
	}
	_, ok := d.previous[ref]
	return ok
}

// add records ref in the current generation, rotating generations first if
// the current one has reached its bound.
func (d *dedupSet) add(ref string) {
	if len(d.current) >= d.max {
		d.previous = d.current
		d.current = map[string]struct{}{}
	}
	d.current[ref] = struct{}{}
}
