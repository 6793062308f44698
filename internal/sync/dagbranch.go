package sync

import (
	"sort"
	"strings"
	"time"

	"github.com/rljson/catalog/pkg/rljson"
)

// tips returns the insert-history rows whose timeId never appears in any
// other row's Previous — the current heads of the table's insert DAG.
func tips(rows []rljson.InsertHistoryRow) []rljson.InsertHistoryRow {
	referenced := map[string]struct{}{}
	for _, r := range rows {
		for _, p := range r.Previous {
			referenced[p] = struct{}{}
		}
	}
	var out []rljson.InsertHistoryRow
	for _, r := range rows {
		if _, ok := referenced[r.TimeID]; !ok {
			out = append(out, r)
		}
	}
	return out
}

func previousKey(prev []string) string {
	sorted := append([]string(nil), prev...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// detectDagBranch groups the table's current tips by their previous set; a
// group with two or more members is a branch, per spec.md §4.9. Results are
// returned in a deterministic (sorted-by-group-key) order so repeated
// detection on the same input is stable.
func detectDagBranch(rows []rljson.InsertHistoryRow, table string, now time.Time) []Conflict {
	groups := map[string][]string{}
	for _, t := range tips(rows) {
		key := previousKey(t.Previous)
		groups[key] = append(groups[key], t.TimeID)
	}

	var keys []string
	for k, ids := range groups {
		if len(ids) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	conflicts := make([]Conflict, 0, len(keys))
	for _, k := range keys {
		branches := append([]string(nil), groups[k]...)
		sort.Strings(branches)
		conflicts = append(conflicts, Conflict{
			Type:         ConflictDagBranch,
			Table:        table,
			Branches:     branches,
			DetectedAtMS: now.UnixMilli(),
		})
	}
	return conflicts
}
