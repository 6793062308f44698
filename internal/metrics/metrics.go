// Package metrics provides lightweight in-process instrumentation for the
// catalog store. Grounded on the teacher's internal/metrics package
// (atomic copy-on-write counter maps), re-keyed from (org, table, op) to
// (table, op) since this module has no multi-tenant org dimension, and
// extended with a peer-connection gauge for internal/sync.
package metrics

import (
	"sync/atomic"
	"time"
)

type key struct{ table, op string }

var (
	opCounts    syncMap[key, uint64]
	activePeers atomic.Int64
)

// syncMap is a tiny generic wrapper using atomic.Value for copy-on-write
// maps, avoiding a mutex on the read-heavy Export path.
type syncMap[K comparable, V any] struct{ m atomic.Value } // stores map[K]V

func (s *syncMap[K, V]) load() map[K]V {
	if v := s.m.Load(); v != nil {
		return v.(map[K]V)
	}
	return map[K]V{}
}
func (s *syncMap[K, V]) swap(m map[K]V) { s.m.Store(m) }

// IncOp increments an operation counter for table/op, e.g. ("carCake",
// "insert") or ("carGeneralLayer", "get").
func IncOp(table, op string, delta uint64) {
	if delta == 0 {
		delta = 1
	}
	cur := opCounts.load()
	next := make(map[key]uint64, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	k := key{table: table, op: op}
	next[k] = next[k] + delta
	opCounts.swap(next)
}

// PeerConnected increments the active sync-peer gauge.
func PeerConnected() { activePeers.Add(1) }

// PeerDisconnected decrements the active sync-peer gauge.
func PeerDisconnected() { activePeers.Add(-1) }

// Snapshot is a point-in-time export of every counter and gauge.
type Snapshot struct {
	Timestamp   time.Time         `json:"ts"`
	Ops         map[string]uint64 `json:"ops"`
	ActivePeers int64             `json:"activePeers"`
}

// Export renders the current counters as a flat, JSON-friendly snapshot.
func Export() Snapshot {
	cur := opCounts.load()
	flat := make(map[string]uint64, len(cur))
	for k, v := range cur {
		flat[k.table+"/"+k.op] = v
	}
	return Snapshot{Timestamp: time.Now(), Ops: flat, ActivePeers: activePeers.Load()}
}
