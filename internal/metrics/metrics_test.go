package metrics

import "testing"

func TestIncOpAccumulatesPerTableOp(t *testing.T) {
	before := Export().Ops["metricsTestTable/insert"]

	IncOp("metricsTestTable", "insert", 3)
	IncOp("metricsTestTable", "insert", 2)

	got := Export().Ops["metricsTestTable/insert"]
	if got != before+5 {
		t.Fatalf("expected %d, got %d", before+5, got)
	}
}

func TestIncOpZeroDeltaCountsAsOne(t *testing.T) {
	before := Export().Ops["metricsTestZeroDelta/get"]

	IncOp("metricsTestZeroDelta", "get", 0)

	got := Export().Ops["metricsTestZeroDelta/get"]
	if got != before+1 {
		t.Fatalf("expected zero delta to count as 1, got %d more than before", got-before)
	}
}

func TestIncOpKeepsTableOpPairsDistinct(t *testing.T) {
	IncOp("metricsTestDistinctA", "insert", 1)
	IncOp("metricsTestDistinctB", "insert", 1)

	snap := Export()
	if snap.Ops["metricsTestDistinctA/insert"] == 0 {
		t.Fatal("expected metricsTestDistinctA/insert to be counted")
	}
	if snap.Ops["metricsTestDistinctB/insert"] == 0 {
		t.Fatal("expected metricsTestDistinctB/insert to be counted")
	}
}

func TestPeerConnectedAndDisconnectedAdjustGauge(t *testing.T) {
	before := Export().ActivePeers

	PeerConnected()
	PeerConnected()
	if got := Export().ActivePeers; got != before+2 {
		t.Fatalf("expected %d active peers, got %d", before+2, got)
	}

	PeerDisconnected()
	if got := Export().ActivePeers; got != before+1 {
		t.Fatalf("expected %d active peers, got %d", before+1, got)
	}
}
