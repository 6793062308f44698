package sync

import (
	"context"
	"testing"
	"time"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage/memstore"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

func newTestDb(t *testing.T) *catalogdb.Db {
	t.Helper()
	gw := memstore.New()
	ctx := context.Background()
	if err := gw.CreateOrExtendTable(ctx, rljson.TableCfg{Table: "carGeneral", Kind: rljson.KindComponents}); err != nil {
		t.Fatal(err)
	}
	return catalogdb.New(gw, notify.New(), catalogdb.WithClock(func() time.Time { return time.UnixMilli(1_000_000) }))
}

func testRoute(t *testing.T) route.Route {
	t.Helper()
	r, err := route.FromFlat("/carGeneral")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestConnectorDeliversInsertedRefToPeer(t *testing.T) {
	dbA := newTestDb(t)
	sideA, sideB := newMemSocketPair()
	r := testRoute(t)

	connA := New(dbA, r, sideA, "origin-a", SyncConfig{})
	defer connA.Teardown()
	connB := New(newTestDb(t), r, sideB, "origin-b", SyncConfig{})
	defer connB.Teardown()

	var received []string
	connB.OnRef(func(ref string) { received = append(received, ref) })

	ctx := context.Background()
	result, err := dbA.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: rljson.Row{"brand": "Porsche", "doors": 2}})
	if err != nil {
		t.Fatal(err)
	}
	want := result.Hashes["carGeneral"]
	if len(received) != 1 || received[0] != want {
		t.Fatalf("expected peer to receive ref %q, got %v", want, received)
	}
}

func TestConnectorSelfOriginEchoIsDropped(t *testing.T) {
	dbA := newTestDb(t)
	sideA, sideB := newMemSocketPair()
	r := testRoute(t)

	connA := New(dbA, r, sideA, "same-origin", SyncConfig{})
	defer connA.Teardown()
	connB := New(newTestDb(t), r, sideB, "same-origin", SyncConfig{})
	defer connB.Teardown()

	var received []string
	connB.OnRef(func(ref string) { received = append(received, ref) })

	ctx := context.Background()
	if _, err := dbA.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: rljson.Row{"brand": "Audi", "doors": 4}}); err != nil {
		t.Fatal(err)
	}
	if len(received) != 0 {
		t.Fatalf("expected self-origin echo to be dropped, got %v", received)
	}
}

func TestConnectorDedupSkipsRepeatedInsertOfSameValue(t *testing.T) {
	dbA := newTestDb(t)
	sideA, sideB := newMemSocketPair()
	r := testRoute(t)

	connA := New(dbA, r, sideA, "origin-a", SyncConfig{})
	defer connA.Teardown()
	connB := New(newTestDb(t), r, sideB, "origin-b", SyncConfig{})
	defer connB.Teardown()

	var received []string
	connB.OnRef(func(ref string) { received = append(received, ref) })

	ctx := context.Background()
	value := rljson.Row{"brand": "Mercedes Benz", "doors": 4}
	if _, err := dbA.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: value}); err != nil {
		t.Fatal(err)
	}
	if _, err := dbA.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: value}); err != nil {
		t.Fatal(err)
	}
	if len(received) != 1 {
		t.Fatalf("expected exactly one delivery for the repeated identical ref, got %d: %v", len(received), received)
	}
}

func TestConnectorSendWithAckSucceedsWhenPeerAcks(t *testing.T) {
	sideA, sideB := newMemSocketPair()
	r := testRoute(t)

	connA := New(newTestDb(t), r, sideA, "origin-a", SyncConfig{RequireAck: true, AckTimeoutMS: 200})
	defer connA.Teardown()
	connB := New(newTestDb(t), r, sideB, "origin-b", SyncConfig{RequireAck: true, AckTimeoutMS: 200})
	defer connB.Teardown()

	ctx := context.Background()
	ack, err := connA.SendWithAck(ctx, "sha256-some-ref")
	if err != nil {
		t.Fatalf("expected ack, got error: %v", err)
	}
	if !ack.OK || ack.Ref != "sha256-some-ref" {
		t.Fatalf("unexpected ack payload: %+v", ack)
	}
}

func TestConnectorSendWithAckTimesOutWithoutPeer(t *testing.T) {
	sideA, _ := newMemSocketPair()
	r := testRoute(t)
	connA := New(newTestDb(t), r, sideA, "origin-a", SyncConfig{AckTimeoutMS: 30})
	defer connA.Teardown()

	ctx := context.Background()
	start := time.Now()
	_, err := connA.SendWithAck(ctx, "sha256-unacked-ref")
	if err != ErrAckTimeout {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected SendWithAck to wait out the timeout")
	}
}

func TestConnectorGapFillDeliversMissedRef(t *testing.T) {
	dbA := newTestDb(t)
	sideA, sideB := newMemSocketPair()
	r := testRoute(t)

	connA := New(dbA, r, sideA, "origin-a", SyncConfig{CausalOrdering: true, IncludeClientIdentity: true, ClientID: "alice"})
	defer connA.Teardown()
	connB := New(newTestDb(t), r, sideB, "origin-b", SyncConfig{CausalOrdering: true})
	defer connB.Teardown()

	var received []string
	connB.OnRef(func(ref string) { received = append(received, ref) })

	ctx := context.Background()
	r1, err := dbA.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: rljson.Row{"brand": "Porsche", "doors": 2}})
	if err != nil {
		t.Fatal(err)
	}
	t1 := r1.HistoryRows["carGeneral"].TimeID

	sideA.dropFilter = func(event string, payload any) bool {
		cp, ok := payload.(ConnectorPayload)
		return ok && cp.Seq == 2
	}
	r2, err := dbA.Insert(ctx, catalogdb.InsertSpec{
		Route: r, Value: rljson.Row{"brand": "Mercedes Benz", "doors": 4}, Previous: []string{t1},
	})
	if err != nil {
		t.Fatal(err)
	}
	t2 := r2.HistoryRows["carGeneral"].TimeID
	sideA.dropFilter = nil

	r3, err := dbA.Insert(ctx, catalogdb.InsertSpec{
		Route: r, Value: rljson.Row{"brand": "Audi", "doors": 4}, Previous: []string{t2},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		r1.Hashes["carGeneral"]: true,
		r2.Hashes["carGeneral"]: true,
		r3.Hashes["carGeneral"]: true,
	}
	if len(received) != 3 {
		t.Fatalf("expected all 3 refs delivered (one via gapfill), got %d: %v", len(received), received)
	}
	for _, ref := range received {
		if !want[ref] {
			t.Fatalf("unexpected ref delivered: %q", ref)
		}
		delete(want, ref)
	}
	if len(want) != 0 {
		t.Fatalf("missing refs after gapfill: %v", want)
	}
}

func TestConnectorDagBranchDetectionEmitsConflict(t *testing.T) {
	dbA := newTestDb(t)
	sideA, _ := newMemSocketPair()
	r := testRoute(t)

	connA := New(dbA, r, sideA, "origin-a", SyncConfig{})
	defer connA.Teardown()

	var conflicts []Conflict
	connA.RegisterConflictObserver(func(c Conflict) { conflicts = append(conflicts, c) })

	ctx := context.Background()
	base, err := dbA.Insert(ctx, catalogdb.InsertSpec{Route: r, Value: rljson.Row{"brand": "Porsche", "doors": 2}})
	if err != nil {
		t.Fatal(err)
	}
	baseTimeID := base.HistoryRows["carGeneral"].TimeID

	if _, err := dbA.Insert(ctx, catalogdb.InsertSpec{
		Route: r, Value: rljson.Row{"brand": "Mercedes Benz", "doors": 4}, Previous: []string{baseTimeID},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := dbA.Insert(ctx, catalogdb.InsertSpec{
		Route: r, Value: rljson.Row{"brand": "Audi", "doors": 4}, Previous: []string{baseTimeID},
	}); err != nil {
		t.Fatal(err)
	}

	if len(conflicts) == 0 {
		t.Fatal("expected a dagBranch conflict once two tips share the same previous")
	}
	last := conflicts[len(conflicts)-1]
	if last.Type != ConflictDagBranch || last.Table != "carGeneral" || len(last.Branches) != 2 {
		t.Fatalf("unexpected conflict shape: %+v", last)
	}
}

func TestConnectorTeardownIsIdempotentAndStopsDelivery(t *testing.T) {
	dbA := newTestDb(t)
	sideA, sideB := newMemSocketPair()
	r := testRoute(t)

	connA := New(dbA, r, sideA, "origin-a", SyncConfig{})
	connB := New(newTestDb(t), r, sideB, "origin-b", SyncConfig{})
	defer connB.Teardown()

	var received []string
	connB.OnRef(func(ref string) { received = append(received, ref) })

	connA.Teardown()
	connA.Teardown() // must not panic

	ctx := context.Background()
	if err := connA.Send(ctx, "sha256-after-teardown"); err != ErrTornDown {
		t.Fatalf("expected ErrTornDown after teardown, got %v", err)
	}
	if len(received) != 0 {
		t.Fatalf("expected no delivery after teardown, got %v", received)
	}
}
