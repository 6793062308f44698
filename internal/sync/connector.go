package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/metrics"
	"github.com/rljson/catalog/pkg/rljson"
	"github.com/rljson/catalog/pkg/route"
)

// RefListener observes a ref accepted by Connector's receive pipeline
// (fresh inbound writes, gap-filled refs, and bootstrap refs alike).
type RefListener func(ref string)

// Connector binds a Db, a Route, and a Socket, bridging the Db's insert
// notifications for that route onto the wire and the wire's inbound refs
// back into DAG-branch-aware delivery, per spec.md §4.9.
type Connector struct {
	db       *catalogdb.Db
	route    route.Route
	tableKey string
	socket   Socket
	cfg      SyncConfig
	originID string
	now      func() time.Time

	eventRoute      string
	ackEvent        string
	ackClientEvent  string
	gapfillReqEvent string
	gapfillResEvent string
	bootstrapEvent  string

	mu                sync.Mutex
	torn              bool
	sentRefs          *dedupSet
	receivedRefs      *dedupSet
	seq               int
	lastSeqByClient   map[string]int
	sentHistory       []GapFillRef
	listeners         []RefListener
	conflictObservers map[int]func(Conflict)
	nextConflictID    int

	dbObserverID        int
	refHandlerID        int
	gapfillReqHandlerID int
	gapfillResHandlerID int
	bootstrapHandlerID  int
}

// Option configures a Connector at construction.
type Option func(*Connector)

// WithClock overrides the time source used for timestamp attachment and
// conflict detection timestamps, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) { c.now = now }
}

// New constructs a Connector for r over socket, registering a Db observer
// and the full set of protocol socket listeners immediately.
func New(db *catalogdb.Db, r route.Route, socket Socket, originID string, cfg SyncConfig, opts ...Option) *Connector {
	flat := r.Flat()
	c := &Connector{
		db:                db,
		route:             r,
		tableKey:          r.Leaf().TableKey,
		socket:            socket,
		cfg:               cfg.normalized(),
		originID:          originID,
		now:               time.Now,
		eventRoute:        flat,
		ackEvent:          flat + ":ack",
		ackClientEvent:    flat + ":ack:client",
		gapfillReqEvent:   flat + ":gapfill:req",
		gapfillResEvent:   flat + ":gapfill:res",
		bootstrapEvent:    flat + ":bootstrap",
		sentRefs:          newDedupSet(cfg.normalized().MaxDedupSetSize),
		receivedRefs:      newDedupSet(cfg.normalized().MaxDedupSetSize),
		lastSeqByClient:   map[string]int{},
		conflictObservers: map[int]func(Conflict){},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dbObserverID = db.RegisterObserver(r, c.onDbNotify)
	c.refHandlerID = socket.On(c.eventRoute, c.onRefPayload)
	c.gapfillReqHandlerID = socket.On(c.gapfillReqEvent, c.onGapFillReq)
	c.gapfillResHandlerID = socket.On(c.gapfillResEvent, c.onGapFillRes)
	c.bootstrapHandlerID = socket.On(c.bootstrapEvent, c.onBootstrapPayload)

	metrics.PeerConnected()
	return c
}

// OnRef registers l to be invoked with every ref this Connector accepts
// through its receive pipeline.
func (c *Connector) OnRef(l RefListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RegisterConflictObserver subscribes cb to DAG-branch conflicts detected
// on this Connector's table, returning a token for UnregisterConflictObserver.
func (c *Connector) RegisterConflictObserver(cb func(Conflict)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextConflictID++
	id := c.nextConflictID
	c.conflictObservers[id] = cb
	return id
}

// UnregisterConflictObserver removes a callback previously returned by
// RegisterConflictObserver.
func (c *Connector) UnregisterConflictObserver(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conflictObservers, id)
}

// onDbNotify is the Db observer callback: spec.md §4.9's five-step send
// algorithm, triggered by a local insert on the connector's route. The
// socket Emit always happens after c.mu is released — a paired Socket
// delivers synchronously, and a receive can synchronously emit back onto
// this same connector (gap-fill, acks), which would deadlock on a
// still-held, non-reentrant mutex otherwise.
func (c *Connector) onDbNotify(_ string, row rljson.Row) {
	h := rljson.HistoryRowFromRow(c.tableKey, row)
	if h.Ref == "" {
		return
	}

	c.mu.Lock()
	skip := c.torn || c.sentRefs.has(h.Ref) || c.receivedRefs.has(h.Ref)
	var payload ConnectorPayload
	if !skip {
		payload = c.prepareSendLocked(h.Ref, h.Previous)
	}
	c.mu.Unlock()

	if !skip {
		c.socket.Emit(c.eventRoute, payload)
	}
	c.checkDagBranch(context.Background())
}

// Send performs the five-step send algorithm for ref without requiring a
// Db-triggered call, per spec.md §4.9's send(ref). previous is looked up
// from the table's insert history when causal ordering is enabled.
func (c *Connector) Send(ctx context.Context, ref string) error {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return ErrTornDown
	}
	if c.sentRefs.has(ref) || c.receivedRefs.has(ref) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var previous []string
	if c.cfg.CausalOrdering {
		rows, err := c.db.GetInsertHistoryRowsByRef(ctx, c.tableKey, ref)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			previous = rows[0].Previous
		}
	}

	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return ErrTornDown
	}
	if c.sentRefs.has(ref) || c.receivedRefs.has(ref) {
		c.mu.Unlock()
		return nil
	}
	payload := c.prepareSendLocked(ref, previous)
	c.mu.Unlock()

	c.socket.Emit(c.eventRoute, payload)
	return nil
}

// prepareSendLocked must be called with c.mu held. It advances seq,
// appends to sentHistory, and marks ref sent, returning the payload to
// emit once the caller has released the lock.
func (c *Connector) prepareSendLocked(ref string, previous []string) ConnectorPayload {
	payload := ConnectorPayload{Origin: c.originID, Ref: ref}
	if c.cfg.CausalOrdering {
		c.seq++
		payload.Seq = c.seq
		if len(previous) > 0 {
			payload.Previous = previous
		}
		c.sentHistory = append(c.sentHistory, GapFillRef{Origin: c.originID, Ref: ref, Seq: c.seq})
	}
	if c.cfg.IncludeClientIdentity {
		payload.ClientID = c.cfg.ClientID
		payload.TimestampMS = c.now().UnixMilli()
	}
	c.sentRefs.add(ref)
	return payload
}

func (c *Connector) onRefPayload(payload any) {
	p, ok := payload.(ConnectorPayload)
	if !ok {
		return
	}
	c.onRef(p)
}

// onRef is spec.md §4.9's six-step receive algorithm, shared by the direct
// wire event, gap-fill delivery, and bootstrap. As with onDbNotify, every
// socket Emit happens after c.mu is released.
func (c *Connector) onRef(p ConnectorPayload) {
	if p.Origin == c.originID {
		return
	}

	c.mu.Lock()
	if c.torn || c.receivedRefs.has(p.Ref) {
		c.mu.Unlock()
		return
	}
	c.receivedRefs.add(p.Ref)

	var gapReq *GapFillRequest
	if c.cfg.CausalOrdering && p.ClientID != "" {
		last := c.lastSeqByClient[p.ClientID]
		if p.Seq > last+1 {
			gapReq = &GapFillRequest{Route: c.eventRoute, AfterSeq: last}
		}
		if p.Seq > last {
			c.lastSeqByClient[p.ClientID] = p.Seq
		}
	}

	requireAck := c.cfg.RequireAck
	listeners := append([]RefListener(nil), c.listeners...)
	c.mu.Unlock()

	if gapReq != nil {
		c.socket.Emit(c.gapfillReqEvent, *gapReq)
	}
	if requireAck {
		// The receiver answers the sender directly: it emits the receipt on
		// ":ack:client" (for any other listener on this route, e.g. a future
		// hub tallying distinct ackers) and the resolving ":ack" payload the
		// sender's SendWithAck is waiting on, in the same step. A connector
		// is always exactly one peer's counterpart, so receivedBy/totalClients
		// are fixed at 1/1 here; a multi-party hub sitting between more than
		// two connectors would be the one to aggregate richer counts.
		c.socket.Emit(c.ackClientEvent, AckClientPayload{Ref: p.Ref})
		c.socket.Emit(c.ackEvent, AckPayload{Ref: p.Ref, OK: true, ReceivedBy: 1, TotalClients: 1})
	}
	for _, l := range listeners {
		l(p.Ref)
	}
}

func (c *Connector) onGapFillReq(payload any) {
	req, ok := payload.(GapFillRequest)
	if !ok || req.Route != c.eventRoute {
		return
	}
	c.mu.Lock()
	var refs []GapFillRef
	for _, h := range c.sentHistory {
		if h.Seq > req.AfterSeq {
			refs = append(refs, h)
		}
	}
	c.mu.Unlock()
	if len(refs) == 0 {
		return
	}
	c.socket.Emit(c.gapfillResEvent, GapFillResponse{Route: c.eventRoute, Refs: refs})
}

func (c *Connector) onGapFillRes(payload any) {
	res, ok := payload.(GapFillResponse)
	if !ok || res.Route != c.eventRoute {
		return
	}
	for _, r := range res.Refs {
		c.onRef(ConnectorPayload{Origin: r.Origin, Ref: r.Ref, Seq: r.Seq})
	}
}

func (c *Connector) onBootstrapPayload(payload any) {
	p, ok := payload.(ConnectorPayload)
	if !ok {
		return
	}
	c.onRef(p)
}

// SendWithAck emits ref and waits for a matching AckPayload on "<route>:ack",
// subscribing before emitting so a synchronous ack cannot be missed, per
// spec.md §4.9/§5. It fails with ErrAckTimeout after SyncConfig.AckTimeoutMS.
func (c *Connector) SendWithAck(ctx context.Context, ref string) (AckPayload, error) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return AckPayload{}, ErrTornDown
	}
	result := make(chan AckPayload, 1)
	handler := func(payload any) {
		ack, ok := payload.(AckPayload)
		if !ok || ack.Ref != ref {
			return
		}
		select {
		case result <- ack:
		default:
		}
	}
	handlerID := c.socket.On(c.ackEvent, handler)
	c.mu.Unlock()

	cleanup := func() {
		c.socket.Off(c.ackEvent, handlerID)
	}

	if err := c.Send(ctx, ref); err != nil {
		cleanup()
		return AckPayload{}, err
	}

	timer := time.NewTimer(time.Duration(c.cfg.AckTimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case ack := <-result:
		cleanup()
		return ack, nil
	case <-timer.C:
		cleanup()
		return AckPayload{}, ErrAckTimeout
	case <-ctx.Done():
		cleanup()
		return AckPayload{}, ctx.Err()
	}
}

// checkDagBranch recomputes the table's tips and notifies conflict
// observers of any branch found, per spec.md §4.9's DAG-branch detection.
func (c *Connector) checkDagBranch(ctx context.Context) {
	rows, err := c.db.GetInsertHistory(ctx, c.tableKey, false, true)
	if err != nil {
		return
	}
	conflicts := detectDagBranch(rows, c.tableKey, c.now())
	if len(conflicts) == 0 {
		return
	}
	c.mu.Lock()
	observers := make([]func(Conflict), 0, len(c.conflictObservers))
	for _, obs := range c.conflictObservers {
		observers = append(observers, obs)
	}
	c.mu.Unlock()
	for _, conflict := range conflicts {
		for _, obs := range observers {
			obs(conflict)
		}
	}
}

// Teardown unsubscribes every socket listener and the Db observer. It is
// idempotent; subsequent Connector operations are no-ops after teardown.
func (c *Connector) Teardown() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	c.mu.Unlock()

	c.db.UnregisterObserver(c.route, c.dbObserverID)
	c.socket.Off(c.eventRoute, c.refHandlerID)
	c.socket.Off(c.gapfillReqEvent, c.gapfillReqHandlerID)
	c.socket.Off(c.gapfillResEvent, c.gapfillResHandlerID)
	c.socket.Off(c.bootstrapEvent, c.bootstrapHandlerID)
	metrics.PeerDisconnected()
}
