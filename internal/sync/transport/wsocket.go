package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	syncpkg "github.com/rljson/catalog/internal/sync"
)

// readLimitBytes and ioDeadline mirror internal/ws/echo.go's constants:
// a 1MB frame ceiling and a 10s per-operation deadline.
const (
	readLimitBytes = 1 << 20
	ioDeadline     = 10 * time.Second
)

// WSocket is a sync.Socket backed by a single nhooyr.io/websocket connection.
// One read-pump goroutine decodes inbound frames and dispatches them
// synchronously to registered handlers, per spec.md §5's delivery-order
// requirement; Emit blocks until the frame is written or ioDeadline elapses.
type WSocket struct {
	conn *websocket.Conn

	mu       sync.Mutex
	handlers map[string]map[int]syncpkg.Handler
	nextID   int
	closed   bool
}

var _ syncpkg.Socket = (*WSocket)(nil)

// AcceptWSocket upgrades an incoming HTTP request to a WSocket, grounded on
// internal/ws/echo.go's websocket.Accept call.
func AcceptWSocket(w http.ResponseWriter, r *http.Request) (*WSocket, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return nil, err
	}
	return newWSocket(r.Context(), c), nil
}

// DialWSocket opens a client-side WSocket to url. httpClient, when non-nil,
// lets a caller (e.g. TSDialer) route the handshake over a custom transport.
func DialWSocket(ctx context.Context, url string, httpClient *http.Client) (*WSocket, error) {
	opts := &websocket.DialOptions{HTTPClient: httpClient}
	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return newWSocket(context.Background(), c), nil
}

func newWSocket(pumpCtx context.Context, c *websocket.Conn) *WSocket {
	c.SetReadLimit(readLimitBytes)
	s := &WSocket{conn: c, handlers: map[string]map[int]syncpkg.Handler{}}
	go s.readPump(pumpCtx)
	return s
}

func (s *WSocket) readPump(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		payload, err := decodePayload(env.Event, env.Payload)
		if err != nil {
			continue
		}
		s.dispatch(env.Event, payload)
	}
}

func (s *WSocket) dispatch(event string, payload any) {
	s.mu.Lock()
	hs := make([]syncpkg.Handler, 0, len(s.handlers[event]))
	for _, h := range s.handlers[event] {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

// Emit encodes payload and writes it as a text frame, per spec.md §6.2.
func (s *WSocket) Emit(event string, payload any) {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioDeadline)
	defer cancel()
	_ = s.conn.Write(ctx, websocket.MessageText, data)
}

// On registers h for event, returning a token for Off.
func (s *WSocket) On(event string, h syncpkg.Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[event] == nil {
		s.handlers[event] = map[int]syncpkg.Handler{}
	}
	s.handlers[event][id] = h
	return id
}

// Off removes a subscription previously returned by On.
func (s *WSocket) Off(event string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers[event], id)
}

// Close closes the underlying connection with a normal closure code.
func (s *WSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
