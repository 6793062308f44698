package sync

import "sync"

// memSocket is an in-memory Socket that delivers every Emit to its paired
// peer's handlers, simulating a two-endpoint wire without a real transport.
// Grounded on the teacher's internal/ws/echo.go's synchronous accept/write
// loop, collapsed to direct function dispatch since tests need no I/O.
type memSocket struct {
	mu         sync.Mutex
	handlers   map[string]map[int]Handler
	nextID     int
	peer       *memSocket
	dropFilter func(event string, payload any) bool
}

func newMemSocketPair() (*memSocket, *memSocket) {
	a := &memSocket{handlers: map[string]map[int]Handler{}}
	b := &memSocket{handlers: map[string]map[int]Handler{}}
	a.peer = b
	b.peer = a
	return a, b
}

func (s *memSocket) Emit(event string, payload any) {
	if s.dropFilter != nil && s.dropFilter(event, payload) {
		return
	}
	peer := s.peer
	if peer == nil {
		return
	}
	peer.mu.Lock()
	hs := make([]Handler, 0, len(peer.handlers[event]))
	for _, h := range peer.handlers[event] {
		hs = append(hs, h)
	}
	peer.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (s *memSocket) On(event string, h Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.handlers[event] == nil {
		s.handlers[event] = map[int]Handler{}
	}
	s.handlers[event][id] = h
	return id
}

func (s *memSocket) Off(event string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers[event], id)
}

var _ Socket = (*memSocket)(nil)
