package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/clipguess/internal/domain"
)

// Publisher delivers a room event to the given transport sessions.
// Implementations must not block.
type Publisher interface {
	Publish(roomCode string, recipients []string, event domain.Event)
}

// Session is one live client connection. Frames are queued on a buffered
// channel drained by the connection's writer.
type Session struct {
	ID string

	mu     sync.Mutex
	out    chan any
	closed bool
}

func newSession(id string, buffer int) *Session {
	return &Session{ID: id, out: make(chan any, buffer)}
}

// Enqueue queues frame without blocking and reports whether it was accepted.
func (s *Session) Enqueue(frame any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) Outbound() <-chan any {
	return s.out
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

type Hub struct {
	buffer int
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		buffer:   buffer,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

func (h *Hub) Register() *Session {
	s := newSession(uuid.NewString(), h.buffer)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	return s
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Send queues a frame for one session.
func (h *Hub) Send(sessionID string, frame any) bool {
	s, ok := h.Session(sessionID)
	if !ok {
		return false
	}
	return s.Enqueue(frame)
}

func (h *Hub) Publish(roomCode string, recipients []string, event domain.Event) {
	const op = "realtime.hub.publish"

	for _, id := range recipients {
		if id == "" {
			continue
		}
		if !h.Send(id, event) {
			h.log.Warn("event dropped",
				slog.String("op", op),
				slog.String("room", roomCode),
				slog.String("session_id", id),
				slog.String("event", string(event.Type)),
			)
		}
	}
}

// Fanout publishes every event to each of its publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(roomCode string, recipients []string, event domain.Event) {
	for _, p := range f {
		p.Publish(roomCode, recipients, event)
	}
}
