package chat

import "sync"

// State is the lifecycle state of a session.
type State int

const (
	StateConnected State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event types exchanged with clients.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventHistory = "history"
	EventMessage = "message"
	EventError   = "error"
	EventPing    = "ping"
	EventPong    = "pong"
)

// Event is an outbound event queued for a session.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// MessagePayload is the wire form of a live message.
type MessagePayload struct {
	Room      string `json:"room"`
	Seq       int64  `json:"seq"`
	SenderID  string `json:"sender_id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// HistoryEntry is one element of a history event.
type HistoryEntry struct {
	Seq       int64  `json:"seq"`
	SenderID  string `json:"sender_id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ErrorPayload is sent to the one connection whose request failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func messagePayload(m Message) MessagePayload {
	return MessagePayload{
		Room:      m.Room,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		User:      m.SenderName,
		Text:      m.Text,
		Timestamp: m.DisplayTimestamp(),
	}
}

// HistoryEntries converts stored messages to their wire form.
func HistoryEntries(msgs []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{
			Seq:       m.Seq,
			SenderID:  m.SenderID,
			User:      m.SenderName,
			Text:      m.Text,
			Timestamp: m.DisplayTimestamp(),
		})
	}
	return out
}

// Session is one client connection. Outbound events are buffered in a
// bounded queue that the transport drains; the queue is never closed, Done
// signals the end instead.
type Session struct {
	id       string
	identity Identity
	out      chan Event
	done     chan struct{}

	mu       sync.Mutex
	state    State
	room     string
	closeErr error

	closeOnce sync.Once
}

func newSession(id string, identity Identity, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:       id,
		identity: identity,
		out:      make(chan Event, buffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.identity.UserID }

func (s *Session) Name() string { return s.identity.Name }

// Outbound is the queue drained by the transport writer.
func (s *Session) Outbound() <-chan Event { return s.out }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the joined room, or "" when not joined.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Err returns why the session was closed, nil for a normal disconnect.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Deliver queues an event for this session only.
func (s *Session) Deliver(ev Event) error {
	if s.enqueue(ev) {
		return nil
	}
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	s.close(ErrDeliveryTimeout)
	return ErrDeliveryTimeout
}

func (s *Session) enqueue(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

// attach binds the session to room. Called with the room lock held.
func (s *Session) attach(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.room = room
	s.state = StateJoined
	return nil
}

func (s *Session) detach(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != room {
		return
	}
	s.room = ""
	if s.state == StateJoined {
		s.state = StateConnected
	}
}

// close marks the session closed. It reports whether this call closed it.
func (s *Session) close(reason error) bool {
	closed := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.closeErr = reason
		s.mu.Unlock()
		close(s.done)
		closed = true
	})
	return closed
}
