package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CUknot/lostfound_backend/logger"
)

// Config tunes the relay.
type Config struct {
	MaxTextLength int
	HistoryLimit  int
	SendBuffer    int
	// EchoSender delivers a message back to the session that sent it.
	EchoSender bool
}

// Inbound is a message event as received from a client.
type Inbound struct {
	Room      string
	SenderID  string
	User      string
	Text      string
	Timestamp string
}

// Manager drives the session state machine:
// connected -> joined -> closed, with join allowed again from joined.
type Manager struct {
	store    MessageStore
	registry *Registry
	cfg      Config
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	onAppend []func(Message)
	onTouch  []func(Participant)
}

func NewManager(store MessageStore, registry *Registry, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// OnAppend registers fn to run after each message is stored and broadcast.
func (m *Manager) OnAppend(fn func(Message)) {
	m.mu.Lock()
	m.onAppend = append(m.onAppend, fn)
	m.mu.Unlock()
}

// OnTouch registers fn to run after a session is recorded as a participant
// on join.
func (m *Manager) OnTouch(fn func(Participant)) {
	m.mu.Lock()
	m.onTouch = append(m.onTouch, fn)
	m.mu.Unlock()
}

// Connect opens a session for an authenticated identity.
func (m *Manager) Connect(id Identity) (*Session, error) {
	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		return nil, &ValidationError{Field: "identity", Reason: "missing user id"}
	}
	if strings.TrimSpace(id.Name) == "" {
		id.Name = id.UserID
	}

	s := newSession(uuid.NewString(), id, m.cfg.SendBuffer)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.log.Debug().
		Str(logger.FieldSessionID, s.id).
		Str(logger.FieldUserID, id.UserID).
		Msg("session connected")
	return s, nil
}

// Join moves s into room and pushes the room history as the first event the
// session sees from that room. Live messages follow with no gap and no
// overlap. Joining the current room again changes nothing.
func (m *Manager) Join(ctx context.Context, s *Session, room string) error {
	room, err := ValidateRoom(room)
	if err != nil {
		return err
	}
	if s.State() == StateClosed {
		return ErrSessionClosed
	}

	var received bool
	joined, err := m.registry.Join(room, s, func() error {
		history, err := m.store.History(ctx, room, m.cfg.HistoryLimit)
		if err != nil {
			return asPersistence("load history", err)
		}
		if !s.enqueue(Event{Type: EventHistory, Payload: HistoryEntries(history)}) {
			s.close(ErrDeliveryTimeout)
			return ErrDeliveryTimeout
		}
		received = len(history) > 0
		return nil
	})
	if err != nil {
		return err
	}
	if !joined {
		return nil
	}

	// An empty room is not a conversation until a message reaches the user.
	if received {
		m.touch(ctx, Participant{Room: room, UserID: s.UserID(), UserName: s.Name()}, s.id)
	}

	m.log.Debug().
		Str(logger.FieldSessionID, s.id).
		Str(logger.FieldRoom, room).
		Msg("session joined")
	return nil
}

func (m *Manager) touch(ctx context.Context, p Participant, sessionID string) {
	if err := m.store.Touch(context.WithoutCancel(ctx), p); err != nil {
		m.log.Warn().Err(err).
			Str(logger.FieldSessionID, sessionID).
			Str(logger.FieldRoom, p.Room).
			Msg("record participant")
		return
	}

	m.mu.Lock()
	hooks := m.onTouch
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(p)
	}
}

// Send stores the message and then delivers it to every member of the
// sender's room. Nothing is delivered if storing fails.
func (m *Manager) Send(ctx context.Context, s *Session, in Inbound) (Message, error) {
	if s.State() == StateClosed {
		return Message{}, ErrSessionClosed
	}
	inRoom, err := ValidateRoom(in.Room)
	if err != nil {
		return Message{}, err
	}
	if in.SenderID == "" && in.User == "" {
		return Message{}, &ValidationError{Field: "sender", Reason: "required"}
	}
	if in.SenderID != "" && in.SenderID != s.UserID() {
		return Message{}, &ValidationError{Field: "sender_id", Reason: "does not match the connection"}
	}
	room := s.Room()
	if room == "" || room != inRoom {
		return Message{}, ErrNotJoined
	}
	if err := ValidateText(in.Text, m.cfg.MaxTextLength); err != nil {
		return Message{}, err
	}

	// Appends outlive the connection that started them.
	ctx = context.WithoutCancel(ctx)

	var (
		stored     Message
		recipients []*Session
	)
	err = m.registry.Do(room, func(r *Room) error {
		if !r.Has(s) {
			return ErrNotJoined
		}
		msg, err := m.store.Append(ctx, NewMessage{
			Room:       room,
			SenderID:   s.UserID(),
			SenderName: s.Name(),
			Text:       in.Text,
			Timestamp:  in.Timestamp,
		})
		if err != nil {
			return asPersistence("append message", err)
		}
		stored = msg

		var exclude *Session
		if !m.cfg.EchoSender {
			exclude = s
		}
		recipients = r.Broadcast(Event{Type: EventMessage, Payload: messagePayload(msg)}, exclude)
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	// The sender was recorded with the message; everyone it reached joins the
	// conversation too.
	seen := map[string]bool{stored.SenderID: true}
	for _, rs := range recipients {
		if seen[rs.UserID()] {
			continue
		}
		seen[rs.UserID()] = true
		p := Participant{Room: room, UserID: rs.UserID(), UserName: rs.Name(), LastActiveAt: stored.CreatedAt}
		if err := m.store.Touch(ctx, p); err != nil {
			m.log.Warn().Err(err).
				Str(logger.FieldSessionID, rs.id).
				Str(logger.FieldRoom, room).
				Msg("record recipient")
		}
	}

	m.mu.Lock()
	hooks := m.onAppend
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(stored)
	}
	return stored, nil
}

// Leave takes s out of its room without closing it.
func (m *Manager) Leave(s *Session) {
	room := s.Room()
	m.registry.Leave(s)
	if room != "" {
		m.log.Debug().
			Str(logger.FieldSessionID, s.id).
			Str(logger.FieldRoom, room).
			Msg("session left")
	}
}

// Disconnect closes s and removes it from its room. In-flight sends finish;
// s receives nothing afterwards.
func (m *Manager) Disconnect(s *Session) {
	s.close(nil)
	m.registry.Leave(s)

	m.mu.Lock()
	_, ok := m.sessions[s.id]
	delete(m.sessions, s.id)
	m.mu.Unlock()

	if ok {
		ev := m.log.Debug().Str(logger.FieldSessionID, s.id)
		if err := s.Err(); err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("session disconnected")
	}
}

// Reject reports err to s alone.
func (m *Manager) Reject(s *Session, err error) {
	payload := ErrorPayload{Code: Code(err), Message: err.Error()}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		payload.Message = "message could not be saved, please retry"
	}
	if derr := s.Deliver(Event{Type: EventError, Payload: payload}); derr != nil {
		m.log.Debug().Err(derr).Str(logger.FieldSessionID, s.id).Msg("error event not delivered")
	}
}

// Online returns how many sessions are in room.
func (m *Manager) Online(room string) int {
	return len(m.registry.MembersOf(room))
}

// Sessions returns the number of open sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown disconnects every open session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		m.Disconnect(s)
	}
}

func asPersistence(op string, err error) error {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
