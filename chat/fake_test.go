package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memStore struct {
	mu           sync.Mutex
	msgs         map[string][]Message
	participants map[string]map[string]Participant
	now          time.Time

	appendErr  error
	historyErr error
	appends    int
}

func newMemStore() *memStore {
	return &memStore{
		msgs:         make(map[string][]Message),
		participants: make(map[string]map[string]Participant),
		now:          time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *memStore) touchLocked(p Participant) {
	if m.participants[p.Room] == nil {
		m.participants[p.Room] = make(map[string]Participant)
	}
	m.participants[p.Room][p.UserID] = p
}

func (m *memStore) Append(_ context.Context, in NewMessage) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return Message{}, m.appendErr
	}
	m.appends++
	at := m.tick()
	msg := Message{
		Room:       in.Room,
		Seq:        int64(len(m.msgs[in.Room]) + 1),
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Text:       in.Text,
		Timestamp:  in.Timestamp,
		CreatedAt:  at,
	}
	m.msgs[in.Room] = append(m.msgs[in.Room], msg)
	m.touchLocked(Participant{Room: in.Room, UserID: in.SenderID, UserName: in.SenderName, LastActiveAt: at})
	return msg, nil
}

func (m *memStore) History(_ context.Context, room string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	all := m.msgs[room]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

func (m *memStore) LatestPerRoom(_ context.Context, userID string) (map[string]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Message)
	for room, ps := range m.participants {
		if _, ok := ps[userID]; !ok {
			continue
		}
		if msgs := m.msgs[room]; len(msgs) > 0 {
			out[room] = msgs[len(msgs)-1]
		}
	}
	return out, nil
}

func (m *memStore) Touch(_ context.Context, p Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.LastActiveAt = m.tick()
	m.touchLocked(p)
	return nil
}

func (m *memStore) Participants(_ context.Context, room string) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Participant
	for _, p := range m.participants[room] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) Counterparts(_ context.Context, userID string, rooms []string) (map[string]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Participant)
	for _, room := range rooms {
		for _, p := range m.participants[room] {
			if p.UserID == userID {
				continue
			}
			if cur, ok := out[room]; !ok || p.LastActiveAt.After(cur.LastActiveAt) {
				out[room] = p
			}
		}
	}
	return out, nil
}

type memListings struct {
	items map[string]Listing
	err   error
}

func (l memListings) Listings(_ context.Context, ids []string) (map[string]Listing, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[string]Listing)
	for _, id := range ids {
		if it, ok := l.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

type memCache struct {
	mu          sync.Mutex
	data        map[string][]Summary
	gets        int
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]Summary)}
}

func (c *memCache) Get(_ context.Context, userID string) ([]Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[userID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, userID string, s []Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[userID] = s
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.data, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

var errDiskFull = errors.New("disk full")

func testConfig() Config {
	return Config{MaxTextLength: 2000, SendBuffer: 1024, EchoSender: true}
}

func newTestService(t *testing.T, store *memStore, cfg Config) *Service {
	t.Helper()
	return NewService(store, memListings{}, nil, cfg, zerolog.Nop())
}

func connect(t *testing.T, svc *Service, userID, name string) *Session {
	t.Helper()
	s, err := svc.Connect(Identity{UserID: userID, Name: name})
	if err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	t.Cleanup(func() { svc.Disconnect(s) })
	return s
}

func join(t *testing.T, svc *Service, s *Session, room string) []HistoryEntry {
	t.Helper()
	if err := svc.Join(context.Background(), s, room); err != nil {
		t.Fatalf("join %s: %v", room, err)
	}
	ev := next(t, s)
	if ev.Type != EventHistory {
		t.Fatalf("first event after join = %q, want history", ev.Type)
	}
	return ev.Payload.([]HistoryEntry)
}

func next(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Outbound():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s: no event", s.UserID())
		return Event{}
	}
}

func nextMessage(t *testing.T, s *Session) MessagePayload {
	t.Helper()
	ev := next(t, s)
	if ev.Type != EventMessage {
		t.Fatalf("event = %q, want message", ev.Type)
	}
	return ev.Payload.(MessagePayload)
}

func assertQuiet(t *testing.T, s *Session) {
	t.Helper()
	select {
	case ev := <-s.Outbound():
		t.Fatalf("session %s: unexpected %q event", s.UserID(), ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
