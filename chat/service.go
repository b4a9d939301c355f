package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const invalidateTimeout = 2 * time.Second

// Service is the entry point used by the transports.
type Service struct {
	store    MessageStore
	manager  *Manager
	registry *Registry
	index    *SummaryIndex
	cfg      Config
}

// NewService wires a relay over store. cache may be nil.
func NewService(store MessageStore, listings ListingDirectory, cache SummaryCache, cfg Config, log zerolog.Logger) *Service {
	registry := NewRegistry(log)
	manager := NewManager(store, registry, cfg, log)
	index := NewSummaryIndex(store, listings, cache, log)

	if cache != nil {
		manager.OnAppend(func(m Message) {
			ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
			defer cancel()
			index.Invalidate(ctx, m.Room)
		})
		manager.OnTouch(func(p Participant) {
			ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
			defer cancel()
			index.Forget(ctx, p.UserID)
		})
	}

	return &Service{
		store:    store,
		manager:  manager,
		registry: registry,
		index:    index,
		cfg:      cfg,
	}
}

func (s *Service) Connect(id Identity) (*Session, error) {
	return s.manager.Connect(id)
}

func (s *Service) Join(ctx context.Context, sess *Session, room string) error {
	return s.manager.Join(ctx, sess, room)
}

func (s *Service) Send(ctx context.Context, sess *Session, in Inbound) (Message, error) {
	return s.manager.Send(ctx, sess, in)
}

func (s *Service) Leave(sess *Session) {
	s.manager.Leave(sess)
}

func (s *Service) Disconnect(sess *Session) {
	s.manager.Disconnect(sess)
}

func (s *Service) Reject(sess *Session, err error) {
	s.manager.Reject(sess, err)
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]Summary, error) {
	return s.index.ListConversations(ctx, userID)
}

// History returns the stored messages of room in sequence order. limit <= 0
// falls back to the configured history limit.
func (s *Service) History(ctx context.Context, room string, limit int) ([]Message, error) {
	room, err := ValidateRoom(room)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	msgs, err := s.store.History(ctx, room, limit)
	if err != nil {
		return nil, asPersistence("load history", err)
	}
	return msgs, nil
}

func (s *Service) Online(room string) int {
	return s.manager.Online(room)
}

// Sessions returns the number of open sessions.
func (s *Service) Sessions() int {
	return s.manager.Sessions()
}

// Rooms returns the number of rooms with someone in them.
func (s *Service) Rooms() int {
	return s.registry.Rooms()
}

func (s *Service) Shutdown() {
	s.manager.Shutdown()
}
