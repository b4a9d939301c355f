package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/CUknot/lostfound_backend/logger"
)

// Registry tracks which sessions are in which room. Each room has its own
// lock; the map lock is only held to find or retire a room, never while
// delivering.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	log   zerolog.Logger
}

type room struct {
	id      string
	mu      sync.Mutex
	members map[*Session]struct{}
	dead    bool
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		log:   log,
	}
}

// Room is a locked room handed to Do callbacks. It must not escape the
// callback.
type Room struct {
	r  *Registry
	rm *room
}

func (l *Room) ID() string { return l.rm.id }

// Has reports whether s is a member.
func (l *Room) Has(s *Session) bool {
	_, ok := l.rm.members[s]
	return ok
}

// Broadcast queues ev for every member except exclude and returns the
// sessions that accepted it. A member whose queue is full is removed and
// closed.
func (l *Room) Broadcast(ev Event, exclude *Session) []*Session {
	return l.r.fanOut(l.rm, ev, exclude)
}

// Do runs fn while holding the room lock, serializing it against every other
// join, leave and broadcast on the same room.
func (r *Registry) Do(id string, fn func(*Room) error) error {
	rm := r.lock(id)
	defer r.unlock(rm)
	return fn(&Room{r: r, rm: rm})
}

// Join adds s to room id, leaving its previous room first. onJoin runs under
// the room lock after the session is bound but before it becomes a member,
// so nothing broadcast to the room can slip in ahead of it. If onJoin fails
// the session is left unjoined. Joining the room s is already in is a no-op
// and reports joined as false.
func (r *Registry) Join(id string, s *Session, onJoin func() error) (bool, error) {
	if prev := s.Room(); prev != "" && prev != id {
		r.Leave(s)
	}

	rm := r.lock(id)
	defer r.unlock(rm)

	if _, ok := rm.members[s]; ok && s.Room() == id {
		return false, nil
	}
	if err := s.attach(id); err != nil {
		return false, err
	}
	if onJoin != nil {
		if err := onJoin(); err != nil {
			s.detach(id)
			delete(rm.members, s)
			return false, err
		}
	}
	rm.members[s] = struct{}{}
	return true, nil
}

// Leave removes s from its current room. Safe to call more than once.
func (r *Registry) Leave(s *Session) {
	id := s.Room()
	if id == "" {
		return
	}

	r.mu.Lock()
	rm := r.rooms[id]
	r.mu.Unlock()
	if rm == nil {
		s.detach(id)
		return
	}

	rm.mu.Lock()
	delete(rm.members, s)
	s.detach(id)
	r.unlock(rm)
}

// MembersOf returns a snapshot of the members of room id.
func (r *Registry) MembersOf(id string) []*Session {
	r.mu.Lock()
	rm := r.rooms[id]
	r.mu.Unlock()
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.dead {
		return nil
	}
	out := make([]*Session, 0, len(rm.members))
	for s := range rm.members {
		out = append(out, s)
	}
	return out
}

// Rooms returns the number of rooms with at least one member.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// lock returns the live room for id with its lock held, creating it if
// needed. A room retired between lookup and locking is skipped.
func (r *Registry) lock(id string) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[id]
		if !ok {
			rm = &room{id: id, members: make(map[*Session]struct{})}
			r.rooms[id] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		rm.mu.Unlock()
		r.forget(rm)
	}
}

// unlock releases rm and retires it if it has no members left.
func (r *Registry) unlock(rm *room) {
	empty := len(rm.members) == 0
	if empty {
		rm.dead = true
	}
	rm.mu.Unlock()
	if empty {
		r.forget(rm)
	}
}

func (r *Registry) forget(rm *room) {
	r.mu.Lock()
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	r.mu.Unlock()
}

func (r *Registry) fanOut(rm *room, ev Event, exclude *Session) []*Session {
	delivered := make([]*Session, 0, len(rm.members))
	for s := range rm.members {
		if s == exclude {
			continue
		}
		if s.enqueue(ev) {
			delivered = append(delivered, s)
			continue
		}
		delete(rm.members, s)
		if s.close(ErrDeliveryTimeout) {
			r.log.Warn().
				Str(logger.FieldSessionID, s.ID()).
				Str(logger.FieldUserID, s.UserID()).
				Str(logger.FieldRoom, rm.id).
				Msg("outbound queue full, dropping session")
		}
	}
	return delivered
}
