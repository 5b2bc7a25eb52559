package signull

import (
	"sync"
	"time"
)

// EmptyRoom is a room that has not been opened yet. The first create or join
// opens it with the given settings.
func EmptyRoom(id string, settings Settings) Room {
	return Room{
		ID:       id,
		Phase:    PhaseLobby,
		Players:  make(map[string]*Player),
		Settings: settings,
		Rotation: Rotation{Mode: settings.TurnMode},
	}
}

// Session owns the live snapshot of one room. Commands are applied one at a
// time under mu, which is the critical section every answer to the active
// signull passes through, so racing connects and intercepts always produce
// exactly one terminal outcome.
type Session struct {
	mu      sync.Mutex
	room    Room
	subs    map[int]chan Room
	nextSub int
	now     func() time.Time
}

func NewSession(room Room) *Session {
	return &Session{
		room: room,
		subs: make(map[int]chan Room),
		now:  time.Now,
	}
}

// Apply stamps cmd with the current time if it has none, applies it, and
// publishes the new snapshot to subscribers when something changed.
func (s *Session) Apply(cmd Command) (Room, []Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.At.IsZero() {
		cmd.At = s.now()
	}
	next, events, err := Apply(s.room, cmd)
	if err != nil {
		return s.room, nil, err
	}
	if cmd.Kind.IsQuery() {
		return next, nil, nil
	}
	s.room = next
	for _, ch := range s.subs {
		publish(ch, next)
	}
	return next, events, nil
}

// Snapshot returns the current room.
func (s *Session) Snapshot() Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Subscribe returns a stream of snapshots, starting with the current one.
// Slow subscribers only ever miss intermediate snapshots, never the latest.
func (s *Session) Subscribe(buffer int) (<-chan Room, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Room, max(buffer, 1))
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.room

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Close ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func publish(ch chan Room, room Room) {
	for {
		select {
		case ch <- room:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
