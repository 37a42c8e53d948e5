package store

import (
	"context"
	"sync"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

// Memory is the in-process variant of the store, used in local mode and in
// tests. Same contract as Redis, one mutex instead of a server-side script.
type Memory struct {
	capacity int

	mu      sync.Mutex
	count   int
	room    domain.RoomID
	roomOf  map[domain.SessionID]domain.RoomID
	members map[domain.RoomID][]domain.SessionID
}

func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity: capacity,
		roomOf:   make(map[domain.SessionID]domain.RoomID),
		members:  make(map[domain.RoomID][]domain.SessionID),
	}
}

func (s *Memory) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.room = domain.NewRoomID()
	return nil
}

// TryJoin admits and records membership under the one mutex, so the join
// that fills the generation always sees the complete member list.
func (s *Memory) TryJoin(_ context.Context, sid domain.SessionID) (core.JoinTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := core.JoinTicket{Room: s.room, Position: s.count}
	s.roomOf[sid] = t.Room
	s.members[t.Room] = append(s.members[t.Room], sid)
	s.count++
	if s.count >= s.capacity {
		s.room = domain.NewRoomID()
		s.count = 0
		t.Formed = true
	}
	return t, nil
}

func (s *Memory) MembersOf(_ context.Context, room domain.RoomID) ([]domain.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionID, len(s.members[room]))
	copy(out, s.members[room])
	return out, nil
}

func (s *Memory) RoomOf(_ context.Context, sid domain.SessionID) (domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomOf[sid]
	if !ok {
		return "", core.ErrNotFound
	}
	return room, nil
}

func (s *Memory) Remove(_ context.Context, sid domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.roomOf[sid]
	if !ok {
		return nil
	}
	delete(s.roomOf, sid)
	kept := s.members[room][:0]
	for _, m := range s.members[room] {
		if m != sid {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(s.members, room)
	} else {
		s.members[room] = kept
	}
	return nil
}
