package rooms

import (
	"sync"
)

// Storage keeps rooms by code. Implementations only guard the mapping;
// room fields are guarded by the room's own lock.
type Storage interface {
	Get(code string) (*Room, bool)
	Put(room *Room)
	Delete(code string)
	List() []*Room
	Clear()
}

// MemoryStore is the in-process Storage.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*Room),
	}
}

func (s *MemoryStore) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[code]
	return r, ok
}

func (s *MemoryStore) Put(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.Code] = room
}

func (s *MemoryStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

func (s *MemoryStore) List() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	return list
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]*Room)
}
