package history

import (
	"sync"
)

// Store remembers which questions were shown to each user for the lifetime of the process.
// It is not shared between instances.
type Store struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		seen: make(map[string]map[string]struct{}),
	}
}

// Add marks a question as shown to a user.
func (s *Store) Add(user, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.add(user, id)
}

func (s *Store) Seen(user, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[user][id]
	return ok
}

// Len returns the number of questions shown to a user.
func (s *Store) Len(user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.seen[user])
}

// Next returns the index of the first id the user has not seen, scanning ids cyclically from start,
// and marks it as seen. When every id has been seen they are forgotten and index 0 is returned.
func (s *Store) Next(user string, ids []string, start int) int {
	if len(ids) == 0 {
		return -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range ids {
		idx := (start + i) % len(ids)
		if _, ok := s.seen[user][ids[idx]]; !ok {
			s.add(user, ids[idx])
			return idx
		}
	}

	for _, id := range ids {
		delete(s.seen[user], id)
	}
	s.add(user, ids[0])

	return 0
}

func (s *Store) add(user, id string) {
	set, ok := s.seen[user]
	if !ok {
		set = make(map[string]struct{})
		s.seen[user] = set
	}
	set[id] = struct{}{}
}
