package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"splashgate/portal-service/internal/metrics"
)

// MemoryStore keeps handshake state in-process with TTL and bounded
// cardinality via LRU. Suitable for a single replica.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*list.Element
	lru  *list.List
	ttl  time.Duration
	cap  int
	now  func() time.Time
}

type entry struct {
	id        string
	state     HandshakeState
	expiresAt time.Time
}

// NewMemoryStore creates a store; capacity <= 0 falls back to 10k entries.
func NewMemoryStore(ttl time.Duration, capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &MemoryStore{
		data: make(map[string]*list.Element, capacity/2),
		lru:  list.New(),
		ttl:  ttl,
		cap:  capacity,
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, id string, state HandshakeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := s.now().Add(s.ttl)
	if el, ok := s.data[id]; ok {
		en := el.Value.(*entry)
		en.state = state
		en.expiresAt = exp
		s.lru.MoveToFront(el)
		return nil
	}

	// Capacity guard: evict LRU tail if full.
	if s.lru.Len() >= s.cap {
		if back := s.lru.Back(); back != nil {
			old := back.Value.(*entry)
			delete(s.data, old.id)
			s.lru.Remove(back)
		}
	}
	s.data[id] = s.lru.PushFront(&entry{id: id, state: state, expiresAt: exp})
	metrics.ActiveSessions.Set(float64(s.lru.Len()))
	return nil
}

// Get returns a copy of the stored state.
func (s *MemoryStore) Get(_ context.Context, id string) (HandshakeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.data[id]
	if !ok {
		return HandshakeState{}, ErrNoActiveHandshake
	}
	en := el.Value.(*entry)
	if s.now().After(en.expiresAt) {
		delete(s.data, id)
		s.lru.Remove(el)
		metrics.ActiveSessions.Set(float64(s.lru.Len()))
		return HandshakeState{}, ErrNoActiveHandshake
	}
	s.lru.MoveToFront(el)
	return en.state, nil
}

// Delete is idempotent.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.data[id]; ok {
		delete(s.data, id)
		s.lru.Remove(el)
		metrics.ActiveSessions.Set(float64(s.lru.Len()))
	}
	return nil
}

// Len reports the number of entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *MemoryStore) Close() error { return nil }
