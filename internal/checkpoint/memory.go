package checkpoint

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	state     *State
	updatedAt time.Time
	expiresAt time.Time
}

// MemoryStore is a thread-safe in-memory Store for tests and DB-less
// development runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	ttl     time.Duration

	// now is swappable so tests can control expiry.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory checkpoint store with the
// default TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.records[state.JobID] = &memoryRecord{
		state:     state.Clone(),
		updatedAt: now,
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, jobID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jobID]
	if !ok || !rec.expiresAt.After(s.now()) {
		return nil, nil
	}
	return rec.state.Clone(), nil
}

func (s *MemoryStore) LoadActiveForServer(_ context.Context, serverID int) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var (
		best     *memoryRecord
		bestSeen time.Time
	)
	for _, rec := range s.records {
		if rec.state.ServerID != serverID || !rec.state.Active() {
			continue
		}
		if !rec.expiresAt.After(now) {
			continue
		}
		if best == nil || rec.updatedAt.After(bestSeen) {
			best = rec
			bestSeen = rec.updatedAt
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.state.Clone(), nil
}

func (s *MemoryStore) Cleanup(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int64
	for id, rec := range s.records {
		if !rec.expiresAt.After(now) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}
