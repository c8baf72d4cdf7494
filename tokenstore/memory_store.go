package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. It is the default backend and
// gives tab-lifetime persistence when the process is the tab.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := rec
	s.rec = &cp
	return nil
}

// Read treats a record without an access token as absent, like [RedisStore].
func (s *MemoryStore) Read(_ context.Context) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rec == nil || s.rec.AccessToken == "" {
		return Record{}, false, nil
	}
	return *s.rec, true, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
	return nil
}
