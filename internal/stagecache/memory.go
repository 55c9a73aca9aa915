package stagecache

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	address string
	stage   string
}

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]Entry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, address, stage string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[memoryKey{address, stage}]
	if !ok {
		return nil, nil
	}
	data := make([]byte, len(e.Data))
	copy(data, e.Data)
	return &Entry{Data: data, UpdatedAt: e.UpdatedAt}, nil
}

func (s *MemoryStore) Put(_ context.Context, address, stage string, entry Entry) error {
	data := make([]byte, len(entry.Data))
	copy(data, entry.Data)

	s.mu.Lock()
	s.entries[memoryKey{address, stage}] = Entry{Data: data, UpdatedAt: entry.UpdatedAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// PurgeOlderThan drops entries last written before cutoff
func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, e := range s.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
