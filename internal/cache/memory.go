package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Artifact)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[key]
	if !ok {
		return nil, ErrMiss
	}
	return &Artifact{Raw: clone(a.Raw), GeoJSON: clone(a.GeoJSON)}, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return nil
	}
	s.items[key] = Artifact{Raw: clone(a.Raw), GeoJSON: clone(a.GeoJSON)}
	return nil
}

// Len returns the number of stored artifacts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
