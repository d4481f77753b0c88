package database

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded snapshots in process memory. It is used in tests
// and when no DATABASE_URL is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string, dst any) (bool, error) {
	s.mu.RLock()
	payload, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if err := decodeBlob(key, payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, src any) error {
	payload, err := encodeBlob(src)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.blobs[key] = payload
	s.mu.Unlock()
	return nil
}

// Raw returns the encoded payload stored under key.
func (s *MemoryStore) Raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.blobs[key]
	return payload, ok
}

// Put stores an already encoded payload under key.
func (s *MemoryStore) Put(key string, payload []byte) {
	s.mu.Lock()
	s.blobs[key] = payload
	s.mu.Unlock()
}
