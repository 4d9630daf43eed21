package sessionstore

import (
	"context"
	"sync"
)

type sessionKey struct {
	userID string
	key    string
}

// MemoryStore keeps values in process memory. Values are copied in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[sessionKey][]byte
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[sessionKey][]byte{}}
}

func (s *MemoryStore) Get(_ context.Context, userID, key string) ([]byte, bool, error) {
	if err := validate(userID, key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[sessionKey{userID, key}]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, userID, key string, value []byte) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[sessionKey{userID, key}] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, key string) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, sessionKey{userID, key})
	return nil
}

func (s *MemoryStore) Close() error { return nil }
