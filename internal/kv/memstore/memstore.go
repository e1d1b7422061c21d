// Package memstore provides an in-memory implementation of kv.Store.
package memstore

import (
	"context"
	"sync"
)

// Store holds values in memory. Suitable for dev/testing; state does not
// survive a restart.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get retrieves the value for key. Returns a copy.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
