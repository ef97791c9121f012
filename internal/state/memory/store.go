// Package memory provides an in-memory state store for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

// Store keeps marshaled records in a mutex-guarded map. Records round-trip
// through JSON so behavior matches the disk store, including type fidelity of
// what comes back out.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string][]byte)}
}

// Read unmarshals the record under key into v.
func (s *Store) Read(_ context.Context, key string, v any) error {
	s.mu.RLock()
	data, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return state.ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// Write marshals v and stores it under key.
func (s *Store) Write(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	s.mu.Lock()
	s.records[key] = data
	s.mu.Unlock()
	return nil
}

// Delete removes the record under key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored records (test helper).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
