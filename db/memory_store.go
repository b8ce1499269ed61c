package db

import (
	"context"
	"sync"

	"gym-agent-server-go/models"
)

// MemoryStore holds collections in process memory. Used by tests and by
// STORE_BACKEND=memory.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]models.Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]models.Record)}
}

// Load returns a copy of the collection.
func (s *MemoryStore) Load(_ context.Context, collection string) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneRecords(s.collections[collection])
}

// Replace stores a copy of records.
func (s *MemoryStore) Replace(_ context.Context, collection string, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = models.CloneRecords(records)
	return nil
}
