package memory

import (
	"context"
	"sync"

	"github.com/joshdurbin/offgate/internal/cachestore"
	"github.com/joshdurbin/offgate/internal/domain"
)

// Store implements cachestore.Store using in-memory storage
type Store struct {
	partitions map[string]map[string]*domain.ResponseSnapshot
	mutex      sync.RWMutex
}

// New creates a new in-memory cache store
func New() *Store {
	return &Store{
		partitions: make(map[string]map[string]*domain.ResponseSnapshot),
	}
}

// Get retrieves a stored snapshot by partition and request key
func (s *Store) Get(ctx context.Context, partition, key string) (*domain.ResponseSnapshot, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries, exists := s.partitions[partition]
	if !exists {
		return nil, false
	}

	snapshot, exists := entries[key]
	if !exists {
		return nil, false
	}

	// Return a copy to prevent external modification
	return snapshot.Clone(), true
}

// Put stores a snapshot, replacing any existing entry for the key
func (s *Store) Put(ctx context.Context, partition, key string, snapshot *domain.ResponseSnapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, exists := s.partitions[partition]
	if !exists {
		entries = make(map[string]*domain.ResponseSnapshot)
		s.partitions[partition] = entries
	}

	// Store a copy to prevent external modification
	entries[key] = snapshot.Clone()

	return nil
}

// Delete removes a single entry
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if entries, exists := s.partitions[partition]; exists {
		delete(entries, key)
	}
	return nil
}

// Keys returns all request keys stored in a partition
func (s *Store) Keys(ctx context.Context, partition string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := s.partitions[partition]
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}

	return keys, nil
}

// Partitions returns the names of all partitions holding at least one entry
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name, entries := range s.partitions {
		if len(entries) > 0 {
			names = append(names, name)
		}
	}

	return names, nil
}

// DropPartition removes a partition and all of its entries
func (s *Store) DropPartition(ctx context.Context, partition string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.partitions, partition)
	return nil
}

// Close closes the store (no-op for the in-memory implementation)
func (s *Store) Close() error {
	return nil
}

// Ensure Store implements the interface
var _ cachestore.Store = (*Store)(nil)
