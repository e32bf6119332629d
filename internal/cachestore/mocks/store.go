package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/offgate/internal/domain"
)

// Store is a mock implementation of cachestore.Store
type Store struct {
	mock.Mock
}

// Get retrieves a stored snapshot by partition and request key
func (m *Store) Get(ctx context.Context, partition, key string) (*domain.ResponseSnapshot, bool) {
	args := m.Called(ctx, partition, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.ResponseSnapshot), args.Bool(1)
}

// Put stores a snapshot, replacing any existing entry for the key
func (m *Store) Put(ctx context.Context, partition, key string, snapshot *domain.ResponseSnapshot) error {
	args := m.Called(ctx, partition, key, snapshot)
	return args.Error(0)
}

// Delete removes a single entry
func (m *Store) Delete(ctx context.Context, partition, key string) error {
	args := m.Called(ctx, partition, key)
	return args.Error(0)
}

// Keys returns all request keys stored in a partition
func (m *Store) Keys(ctx context.Context, partition string) ([]string, error) {
	args := m.Called(ctx, partition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Partitions returns the names of all partitions holding at least one entry
func (m *Store) Partitions(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// DropPartition removes a partition and all of its entries
func (m *Store) DropPartition(ctx context.Context, partition string) error {
	args := m.Called(ctx, partition)
	return args.Error(0)
}

// Close closes the store
func (m *Store) Close() error {
	args := m.Called()
	return args.Error(0)
}
