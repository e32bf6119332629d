package cachestore

import (
	"context"

	"github.com/joshdurbin/offgate/internal/domain"
)

// Store defines the interface for the partitioned HTTP response cache.
// A request key belongs to exactly one entry per partition; Put replaces
// any existing entry. Put and Get are atomic per key.
type Store interface {
	// Get retrieves a stored snapshot by partition and request key
	Get(ctx context.Context, partition, key string) (*domain.ResponseSnapshot, bool)

	// Put stores a snapshot, replacing any existing entry for the key
	Put(ctx context.Context, partition, key string, snapshot *domain.ResponseSnapshot) error

	// Delete removes a single entry
	Delete(ctx context.Context, partition, key string) error

	// Keys returns all request keys stored in a partition
	Keys(ctx context.Context, partition string) ([]string, error)

	// Partitions returns the names of all partitions holding at least one entry
	Partitions(ctx context.Context) ([]string, error)

	// DropPartition removes a partition and all of its entries
	DropPartition(ctx context.Context, partition string) error

	// Close closes the store (if applicable)
	Close() error
}
