package queue

import (
	"context"
	"errors"

	"github.com/joshdurbin/offgate/internal/domain"
)

// ErrNotFound is returned when an id has no queued mutation.
var ErrNotFound = errors.New("queued mutation not found")

// Queue defines the interface for the durable offline mutation queue.
// Enqueue is append-only and ordering is FIFO by creation time.
type Queue interface {
	// Enqueue appends a mutation and returns its assigned id
	Enqueue(ctx context.Context, m *domain.QueuedMutation) (string, error)

	// DequeueAll returns every pending mutation in FIFO order without
	// removing anything
	DequeueAll(ctx context.Context) ([]*domain.QueuedMutation, error)

	// Remove deletes a mutation by id
	Remove(ctx context.Context, id string) error

	// IncrementRetry bumps the retry count for a mutation and returns
	// the new count
	IncrementRetry(ctx context.Context, id string) (int, error)

	// Depth returns the number of pending mutations
	Depth(ctx context.Context) (int, error)

	// Close closes the queue's backing store
	Close() error
}
