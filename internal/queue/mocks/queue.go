package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/offgate/internal/domain"
)

// Queue is a mock implementation of queue.Queue
type Queue struct {
	mock.Mock
}

// Enqueue appends a mutation and returns its assigned id
func (m *Queue) Enqueue(ctx context.Context, mutation *domain.QueuedMutation) (string, error) {
	args := m.Called(ctx, mutation)
	return args.String(0), args.Error(1)
}

// DequeueAll returns every pending mutation in FIFO order
func (m *Queue) DequeueAll(ctx context.Context) ([]*domain.QueuedMutation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.QueuedMutation), args.Error(1)
}

// Remove deletes a mutation by id
func (m *Queue) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// IncrementRetry bumps the retry count for a mutation
func (m *Queue) IncrementRetry(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

// Depth returns the number of pending mutations
func (m *Queue) Depth(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// Close closes the queue's backing store
func (m *Queue) Close() error {
	args := m.Called()
	return args.Error(0)
}
