package mocks

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/offgate/internal/datacache"
	"github.com/joshdurbin/offgate/internal/domain"
)

// Gateway is a mock implementation of service.Gateway
type Gateway struct {
	mock.Mock
}

// Install precaches the configured static assets
func (m *Gateway) Install(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Activate deletes cache partitions from older cache versions
func (m *Gateway) Activate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Start launches the background machinery
func (m *Gateway) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// HandleFetch serves a GET request under its classified strategy
func (m *Gateway) HandleFetch(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	args := m.Called(ctx, req)
	return args.Get(0).(*domain.ResponseSnapshot)
}

// HandleMutation forwards a write upstream or captures it for replay
func (m *Gateway) HandleMutation(ctx context.Context, req *http.Request) (*domain.ResponseSnapshot, *domain.EnqueueResponse, error) {
	args := m.Called(ctx, req)
	var snapshot *domain.ResponseSnapshot
	if args.Get(0) != nil {
		snapshot = args.Get(0).(*domain.ResponseSnapshot)
	}
	var queued *domain.EnqueueResponse
	if args.Get(1) != nil {
		queued = args.Get(1).(*domain.EnqueueResponse)
	}
	return snapshot, queued, args.Error(2)
}

// Forward passes a request through to the upstream unmodified
func (m *Gateway) Forward(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	args := m.Called(ctx, req)
	return args.Get(0).(*domain.ResponseSnapshot)
}

// TriggerSync drains the mutation queue
func (m *Gateway) TriggerSync(ctx context.Context) (*domain.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncResult), args.Error(1)
}

// ListQueued returns all pending mutations in replay order
func (m *Gateway) ListQueued(ctx context.Context) ([]*domain.QueuedMutation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.QueuedMutation), args.Error(1)
}

// RemoveQueued drops a pending mutation without replaying it
func (m *Gateway) RemoveQueued(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Status reports the gateway lifecycle state, connectivity and queue depth
func (m *Gateway) Status(ctx context.Context) (*domain.StatusResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatusResponse), args.Error(1)
}

// Records returns the TTL data cache
func (m *Gateway) Records() *datacache.Cache {
	args := m.Called()
	return args.Get(0).(*datacache.Cache)
}

// Close closes the gateway and its dependencies
func (m *Gateway) Close() error {
	args := m.Called()
	return args.Error(0)
}
