package service

import (
	"context"
	"net/http"

	"github.com/joshdurbin/offgate/internal/datacache"
	"github.com/joshdurbin/offgate/internal/domain"
)

// Gateway defines the offline-resilience gateway operations
type Gateway interface {
	// Install precaches the configured static assets
	Install(ctx context.Context) error

	// Activate deletes cache partitions from older cache versions
	Activate(ctx context.Context) error

	// Start launches the background machinery: connectivity probing,
	// reconnect-triggered sync, and the expiry sweeper
	Start(ctx context.Context) error

	// HandleFetch serves a GET request under its classified strategy
	HandleFetch(ctx context.Context, req *http.Request) *domain.ResponseSnapshot

	// HandleMutation forwards a write upstream, or captures it for
	// later replay when the upstream is unreachable. Exactly one of the
	// two return values is non-nil on success.
	HandleMutation(ctx context.Context, req *http.Request) (*domain.ResponseSnapshot, *domain.EnqueueResponse, error)

	// Forward passes a request through to the upstream unmodified,
	// returning the offline sentinel if the network fails. Used for
	// methods outside the strategy and queue surfaces.
	Forward(ctx context.Context, req *http.Request) *domain.ResponseSnapshot

	// TriggerSync drains the mutation queue
	TriggerSync(ctx context.Context) (*domain.SyncResult, error)

	// ListQueued returns all pending mutations in replay order
	ListQueued(ctx context.Context) ([]*domain.QueuedMutation, error)

	// RemoveQueued drops a pending mutation without replaying it
	RemoveQueued(ctx context.Context, id string) error

	// Status reports the gateway lifecycle state, connectivity, and
	// queue depth
	Status(ctx context.Context) (*domain.StatusResponse, error)

	// Records returns the TTL data cache
	Records() *datacache.Cache

	// Close closes the gateway and its dependencies
	Close() error
}
