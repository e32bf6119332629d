package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	storemocks "github.com/joshdurbin/offgate/internal/cachestore/mocks"
	"github.com/joshdurbin/offgate/internal/config"
	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/metrics"
	"github.com/joshdurbin/offgate/internal/netstatus"
	queuemocks "github.com/joshdurbin/offgate/internal/queue/mocks"
	"github.com/joshdurbin/offgate/internal/strategy"
)

// fakeFetcher routes every upstream fetch through a per-test hook.
type fakeFetcher struct {
	hook func(method, requestURI string) (*domain.ResponseSnapshot, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, method, requestURI string, header http.Header, body []byte) (*domain.ResponseSnapshot, error) {
	return f.hook(method, requestURI)
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.New("8090", "http://dashboard:8080", "offgate.db", "memory", "", "",
		3, 0, 5*time.Second, time.Minute, 0, false)
	require.NoError(t, err)
	return cfg
}

func okSnapshot(status int, body string) *domain.ResponseSnapshot {
	return &domain.ResponseSnapshot{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       []byte(body),
		StoredAt:   time.Now(),
	}
}

func TestGateway_InstallPrecachesAndSkipsFailures(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Routes.Precache = []string{"/offline.html", "/static/app.js", "/static/missing.css"}

	fetcher := &fakeFetcher{hook: func(method, requestURI string) (*domain.ResponseSnapshot, error) {
		switch requestURI {
		case "/offline.html":
			return okSnapshot(http.StatusOK, "<html>"), nil
		case "/static/app.js":
			return okSnapshot(http.StatusOK, "js"), nil
		default:
			return nil, errors.New("connection refused")
		}
	}}

	store := new(storemocks.Store)
	store.On("Put", mock.Anything, "static-v1", "GET /offline.html", mock.Anything).Return(nil)
	store.On("Put", mock.Anything, "static-v1", "GET /static/app.js", mock.Anything).Return(nil)

	g := New(cfg, store, new(queuemocks.Queue), fetcher, netstatus.New(), metrics.New())

	// A single unreachable asset never fails the install.
	require.NoError(t, g.Install(ctx))
	store.AssertExpectations(t)
}

func TestGateway_InstallSkipsNonOKResponses(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Routes.Precache = []string{"/static/gone.css"}

	fetcher := &fakeFetcher{hook: func(method, requestURI string) (*domain.ResponseSnapshot, error) {
		return okSnapshot(http.StatusNotFound, "not found"), nil
	}}

	store := new(storemocks.Store)
	g := New(cfg, store, new(queuemocks.Queue), fetcher, netstatus.New(), metrics.New())

	require.NoError(t, g.Install(ctx))
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGateway_ActivateDropsStalePartitions(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Cache.Version = 2

	store := new(storemocks.Store)
	store.On("Partitions", mock.Anything).Return(
		[]string{"static-v1", "dynamic-v1", "static-v2", "dynamic-v2", "failed-requests"}, nil)
	store.On("DropPartition", mock.Anything, "static-v1").Return(nil)
	store.On("DropPartition", mock.Anything, "dynamic-v1").Return(nil)

	g := New(cfg, store, new(queuemocks.Queue), &fakeFetcher{}, netstatus.New(), metrics.New())

	require.NoError(t, g.Activate(ctx))

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "DropPartition", mock.Anything, "static-v2")
	store.AssertNotCalled(t, "DropPartition", mock.Anything, "dynamic-v2")
	store.AssertNotCalled(t, "DropPartition", mock.Anything, "failed-requests")
}

func TestGateway_HandleMutationOnlineForwardsUpstream(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	fetcher := &fakeFetcher{hook: func(method, requestURI string) (*domain.ResponseSnapshot, error) {
		return okSnapshot(http.StatusCreated, `{"id":7}`), nil
	}}

	q := new(queuemocks.Queue)
	g := New(cfg, new(storemocks.Store), q, fetcher, netstatus.New(), metrics.New())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/servers", strings.NewReader(`{"name":"web-1"}`))
	snapshot, queued, err := g.HandleMutation(ctx, req)
	require.NoError(t, err)

	require.NotNil(t, snapshot)
	assert.Nil(t, queued)
	assert.Equal(t, http.StatusCreated, snapshot.StatusCode)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestGateway_HandleMutationOfflineQueues(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	observer := netstatus.New()
	observer.SetOnline(false)

	q := new(queuemocks.Queue)
	q.On("Enqueue", mock.Anything, mock.AnythingOfType("*domain.QueuedMutation")).Return("1724400000000-0001", nil)
	q.On("Depth", mock.Anything).Return(1, nil)

	g := New(cfg, new(storemocks.Store), q, &fakeFetcher{}, observer, metrics.New())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/servers/42", strings.NewReader(`{"name":"web-2"}`))
	req.Header.Set("Authorization", "Bearer token")

	snapshot, queued, err := g.HandleMutation(ctx, req)
	require.NoError(t, err)

	assert.Nil(t, snapshot)
	require.NotNil(t, queued)
	assert.Equal(t, "1724400000000-0001", queued.ID)
	assert.True(t, queued.Queued)
	assert.False(t, queued.QueuedAt.IsZero())

	// The mutation was captured with its method, URL, headers and body.
	q.AssertExpectations(t)
	captured := q.Calls[0].Arguments.Get(1).(*domain.QueuedMutation)
	assert.Equal(t, http.MethodPut, captured.Method)
	assert.Equal(t, "/api/v1/servers/42", captured.URL)
	assert.Equal(t, "Bearer token", captured.Header.Get("Authorization"))
	assert.Equal(t, []byte(`{"name":"web-2"}`), captured.Body)
	assert.Equal(t, cfg.Replay.MaxRetries, captured.MaxRetries)
}

func TestGateway_HandleMutationFetchFailureQueuesAndFlipsOffline(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	observer := netstatus.New()
	fetcher := &fakeFetcher{hook: func(method, requestURI string) (*domain.ResponseSnapshot, error) {
		return nil, errors.New("connection refused")
	}}

	q := new(queuemocks.Queue)
	q.On("Enqueue", mock.Anything, mock.Anything).Return("1724400000000-0002", nil)
	q.On("Depth", mock.Anything).Return(1, nil)

	g := New(cfg, new(storemocks.Store), q, fetcher, observer, metrics.New())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/servers/42", nil)
	snapshot, queued, err := g.HandleMutation(ctx, req)
	require.NoError(t, err)

	assert.Nil(t, snapshot)
	require.NotNil(t, queued)
	assert.False(t, observer.Online(), "a failed mutation fetch marks the upstream offline")
}

func TestGateway_ForwardReturnsSentinelOnNetworkFailure(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	fetcher := &fakeFetcher{hook: func(method, requestURI string) (*domain.ResponseSnapshot, error) {
		return nil, errors.New("connection refused")
	}}

	g := New(cfg, new(storemocks.Store), new(queuemocks.Queue), fetcher, netstatus.New(), metrics.New())

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/servers/42", nil)
	snapshot := g.Forward(ctx, req)

	require.NotNil(t, snapshot)
	assert.Equal(t, http.StatusServiceUnavailable, snapshot.StatusCode)
	assert.True(t, strategy.IsOfflineSentinel(snapshot))
}

func TestGateway_Status(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	q := new(queuemocks.Queue)
	q.On("Depth", mock.Anything).Return(2, nil)

	g := New(cfg, new(storemocks.Store), q, &fakeFetcher{}, netstatus.New(), metrics.New())

	status, err := g.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StateIdle, status.State)
	assert.True(t, status.Network.IsOnline)
	assert.Equal(t, 2, status.QueueDepth)
}

func TestGateway_RemoveQueued(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	q := new(queuemocks.Queue)
	q.On("Remove", mock.Anything, "1724400000000-0001").Return(nil)
	q.On("Depth", mock.Anything).Return(0, nil)

	g := New(cfg, new(storemocks.Store), q, &fakeFetcher{}, netstatus.New(), metrics.New())

	require.NoError(t, g.RemoveQueued(ctx, "1724400000000-0001"))
	q.AssertExpectations(t)
}
