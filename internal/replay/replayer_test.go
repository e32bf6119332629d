package replay

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/offgate/internal/cachestore/memory"
	"github.com/joshdurbin/offgate/internal/config"
	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/metrics"
	"github.com/joshdurbin/offgate/internal/netstatus"
	queuesqlite "github.com/joshdurbin/offgate/internal/queue/sqlite"
)

// scriptedFetcher routes each fetch through a per-test hook.
type scriptedFetcher struct {
	mu    sync.Mutex
	hook  func(method, url string) (*domain.ResponseSnapshot, error)
	calls []string
}

func (f *scriptedFetcher) Fetch(ctx context.Context, method, requestURI string, header http.Header, body []byte) (*domain.ResponseSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+requestURI)
	hook := f.hook
	f.mu.Unlock()

	return hook(method, requestURI)
}

func (f *scriptedFetcher) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func okSnapshot() *domain.ResponseSnapshot {
	return &domain.ResponseSnapshot{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		StoredAt:   time.Now(),
	}
}

func newTestQueue(t *testing.T) *queuesqlite.Queue {
	t.Helper()
	q, err := queuesqlite.New(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func testReplayConfig() config.ReplayConfig {
	return config.ReplayConfig{
		MaxRetries:    3,
		RetryDelay:    0,
		ReplayTimeout: 5 * time.Second,
	}
}

func enqueue(t *testing.T, q *queuesqlite.Queue, method, url string, maxRetries int) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), &domain.QueuedMutation{
		Method:     method,
		URL:        url,
		Header:     make(http.Header),
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)
	return id
}

func TestReplayer_PartialFailureKeepsDraining(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	store := memory.New()

	idA := enqueue(t, q, http.MethodPost, "/a", 3)
	idB := enqueue(t, q, http.MethodPut, "/b", 3)
	idC := enqueue(t, q, http.MethodDelete, "/c", 3)
	_ = idA
	_ = idC

	fetcher := &scriptedFetcher{hook: func(method, url string) (*domain.ResponseSnapshot, error) {
		if url == "/b" {
			return nil, errors.New("still offline")
		}
		return okSnapshot(), nil
	}}

	replayer := New(q, fetcher, store, metrics.New(), testReplayConfig())

	result, err := replayer.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Replayed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Dropped)

	// /c was still attempted after /b failed, in order.
	assert.Equal(t, []string{"POST /a", "PUT /b", "DELETE /c"}, fetcher.callLog())

	remaining, err := q.DequeueAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, idB, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].RetryCount)
}

func TestReplayer_RetryCountIncrementsOncePerFailedAttempt(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	enqueue(t, q, http.MethodPost, "/a", 5)

	fetcher := &scriptedFetcher{hook: func(method, url string) (*domain.ResponseSnapshot, error) {
		return nil, errors.New("offline")
	}}
	replayer := New(q, fetcher, memory.New(), metrics.New(), testReplayConfig())

	for i := 1; i <= 3; i++ {
		_, err := replayer.Sync(ctx)
		require.NoError(t, err)

		remaining, err := q.DequeueAll(ctx)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, i, remaining[0].RetryCount)
	}
}

func TestReplayer_ExhaustedMutationIsDroppedAndSurfaced(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	store := memory.New()

	id := enqueue(t, q, http.MethodPost, "/a", 1)

	fetcher := &scriptedFetcher{hook: func(method, url string) (*domain.ResponseSnapshot, error) {
		return nil, errors.New("offline")
	}}
	replayer := New(q, fetcher, store, metrics.New(), testReplayConfig())

	// Attempt 1: retryCount=1 <= maxRetries, kept.
	result, err := replayer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Dropped)

	// Attempt 2: retryCount=2 > maxRetries, dropped.
	result, err = replayer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Dropped)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	// The loss is surfaced on the failures channel...
	select {
	case failed := <-replayer.Failures():
		assert.Equal(t, id, failed.ID)
		assert.Equal(t, 2, failed.RetryCount)
	case <-time.After(time.Second):
		t.Fatal("expected a terminal failure signal")
	}

	// ...and dead-lettered into the failed-requests partition.
	_, ok := store.Get(ctx, config.FailedRequestsPartition, id)
	assert.True(t, ok)
}

func TestReplayer_DeliveredServerErrorCountsAsReplayed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	enqueue(t, q, http.MethodPost, "/a", 3)

	fetcher := &scriptedFetcher{hook: func(method, url string) (*domain.ResponseSnapshot, error) {
		return &domain.ResponseSnapshot{
			StatusCode: http.StatusUnprocessableEntity,
			Header:     make(http.Header),
			StoredAt:   time.Now(),
		}, nil
	}}
	replayer := New(q, fetcher, memory.New(), metrics.New(), testReplayConfig())

	result, err := replayer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "a delivered mutation is removed even on an HTTP error status")
}

func TestReplayer_ConcurrentSyncRejected(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	enqueue(t, q, http.MethodPost, "/a", 3)

	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &scriptedFetcher{hook: func(method, url string) (*domain.ResponseSnapshot, error) {
		close(started)
		<-release
		return okSnapshot(), nil
	}}
	replayer := New(q, fetcher, memory.New(), metrics.New(), testReplayConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := replayer.Sync(ctx)
		assert.NoError(t, err)
	}()

	<-started
	_, err := replayer.Sync(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	<-done

	// Once the first drain finishes, syncing works again.
	_, err = replayer.Sync(ctx)
	assert.NoError(t, err)
}

func TestReplayer_WatchDrainsOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newTestQueue(t)
	enqueue(t, q, http.MethodPost, "/a", 3)

	fetcher := &scriptedFetcher{hook: func(method, url string) (*domain.ResponseSnapshot, error) {
		return okSnapshot(), nil
	}}
	replayer := New(q, fetcher, memory.New(), metrics.New(), testReplayConfig())

	observer := netstatus.New()
	replayer.Watch(ctx, observer.Subscribe())

	observer.SetOnline(false)
	observer.SetOnline(true)

	assert.Eventually(t, func() bool {
		depth, err := q.Depth(context.Background())
		return err == nil && depth == 0
	}, 2*time.Second, 10*time.Millisecond)
}
