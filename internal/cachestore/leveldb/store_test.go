package leveldb

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/offgate/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newSnapshot(body string) *domain.ResponseSnapshot {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &domain.ResponseSnapshot{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       []byte(body),
		StoredAt:   time.Now().Truncate(time.Millisecond),
	}
}

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	key := domain.RequestKey(http.MethodGet, "/api/v1/dashboard/stats")
	require.NoError(t, store.Put(ctx, "dynamic-v1", key, newSnapshot(`{"cpu":42}`)))

	snapshot, ok := store.Get(ctx, "dynamic-v1", key)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, snapshot.StatusCode)
	assert.Equal(t, []byte(`{"cpu":42}`), snapshot.Body)
	assert.Equal(t, "application/json", snapshot.Header.Get("Content-Type"))
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok := store.Get(ctx, "dynamic-v1", "GET /missing")
	assert.False(t, ok)
}

func TestStore_KeysAreScopedToPartition(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("a")))
	require.NoError(t, store.Put(ctx, "static-v1", "GET /b", newSnapshot("b")))
	require.NoError(t, store.Put(ctx, "dynamic-v1", "GET /c", newSnapshot("c")))

	keys, err := store.Keys(ctx, "static-v1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"GET /a", "GET /b"}, keys)

	keys, err = store.Keys(ctx, "dynamic-v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /c"}, keys)
}

func TestStore_Partitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("a")))
	require.NoError(t, store.Put(ctx, "dynamic-v1", "GET /b", newSnapshot("b")))
	require.NoError(t, store.Put(ctx, "failed-requests", "123-0001", newSnapshot("c")))

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"static-v1", "dynamic-v1", "failed-requests"}, partitions)
}

func TestStore_DropPartition(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("a")))
	require.NoError(t, store.Put(ctx, "static-v1", "GET /b", newSnapshot("b")))
	require.NoError(t, store.Put(ctx, "static-v2", "GET /a", newSnapshot("a2")))

	require.NoError(t, store.DropPartition(ctx, "static-v1"))

	keys, err := store.Keys(ctx, "static-v1")
	require.NoError(t, err)
	assert.Empty(t, keys)

	snapshot, ok := store.Get(ctx, "static-v2", "GET /a")
	require.True(t, ok)
	assert.Equal(t, []byte("a2"), snapshot.Body)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache")

	store, err := New(path)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "static-v1", "GET /index.html", newSnapshot("<html>")))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	snapshot, ok := reopened.Get(ctx, "static-v1", "GET /index.html")
	require.True(t, ok)
	assert.Equal(t, []byte("<html>"), snapshot.Body)
}

func TestStore_KeyWithSpacesRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Request keys embed "METHOD url" with a space separator; the
	// partition separator must not interfere.
	key := "GET /search?q=disk usage"
	require.NoError(t, store.Put(ctx, "dynamic-v1", key, newSnapshot("results")))

	keys, err := store.Keys(ctx, "dynamic-v1")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}
