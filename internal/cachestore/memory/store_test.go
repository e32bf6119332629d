package memory

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/offgate/internal/domain"
)

func newSnapshot(body string) *domain.ResponseSnapshot {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain")
	return &domain.ResponseSnapshot{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       []byte(body),
		StoredAt:   time.Now(),
	}
}

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store := New()

	key := domain.RequestKey(http.MethodGet, "/static/app.css")
	require.NoError(t, store.Put(ctx, "static-v1", key, newSnapshot("body{}")))

	snapshot, ok := store.Get(ctx, "static-v1", key)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, snapshot.StatusCode)
	assert.Equal(t, []byte("body{}"), snapshot.Body)
	assert.Equal(t, "text/plain", snapshot.Header.Get("Content-Type"))
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, ok := store.Get(ctx, "static-v1", "GET /missing")
	assert.False(t, ok)
}

func TestStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, "dynamic-v1", "GET /api/v1/stats", newSnapshot("old")))
	require.NoError(t, store.Put(ctx, "dynamic-v1", "GET /api/v1/stats", newSnapshot("new")))

	snapshot, ok := store.Get(ctx, "dynamic-v1", "GET /api/v1/stats")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), snapshot.Body)

	keys, err := store.Keys(ctx, "dynamic-v1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestStore_PartitionIsolation(t *testing.T) {
	ctx := context.Background()
	store := New()

	key := "GET /index.html"
	require.NoError(t, store.Put(ctx, "static-v1", key, newSnapshot("v1")))
	require.NoError(t, store.Put(ctx, "static-v2", key, newSnapshot("v2")))

	snapshot, ok := store.Get(ctx, "static-v1", key)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), snapshot.Body)

	snapshot, ok = store.Get(ctx, "static-v2", key)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), snapshot.Body)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("a")))
	require.NoError(t, store.Delete(ctx, "static-v1", "GET /a"))

	_, ok := store.Get(ctx, "static-v1", "GET /a")
	assert.False(t, ok)

	// Deleting a missing entry is a no-op
	assert.NoError(t, store.Delete(ctx, "static-v1", "GET /a"))
	assert.NoError(t, store.Delete(ctx, "no-such-partition", "GET /a"))
}

func TestStore_Partitions(t *testing.T) {
	ctx := context.Background()
	store := New()

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, partitions)

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("a")))
	require.NoError(t, store.Put(ctx, "dynamic-v1", "GET /b", newSnapshot("b")))

	partitions, err = store.Partitions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"static-v1", "dynamic-v1"}, partitions)
}

func TestStore_DropPartition(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("a")))
	require.NoError(t, store.Put(ctx, "static-v1", "GET /b", newSnapshot("b")))
	require.NoError(t, store.Put(ctx, "static-v2", "GET /a", newSnapshot("a")))

	require.NoError(t, store.DropPartition(ctx, "static-v1"))

	_, ok := store.Get(ctx, "static-v1", "GET /a")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "static-v2", "GET /a")
	assert.True(t, ok)

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v2"}, partitions)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", newSnapshot("abc")))

	first, ok := store.Get(ctx, "static-v1", "GET /a")
	require.True(t, ok)
	first.Body[0] = 'X'
	first.Header.Set("Content-Type", "application/octet-stream")

	second, ok := store.Get(ctx, "static-v1", "GET /a")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), second.Body)
	assert.Equal(t, "text/plain", second.Header.Get("Content-Type"))
}

func TestStore_PutStoresCopy(t *testing.T) {
	ctx := context.Background()
	store := New()

	snapshot := newSnapshot("abc")
	require.NoError(t, store.Put(ctx, "static-v1", "GET /a", snapshot))
	snapshot.Body[0] = 'X'

	stored, ok := store.Get(ctx, "static-v1", "GET /a")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), stored.Body)
}
