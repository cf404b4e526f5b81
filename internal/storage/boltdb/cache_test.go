package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/storage"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	cache, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache
}

func TestCache_PersistLoad(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	state := []byte(`{"document_id":"doc-1"}`)
	require.NoError(t, cache.Persist(ctx, "doc-1", state))

	loaded, err := cache.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestCache_LoadMissing(t *testing.T) {
	cache := newTestCache(t)

	_, err := cache.Load(context.Background(), "unknown")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}

func TestCache_Overwrite(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Persist(ctx, "doc-1", []byte("v1")))
	require.NoError(t, cache.Persist(ctx, "doc-1", []byte("v2")))

	loaded, err := cache.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), loaded)
}

func TestCache_Delete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Persist(ctx, "doc-1", []byte("state")))
	require.NoError(t, cache.Delete(ctx, "doc-1"))

	_, err := cache.Load(ctx, "doc-1")
	assert.ErrorIs(t, err, storage.ErrStateNotFound)

	// Удаление несуществующего - no-op
	assert.NoError(t, cache.Delete(ctx, "doc-1"))
}

func TestCache_CanceledContext(t *testing.T) {
	cache := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, cache.Persist(ctx, "doc-1", []byte("state")))
	_, err := cache.Load(ctx, "doc-1")
	assert.Error(t, err)
}
