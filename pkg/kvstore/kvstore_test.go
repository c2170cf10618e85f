package kvstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backend/pkg/kvstore"
)

func exerciseStore(t *testing.T, store kvstore.Store) {
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "a", []byte("one")))
	require.NoError(t, store.Set(ctx, "a", []byte("two")))
	require.NoError(t, store.Set(ctx, "b", []byte("three")))

	v, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("two"), v)

	require.NoError(t, store.Clear(ctx))

	_, ok, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, kvstore.NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestSQLite(t *testing.T) {
	store, err := kvstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLite_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := kvstore.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("kept")))
	require.NoError(t, store.Close())

	reopened, err := kvstore.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("kept"), v)
}
