package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	pebbleStore, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { pebbleStore.Close() })

	levelStore, err := OpenLevelDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { levelStore.Close() })

	memStore := NewMemory()
	t.Cleanup(func() { memStore.Close() })

	cached, err := WithCache(NewMemory(), 64)
	require.NoError(t, err)
	t.Cleanup(func() { cached.Close() })

	return map[string]Store{
		"pebble":  pebbleStore,
		"leveldb": levelStore,
		"memory":  memStore,
		"cached":  cached,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := []byte("accounts\x00alice")
			val := []byte(`{"name":"alice"}`)

			_, err := store.Read(ctx, key)
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, store.Write(ctx, key, val))
			got, err := store.Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, val, got)

			// Returned values are private copies.
			got[0] = 'X'
			again, err := store.Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, val, again)

			require.NoError(t, store.Delete(ctx, key))
			_, err = store.Read(ctx, key)
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestBatch(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Write(ctx, []byte("doomed"), []byte("x")))

			ops := []BatchOperation{
				{Type: BatchPut, Key: []byte("a"), Value: []byte("1")},
				{Type: BatchPut, Key: []byte("b"), Value: []byte("2")},
				{Type: BatchDelete, Key: []byte("doomed")},
			}
			require.NoError(t, store.Batch(ctx, ops))

			got, err := store.Read(ctx, []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), got)

			_, err = store.Read(ctx, []byte("doomed"))
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestIterateRange(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			prefix := []byte("orders\x00")
			for _, id := range []string{"01", "02", "03"} {
				require.NoError(t, store.Write(ctx, append(append([]byte{}, prefix...), id...), []byte(id)))
			}
			require.NoError(t, store.Write(ctx, []byte("pairs\x00x"), []byte("other")))

			it, err := store.Iterate(ctx, prefix, PrefixEnd(prefix))
			require.NoError(t, err)
			defer it.Close()

			var seen []string
			for it.Next() {
				seen = append(seen, string(it.Value()))
			}
			require.NoError(t, it.Error())
			assert.Equal(t, []string{"01", "02", "03"}, seen, "prefix scan is ordered and bounded")
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("accounts\x01"), PrefixEnd([]byte("accounts\x00")))
	assert.Equal(t, []byte("b"), PrefixEnd([]byte("a")))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}

func TestCacheCoherence(t *testing.T) {
	ctx := context.Background()

	inner := NewMemory()
	store, err := WithCache(inner, 8)
	require.NoError(t, err)
	cached := store.(*CachedStore)

	key := []byte("tokens\x00ECH")
	require.NoError(t, store.Write(ctx, key, []byte("v1")))

	got, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	hits, _ := cached.Stats()
	assert.Equal(t, uint64(1), hits, "write populated the cache")

	// Writes keep cached reads coherent.
	require.NoError(t, store.Write(ctx, key, []byte("v2")))
	got, err = store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Read(ctx, key)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
