package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/storage/kv"
)

type testDoc struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func newStore(t *testing.T) *Store {
	t.Helper()
	mem := kv.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return New(mem)
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var missing testDoc
	found, err := s.Get(ctx, CollAccounts, "alice", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, CollAccounts, "alice", testDoc{Name: "alice", Value: 7}))

	var got testDoc
	found, err = s.Get(ctx, CollAccounts, "alice", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, testDoc{Name: "alice", Value: 7}, got)

	existed, err := s.Delete(ctx, CollAccounts, "alice")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, CollAccounts, "alice")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestScanIsolatesCollections(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, CollTokens, "ECH", testDoc{Name: "ECH"}))
	require.NoError(t, s.Put(ctx, CollTokens, "USD", testDoc{Name: "USD"}))
	require.NoError(t, s.Put(ctx, CollPools, "ECH_USD", testDoc{Name: "pool"}))

	var ids []string
	err := s.Scan(ctx, CollTokens, func(id string, raw []byte) (bool, error) {
		ids = append(ids, id)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ECH", "USD"}, ids)

	n, err := s.Count(ctx, CollPools)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Put(ctx, CollLpPositions, "alice:ECH_USD", testDoc{}))
	require.NoError(t, s.Put(ctx, CollLpPositions, "alice:BTC_ECH", testDoc{}))
	require.NoError(t, s.Put(ctx, CollLpPositions, "bob:ECH_USD", testDoc{}))

	var ids []string
	err := s.ScanPrefix(ctx, CollLpPositions, "alice:", func(id string, raw []byte) (bool, error) {
		ids = append(ids, id)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice:BTC_ECH", "alice:ECH_USD"}, ids)
}

func TestHead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	h, err := s.GetHead(ctx)
	require.NoError(t, err)
	assert.Zero(t, h.Height)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetHead(ctx, Head{Height: 42, BlockID: "abc", Timestamp: now}))

	h, err = s.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h.Height)
	assert.Equal(t, "abc", h.BlockID)
	assert.True(t, now.Equal(h.Timestamp))
}
