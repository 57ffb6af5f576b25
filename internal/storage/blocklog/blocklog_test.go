package blocklog

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/storage/kv"
)

func testBlock(height uint64) []byte {
	// Repetitive JSON so the lz4 path actually engages.
	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":"2024-01-01T00:00:00","transactions":[`)
	for i := 0; i < 20; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"operations":[["custom_json",{"id":"echelon","payload":{"seq":%d,"height":%d}}]]}`, i, height)
	}
	buf.WriteString("]}")
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []string{CompressionLZ4, CompressionNone} {
		t.Run(mode, func(t *testing.T) {
			log, err := New(kv.NewMemory(), mode)
			require.NoError(t, err)

			raw := testBlock(7)
			require.NoError(t, log.Append(ctx, 7, raw))

			got, err := log.Block(ctx, 7)
			require.NoError(t, err)
			assert.Equal(t, raw, got)

			ok, err := log.Has(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = log.Has(ctx, 8)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = log.Block(ctx, 8)
			assert.ErrorIs(t, err, ErrNotArchived)
		})
	}
}

func TestCompressionShrinksRecord(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	log, err := New(store, CompressionLZ4)
	require.NoError(t, err)

	raw := testBlock(1)
	require.NoError(t, log.Append(ctx, 1, raw))

	rec, err := store.Read(ctx, blockKey(1))
	require.NoError(t, err)
	assert.Equal(t, flagLZ4, rec[0])
	assert.Less(t, len(rec), len(raw))
}

func TestSmallBlocksStayRaw(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	log, err := New(store, CompressionLZ4)
	require.NoError(t, err)

	raw := []byte(`{"transactions":[]}`)
	require.NoError(t, log.Append(ctx, 3, raw))

	rec, err := store.Read(ctx, blockKey(3))
	require.NoError(t, err)
	assert.Equal(t, flagRaw, rec[0])

	got, err := log.Block(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestWalkVisitsHeightOrder(t *testing.T) {
	ctx := context.Background()
	log, err := New(kv.NewMemory(), CompressionLZ4)
	require.NoError(t, err)

	for _, h := range []uint64{5, 1, 300, 2} {
		require.NoError(t, log.Append(ctx, h, testBlock(h)))
	}

	var heights []uint64
	err = log.Walk(ctx, 2, func(height uint64, raw []byte) (bool, error) {
		assert.Equal(t, testBlock(height), raw)
		heights = append(heights, height)
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 5, 300}, heights)

	// Early stop.
	heights = heights[:0]
	err = log.Walk(ctx, 0, func(height uint64, raw []byte) (bool, error) {
		heights = append(heights, height)
		return height == 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 5}, heights)
}

func TestUnknownCompressionRejected(t *testing.T) {
	_, err := New(kv.NewMemory(), "zstd")
	assert.ErrorContains(t, err, "unknown blocklog compression")
}
