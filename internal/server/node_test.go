package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/config"
	"github.com/echelon-net/echelond/internal/core/market"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Node: config.NodeConfig{
			DataDir: t.TempDir(), ChainID: "echelon", MasterAccount: "echelon",
			NativeSymbol: "ECH", NativeDecimals: 8, BlockReward: "100000000",
		},
		Storage: config.StorageConfig{
			Backend: "memory", CacheSize: 128, IndexDriver: "sqlite",
			IndexDSN: filepath.Join(t.TempDir(), "index.db"), BlocklogCompression: "lz4",
		},
		API:          config.APIConfig{Enabled: true, Bind: "127.0.0.1:0"},
		Ingest:       config.IngestConfig{PollIntervalMS: 100, QueueSize: 8},
		Market:       config.MarketConfig{MaxTradeAmount: "1000000000000000000000"},
		GenesisPairs: []config.GenesisPair{{Base: "ECH", Quote: "USD"}},
	}
}

func TestNodeBootAndShutdown(t *testing.T) {
	ctx := context.Background()
	node, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer node.Close()

	// Genesis ran: master account and the seeded pair exist.
	acct, found, err := node.ledger.Get(ctx, "echelon")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "echelon", acct.Name)

	pair, found, err := market.GetPair(ctx, node.Store(), "ECH-USD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, market.PairTrading, pair.Status)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- node.Run(runCtx) }()

	// Give the API listener a beat, then ask for shutdown.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not shut down")
	}
}

func TestNewRejectsBadParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Node.BlockReward = "not-a-number"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block_reward")
}
