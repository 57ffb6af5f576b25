// Package server assembles the node from its configuration: storage, the
// transaction engine, the block ingester and the HTTP API, all run under
// one errgroup so any fatal part stops the whole node.
package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echelon-net/echelond/internal/api"
	"github.com/echelon-net/echelond/internal/config"
	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/chain"
	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/core/tx"
	_ "github.com/echelon-net/echelond/internal/core/tx/all"
	"github.com/echelon-net/echelond/internal/core/witness"
	"github.com/echelon-net/echelond/internal/eventbus"
	"github.com/echelon-net/echelond/internal/state"
	"github.com/echelon-net/echelond/internal/storage/blocklog"
	"github.com/echelon-net/echelond/internal/storage/index"
	"github.com/echelon-net/echelond/internal/storage/kv"
	"github.com/echelon-net/echelond/internal/version"
)

// Node owns every long-lived component of a running echelond.
type Node struct {
	cfg *config.Config

	kv     kv.Store
	store  *state.Store
	ledger *account.Ledger
	books  *book.Registry
	idx    *index.Index
	bus    *eventbus.Bus

	ingester *chain.Ingester
	api      *api.Server
}

// New builds the node: opens storage, bootstraps genesis on first run and
// rebuilds the in-memory orderbooks from persisted state.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	params, err := chainParams(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Backend != kv.BackendMemory {
		if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	backing, err := kv.Open(cfg.Storage.Backend, cfg.KVPath())
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	kvStore, err := kv.WithCache(backing, cfg.Storage.CacheSize)
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("wrap kv cache: %w", err)
	}

	node := &Node{cfg: cfg, kv: kvStore}
	ok := false
	defer func() {
		if !ok {
			node.Close()
		}
	}()

	node.store = state.New(kvStore)
	node.ledger = account.NewLedger(node.store, params.NativeSymbol)
	node.ledger.SetBalanceHook(witness.BalanceHook(node.ledger))
	node.books = book.NewRegistry()
	dispatcher := tx.NewDispatcher(node.store, node.ledger, node.books, params)

	node.idx, err = index.Open(ctx, cfg.Storage.IndexDriver, cfg.ResolvedIndexDSN())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	archive, err := blocklog.New(kvStore, cfg.Storage.BlocklogCompression)
	if err != nil {
		return nil, fmt.Errorf("open block archive: %w", err)
	}
	node.bus = eventbus.New()

	ran, err := chain.Bootstrap(ctx, node.store, node.ledger, params, genesisPairs(cfg))
	if err != nil {
		return nil, fmt.Errorf("genesis bootstrap: %w", err)
	}
	if ran {
		log.Printf("[server] genesis bootstrap complete (chain %s)", params.ChainID)
	}

	// Resting orders live in state; the matchable books live in memory.
	if err := market.RebuildBooks(ctx, node.store, node.books); err != nil {
		return nil, fmt.Errorf("rebuild orderbooks: %w", err)
	}

	processor := chain.NewProcessor(chain.ProcessorConfig{
		Store:      node.store,
		Dispatcher: dispatcher,
		ChainID:    params.ChainID,
		Index:      node.idx,
		Archive:    archive,
		Bus:        node.bus,
	})

	if cfg.Ingest.SourceURL != "" {
		node.ingester = chain.NewIngester(chain.IngesterConfig{
			Source:       chain.NewHTTPSource(cfg.Ingest.SourceURL),
			Processor:    processor,
			Store:        node.store,
			StartHeight:  cfg.Ingest.StartHeight,
			PollInterval: time.Duration(cfg.Ingest.PollIntervalMS) * time.Millisecond,
			QueueSize:    cfg.Ingest.QueueSize,
		})
	}

	if cfg.API.Enabled {
		node.api = api.NewServer(api.Config{
			Store:        node.store,
			Ledger:       node.ledger,
			Index:        node.idx,
			Bus:          node.bus,
			Bind:         cfg.API.Bind,
			ChainID:      params.ChainID,
			Version:      version.Full(),
			Peers:        cfg.Peers,
			RateLimit:    cfg.API.RateLimit,
			RateBurst:    cfg.API.RateBurst,
			ReadTimeout:  time.Duration(cfg.API.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.API.WriteTimeoutSec) * time.Second,
		})
	}

	ok = true
	return node, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if n.ingester != nil {
		g.Go(func() error { return n.ingester.Run(ctx) })
		log.Printf("[server] ingesting from %s", n.cfg.Ingest.SourceURL)
	} else {
		log.Printf("[server] no block source configured; serving existing state only")
	}
	if n.api != nil {
		g.Go(func() error { return n.api.Run(ctx) })
		log.Printf("[server] api listening on %s", n.cfg.API.Bind)
	}

	err := g.Wait()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Close releases storage and the event bus. Safe on a partially built node.
func (n *Node) Close() error {
	if n.bus != nil {
		n.bus.Close()
	}
	var firstErr error
	if n.idx != nil {
		if err := n.idx.Close(); err != nil {
			firstErr = err
		}
	}
	if n.kv != nil {
		if err := n.kv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Store exposes the state store for read-only tooling (replay, status).
func (n *Node) Store() *state.Store { return n.store }

// chainParams maps the config onto engine parameters.
func chainParams(cfg *config.Config) (tx.Params, error) {
	reward, err := amount.Parse(cfg.Node.BlockReward)
	if err != nil {
		return tx.Params{}, fmt.Errorf("parse block_reward: %w", err)
	}
	maxTrade, err := amount.Parse(cfg.Market.MaxTradeAmount)
	if err != nil {
		return tx.Params{}, fmt.Errorf("parse max_trade_amount: %w", err)
	}
	return tx.Params{
		ChainID:           cfg.Node.ChainID,
		NativeSymbol:      cfg.Node.NativeSymbol,
		NativeDecimals:    uint8(cfg.Node.NativeDecimals),
		MasterAccount:     cfg.Node.MasterAccount,
		BlockReward:       reward,
		MaxTradeAmount:    maxTrade,
		RequireSignatures: cfg.Security.RequireSignatures,
	}, nil
}

func genesisPairs(cfg *config.Config) []chain.GenesisPair {
	pairs := make([]chain.GenesisPair, 0, len(cfg.GenesisPairs))
	for _, p := range cfg.GenesisPairs {
		pairs = append(pairs, chain.GenesisPair{Base: p.Base, Quote: p.Quote})
	}
	return pairs
}
