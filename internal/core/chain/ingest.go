package chain

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echelon-net/echelond/internal/state"
)

// Source is where blocks come from. Head reports the newest height the
// source can serve; BlockAt returns found=false for heights it does not
// have yet.
type Source interface {
	Head(ctx context.Context) (uint64, error)
	BlockAt(ctx context.Context, height uint64) ([]byte, bool, error)
}

// IngesterConfig wires the polling loop.
type IngesterConfig struct {
	Source    Source
	Processor *Processor
	Store     *state.Store

	// StartHeight is the first block to fetch when the node has no head
	// yet. Zero means 1.
	StartHeight uint64
	// PollInterval is how often the source head is re-checked. Zero means
	// 3s, the source-chain block cadence.
	PollInterval time.Duration
	// QueueSize bounds the fetched-but-unapplied backlog; fetching blocks
	// when the executor falls behind. Zero means 64.
	QueueSize int
}

// Ingester pulls blocks from the source and feeds them to the processor:
// one goroutine fetches ahead into a bounded queue, one applies serially.
type Ingester struct {
	cfg IngesterConfig
}

func NewIngester(cfg IngesterConfig) *Ingester {
	if cfg.StartHeight == 0 {
		cfg.StartHeight = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Ingester{cfg: cfg}
}

type fetchedBlock struct {
	height uint64
	raw    []byte
}

// Run ingests until ctx is cancelled. Source hiccups are logged and
// retried on the next poll; a processor error is fatal because retrying a
// deterministic failure cannot succeed.
func (ing *Ingester) Run(ctx context.Context) error {
	next, err := ing.resumeHeight(ctx)
	if err != nil {
		return err
	}
	log.Printf("[chain] ingesting from block %d", next)

	queue := make(chan fetchedBlock, ing.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		ticker := time.NewTicker(ing.cfg.PollInterval)
		defer ticker.Stop()
		for {
			next = ing.fetchBatch(gctx, next, queue)
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		for blk := range queue {
			if _, err := ing.cfg.Processor.ApplyBlock(gctx, blk.height, blk.raw); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// resumeHeight picks where ingestion continues: right after the stored
// head, or at the configured start on first boot.
func (ing *Ingester) resumeHeight(ctx context.Context) (uint64, error) {
	head, err := ing.cfg.Store.GetHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: read head: %w", err)
	}
	if head.Height > 0 {
		return head.Height + 1, nil
	}
	return ing.cfg.StartHeight, nil
}

// fetchBatch pulls every block the source has from next up to its head,
// returning the new next height. Blocking on the queue is the
// back-pressure: fetch stalls while the executor catches up.
func (ing *Ingester) fetchBatch(ctx context.Context, next uint64, queue chan<- fetchedBlock) uint64 {
	srcHead, err := ing.cfg.Source.Head(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[chain] source head: %v", err)
		}
		return next
	}
	for next <= srcHead {
		raw, found, err := ing.cfg.Source.BlockAt(ctx, next)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[chain] fetch block %d: %v", next, err)
			}
			return next
		}
		if !found {
			return next
		}
		select {
		case queue <- fetchedBlock{height: next, raw: raw}:
			next++
		case <-ctx.Done():
			return next
		}
	}
	return next
}
