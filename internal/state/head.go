package state

import (
	"context"
	"time"
)

const headID = "head"

// Head is the chain-position document updated after every applied block.
type Head struct {
	Height    uint64    `json:"height"`
	BlockID   string    `json:"blockId"`
	Timestamp time.Time `json:"timestamp"`
}

// GetHead returns the current chain head, or a zero head before genesis.
func (s *Store) GetHead(ctx context.Context) (Head, error) {
	var h Head
	if _, err := s.Get(ctx, CollChain, headID, &h); err != nil {
		return Head{}, err
	}
	return h, nil
}

// SetHead records the chain position after a block is applied.
func (s *Store) SetHead(ctx context.Context, h Head) error {
	return s.Put(ctx, CollChain, headID, h)
}
