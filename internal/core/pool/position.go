package pool

import (
	"context"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

// Position tracks one provider's total LP share of a pool, wallet and
// staked combined, so the minted-share ledger always reconciles:
// sum of positions plus the burned minimum equals totalLpTokens.
type Position struct {
	Provider  string        `json:"provider"`
	PoolID    string        `json:"poolId"`
	LpTokens  amount.Amount `json:"lpTokens"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

func positionKey(provider, poolID string) string { return provider + ":" + poolID }

// GetPosition loads a provider's position in a pool.
func GetPosition(ctx context.Context, store *state.Store, provider, poolID string) (*Position, bool, error) {
	var pos Position
	found, err := store.Get(ctx, state.CollLpPositions, positionKey(provider, poolID), &pos)
	if err != nil || !found {
		return nil, found, err
	}
	return &pos, true, nil
}

// PositionsByProvider lists all of one provider's positions.
func PositionsByProvider(ctx context.Context, store *state.Store, provider string) ([]*Position, error) {
	var out []*Position
	err := store.ScanPrefix(ctx, state.CollLpPositions, provider+":", func(id string, raw []byte) (bool, error) {
		var pos Position
		if err := state.Decode(raw, &pos); err != nil {
			return false, err
		}
		out = append(out, &pos)
		return true, nil
	})
	return out, err
}

// PositionsByPool lists every provider's position in one pool. Keys lead
// with the provider, so this is a full-collection scan.
func PositionsByPool(ctx context.Context, store *state.Store, poolID string) ([]*Position, error) {
	var out []*Position
	err := store.Scan(ctx, state.CollLpPositions, func(id string, raw []byte) (bool, error) {
		var pos Position
		if err := state.Decode(raw, &pos); err != nil {
			return false, err
		}
		if pos.PoolID == poolID {
			out = append(out, &pos)
		}
		return true, nil
	})
	return out, err
}

// BumpPosition adds delta (may be negative) to a provider's position,
// creating it on first use and deleting it when it reaches zero.
func BumpPosition(ctx context.Context, store *state.Store, provider, poolID string, delta amount.Amount, now int64) error {
	pos, found, err := GetPosition(ctx, store, provider, poolID)
	if err != nil {
		return err
	}
	if !found {
		if delta.Sign() < 0 {
			return ErrNoPosition
		}
		pos = &Position{Provider: provider, PoolID: poolID, LpTokens: amount.Zero(), CreatedAt: now}
	}
	next := pos.LpTokens.Add(delta)
	if next.IsNegative() {
		return ErrPositionShort
	}
	if next.IsZero() {
		_, err := store.Delete(ctx, state.CollLpPositions, positionKey(provider, poolID))
		return err
	}
	pos.LpTokens = next
	pos.UpdatedAt = now
	return store.Put(ctx, state.CollLpPositions, positionKey(provider, poolID), pos)
}
