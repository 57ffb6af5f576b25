// Package market implements the orderbook exchange: trading pairs, order
// placement and matching at maker price, cancellation and the hybrid
// AMM+orderbook trade router.
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

// Pair trading states.
const (
	PairTrading  = "TRADING"
	PairPreTrade = "PRE_TRADE"
	PairHalted   = "HALTED"
)

var (
	ErrPairNotFound   = errors.New("trading pair not found")
	ErrPairExists     = errors.New("trading pair already exists")
	ErrPairNotTrading = errors.New("pair is not trading")
	ErrSameToken      = errors.New("pair tokens must differ")
)

// Pair is one market's configuration. Base and Quote are full token
// identifiers; prices are raw quote units per raw base unit, so tick and
// lot sizes do the decimal bridging.
type Pair struct {
	ID             string        `json:"id"`
	Base           string        `json:"base"`
	Quote          string        `json:"quote"`
	TickSize       amount.Amount `json:"tickSize"`
	LotSize        amount.Amount `json:"lotSize"`
	MinNotional    amount.Amount `json:"minNotional"`
	MinTradeAmount amount.Amount `json:"minTradeAmount"`
	MaxTradeAmount amount.Amount `json:"maxTradeAmount"`
	Status         string        `json:"status"`
	CreatedAt      int64         `json:"createdAt"`
}

// PairID derives a pair's id from its token identifiers.
func PairID(base, quote string) string { return base + "-" + quote }

// GetPair loads a pair by id.
func GetPair(ctx context.Context, store *state.Store, id string) (*Pair, bool, error) {
	var p Pair
	found, err := store.Get(ctx, state.CollPairs, id, &p)
	if err != nil || !found {
		return nil, found, err
	}
	return &p, true, nil
}

// MustGetPair loads a pair callers know exists.
func MustGetPair(ctx context.Context, store *state.Store, id string) (*Pair, error) {
	p, found, err := GetPair(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPairNotFound, id)
	}
	return p, nil
}

// PutPair writes a pair document.
func PutPair(ctx context.Context, store *state.Store, p *Pair) error {
	return store.Put(ctx, state.CollPairs, p.ID, p)
}

// AllPairs returns every pair, optionally filtered by status.
func AllPairs(ctx context.Context, store *state.Store, status string) ([]*Pair, error) {
	var out []*Pair
	err := store.Scan(ctx, state.CollPairs, func(id string, raw []byte) (bool, error) {
		var p Pair
		if err := state.Decode(raw, &p); err != nil {
			return false, err
		}
		if status == "" || p.Status == status {
			out = append(out, &p)
		}
		return true, nil
	})
	return out, err
}

// FindPair locates the pair connecting two tokens in either orientation and
// reports whether tokenIn is the quote side (a buy of base).
func FindPair(ctx context.Context, store *state.Store, tokenIn, tokenOut string) (p *Pair, buyingBase bool, err error) {
	if p, found, err := GetPair(ctx, store, PairID(tokenOut, tokenIn)); err != nil {
		return nil, false, err
	} else if found {
		return p, true, nil
	}
	if p, found, err := GetPair(ctx, store, PairID(tokenIn, tokenOut)); err != nil {
		return nil, false, err
	} else if found {
		return p, false, nil
	}
	return nil, false, fmt.Errorf("%w: %s/%s", ErrPairNotFound, tokenIn, tokenOut)
}

// PairConfig carries the optional knobs of CreatePair; zero values take the
// defaults (tick 1, lot 1, min notional 1, trade bounds 1..maxTrade).
type PairConfig struct {
	TickSize       amount.Amount
	LotSize        amount.Amount
	MinNotional    amount.Amount
	MinTradeAmount amount.Amount
	MaxTradeAmount amount.Amount
	Status         string
}

// CreatePair registers a trading pair. Pair creation is administrative:
// genesis bootstrap, node configuration and launchpad listing call it
// directly, there is no wire transaction for it.
func CreatePair(ctx context.Context, store *state.Store, base, quote string, cfg PairConfig, now int64) (*Pair, error) {
	if base == quote {
		return nil, ErrSameToken
	}
	id := PairID(base, quote)
	if _, found, err := GetPair(ctx, store, id); err != nil {
		return nil, err
	} else if found {
		return nil, fmt.Errorf("%w: %s", ErrPairExists, id)
	}

	p := &Pair{
		ID:             id,
		Base:           base,
		Quote:          quote,
		TickSize:       orOne(cfg.TickSize),
		LotSize:        orOne(cfg.LotSize),
		MinNotional:    orOne(cfg.MinNotional),
		MinTradeAmount: orOne(cfg.MinTradeAmount),
		MaxTradeAmount: cfg.MaxTradeAmount,
		Status:         cfg.Status,
		CreatedAt:      now,
	}
	if p.Status == "" {
		p.Status = PairTrading
	}
	if err := PutPair(ctx, store, p); err != nil {
		return nil, err
	}
	return p, nil
}

func orOne(v amount.Amount) amount.Amount {
	if v.IsPositive() {
		return v
	}
	return amount.New(1)
}
