// Package pool implements the constant-product AMM: POOL_CREATE,
// POOL_ADD_LIQUIDITY, POOL_REMOVE_LIQUIDITY and POOL_SWAP with multi-hop
// routing.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/state"
)

// Swap fee: 3% of the input stays with the pool.
const (
	FeeBps       = 300
	feeNumerator = 10000 - FeeBps
	feeDenom     = 10000

	// LP shares are minted at 18 decimals regardless of token precision.
	LpDecimals = 18

	// First-deposit burn: min(burnCap, minted/burnDivisor) shares are
	// locked forever so the pool can never be fully drained.
	burnCap     = 1000
	burnDivisor = 1000

	// Routing depth for POOL_SWAP and the trade aggregator.
	MaxHops = 3
)

var (
	ErrNotFound      = errors.New("pool not found")
	ErrExists        = errors.New("pool already exists")
	ErrSameToken     = errors.New("pool tokens must differ")
	ErrBadAmount     = errors.New("amount must be positive")
	ErrEmptyReserves = errors.New("pool has no liquidity")
	ErrDustDeposit   = errors.New("deposit too small to mint shares")
	ErrDustWithdraw  = errors.New("withdrawal too small")
	ErrDustSwap      = errors.New("swap amount too small")
	ErrNoRoute       = errors.New("no swap route found")
	ErrSlippage      = errors.New("output below minAmountOut")
	ErrNoPosition    = errors.New("no liquidity position")
	ErrPositionShort = errors.New("position smaller than requested")
)

// Pool is the state document of one liquidity pool. TokenA/TokenB are the
// two identifiers in sorted order; reserves are raw units and mirror the
// pool account's balances exactly.
type Pool struct {
	ID            string        `json:"id"`
	TokenA        string        `json:"tokenA"`
	TokenB        string        `json:"tokenB"`
	ReserveA      amount.Amount `json:"reserveA"`
	ReserveB      amount.Amount `json:"reserveB"`
	TotalLpTokens amount.Amount `json:"totalLpTokens"`
	BurnedLp      amount.Amount `json:"burnedLp"`
	FeeBps        int           `json:"feeBps"`
	LpIdentifier  string        `json:"lpIdentifier"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     int64         `json:"createdAt"`
}

// ID derives the pool id from two token identifiers, order-insensitive.
func ID(tokenA, tokenB string) string {
	a, b := Sort(tokenA, tokenB)
	return a + "_" + b
}

// Sort returns the two identifiers in pool order.
func Sort(tokenA, tokenB string) (string, string) {
	if strings.Compare(tokenA, tokenB) <= 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

// LpIdentifier is the balance key of a pool's share token.
func LpIdentifier(poolID string) string { return "LP_" + poolID }

// Get loads a pool by id.
func Get(ctx context.Context, store *state.Store, id string) (*Pool, bool, error) {
	var p Pool
	found, err := store.Get(ctx, state.CollPools, id, &p)
	if err != nil || !found {
		return nil, found, err
	}
	return &p, true, nil
}

// MustGet loads a pool callers know exists.
func MustGet(ctx context.Context, store *state.Store, id string) (*Pool, error) {
	p, found, err := Get(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Put writes a pool document.
func Put(ctx context.Context, store *state.Store, p *Pool) error {
	return store.Put(ctx, state.CollPools, p.ID, p)
}

// All returns every pool.
func All(ctx context.Context, store *state.Store) ([]*Pool, error) {
	var out []*Pool
	err := store.Scan(ctx, state.CollPools, func(id string, raw []byte) (bool, error) {
		var p Pool
		if err := state.Decode(raw, &p); err != nil {
			return false, err
		}
		out = append(out, &p)
		return true, nil
	})
	return out, err
}

// Reserves orients the pool's reserves for a swap of tokenIn. ok is false
// when the token is not in the pool.
func (p *Pool) Reserves(tokenIn string) (in, out amount.Amount, outToken string, ok bool) {
	switch tokenIn {
	case p.TokenA:
		return p.ReserveA, p.ReserveB, p.TokenB, true
	case p.TokenB:
		return p.ReserveB, p.ReserveA, p.TokenA, true
	default:
		return amount.Zero(), amount.Zero(), "", false
	}
}

// SetReserve writes one side's reserve back by token identifier.
func (p *Pool) SetReserve(token string, v amount.Amount) {
	if token == p.TokenA {
		p.ReserveA = v
	} else {
		p.ReserveB = v
	}
}

// SwapOutput computes the constant-product output for amountIn against the
// given reserves: out = reserveOut * inAfterFee / (reserveIn + inAfterFee)
// with inAfterFee = amountIn * 9700 / 10000.
func SwapOutput(reserveIn, reserveOut, amountIn amount.Amount) (amount.Amount, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return amount.Zero(), ErrEmptyReserves
	}
	afterFee := amountIn.MulDiv(amount.New(feeNumerator), amount.New(feeDenom))
	if afterFee.IsZero() {
		return amount.Zero(), ErrDustSwap
	}
	out := reserveOut.MulDiv(afterFee, reserveIn.Add(afterFee))
	if out.IsZero() {
		return amount.Zero(), ErrDustSwap
	}
	return out, nil
}

// FirstDepositShares computes the initial LP mint: both deposits normalized
// to 18 decimals, geometric mean, minus the locked minimum.
func FirstDepositShares(amountA amount.Amount, decA uint8, amountB amount.Amount, decB uint8) (total, burned, minted amount.Amount) {
	a := amountA.Rescale(decA, LpDecimals)
	b := amountB.Rescale(decB, LpDecimals)
	total = a.Mul(b).Sqrt()
	burned = amount.Min(amount.New(burnCap), total.Div(amount.New(burnDivisor)))
	minted = total.Sub(burned)
	return total, burned, minted
}
