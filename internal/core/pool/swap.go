package pool

import (
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Swap is POOL_SWAP. The route is discovered at apply time; MinAmountOut
// bounds the final output across all hops.
type Swap struct {
	TokenIn      string        `json:"tokenIn"`
	TokenOut     string        `json:"tokenOut"`
	AmountIn     amount.Amount `json:"amountIn"`
	MinAmountOut amount.Amount `json:"minAmountOut,omitempty"`
}

func init() {
	tx.Register(tx.TypePoolSwap, func() tx.Operation { return &Swap{} })
}

func (s *Swap) TxType() tx.Type { return tx.TypePoolSwap }

func (s *Swap) Validate(ctx *tx.Context) error {
	if !s.AmountIn.IsPositive() {
		return ErrBadAmount
	}
	if s.TokenIn == s.TokenOut {
		return ErrSameToken
	}
	if s.MinAmountOut.IsNegative() {
		return ErrBadAmount
	}
	for _, id := range []string{s.TokenIn, s.TokenOut} {
		if _, err := token.MustGet(ctx.Ctx, ctx.Store, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Swap) Apply(ctx *tx.Context) error {
	route, err := BestRoute(ctx.Ctx, ctx.Store, s.TokenIn, s.TokenOut, s.AmountIn)
	if err != nil {
		return err
	}
	// Nothing has changed between simulation and settlement inside one
	// transaction, so the simulated output is the settled output; checking
	// it here keeps the pool documents untouched on a slippage failure.
	if !s.MinAmountOut.IsZero() && route.AmountOut.Cmp(s.MinAmountOut) < 0 {
		return ErrSlippage
	}
	out, err := ExecuteRoute(ctx, route)
	if err != nil {
		return err
	}

	hops := make([]map[string]any, len(route.Hops))
	for i, h := range route.Hops {
		hops[i] = map[string]any{"poolId": h.PoolID, "tokenIn": h.TokenIn, "tokenOut": h.TokenOut}
	}
	ctx.Emit(event.CategoryPool, "swapped", map[string]any{
		"tokenIn":   s.TokenIn,
		"tokenOut":  s.TokenOut,
		"amountIn":  s.AmountIn,
		"amountOut": out,
		"route":     hops,
	})
	return nil
}

// ExecuteRoute settles every hop of a simulated route: the full input of a
// hop enters the pool (the fee accrues to the reserves) and the computed
// output leaves it through the sender's wallet. Returns the final output.
func ExecuteRoute(ctx *tx.Context, route *Route) (amount.Amount, error) {
	in := route.Hops[0].AmountIn
	for _, hop := range route.Hops {
		p, err := MustGet(ctx.Ctx, ctx.Store, hop.PoolID)
		if err != nil {
			return amount.Zero(), err
		}
		rIn, rOut, _, ok := p.Reserves(hop.TokenIn)
		if !ok {
			return amount.Zero(), ErrNoRoute
		}
		out, err := SwapOutput(rIn, rOut, in)
		if err != nil {
			return amount.Zero(), err
		}

		if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, hop.TokenIn, in.Neg()); err != nil {
			return amount.Zero(), err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, p.ID, hop.TokenIn, in); err != nil {
			return amount.Zero(), err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, p.ID, hop.TokenOut, out.Neg()); err != nil {
			return amount.Zero(), err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, hop.TokenOut, out); err != nil {
			return amount.Zero(), err
		}

		p.SetReserve(hop.TokenIn, rIn.Add(in))
		p.SetReserve(hop.TokenOut, rOut.Sub(out))
		if err := Put(ctx.Ctx, ctx.Store, p); err != nil {
			return amount.Zero(), err
		}
		in = out
	}
	return in, nil
}
