package pool

import (
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// AddLiquidity is POOL_ADD_LIQUIDITY. AmountA/AmountB follow the pool's
// sorted token order.
type AddLiquidity struct {
	PoolID  string        `json:"poolId"`
	AmountA amount.Amount `json:"amountA"`
	AmountB amount.Amount `json:"amountB"`
}

func init() {
	tx.Register(tx.TypePoolAddLiquidity, func() tx.Operation { return &AddLiquidity{} })
	tx.Register(tx.TypePoolRemoveLiquidity, func() tx.Operation { return &RemoveLiquidity{} })
}

func (a *AddLiquidity) TxType() tx.Type { return tx.TypePoolAddLiquidity }

func (a *AddLiquidity) Validate(ctx *tx.Context) error {
	if !a.AmountA.IsPositive() || !a.AmountB.IsPositive() {
		return ErrBadAmount
	}
	if _, err := MustGet(ctx.Ctx, ctx.Store, a.PoolID); err != nil {
		return err
	}
	return nil
}

func (a *AddLiquidity) Apply(ctx *tx.Context) error {
	p, err := MustGet(ctx.Ctx, ctx.Store, a.PoolID)
	if err != nil {
		return err
	}

	// Deposits move into the pool account in lock-step with the reserves.
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, p.TokenA, a.AmountA.Neg()); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, p.ID, p.TokenA, a.AmountA); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, p.TokenB, a.AmountB.Neg()); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, p.ID, p.TokenB, a.AmountB); err != nil {
		return err
	}

	var minted amount.Amount
	if p.TotalLpTokens.IsZero() {
		tokA, err := token.MustGet(ctx.Ctx, ctx.Store, p.TokenA)
		if err != nil {
			return err
		}
		tokB, err := token.MustGet(ctx.Ctx, ctx.Store, p.TokenB)
		if err != nil {
			return err
		}
		total, burned, first := FirstDepositShares(a.AmountA, tokA.Precision, a.AmountB, tokB.Precision)
		if !first.IsPositive() {
			return ErrDustDeposit
		}
		p.TotalLpTokens = total
		p.BurnedLp = burned
		minted = first
	} else {
		byA := a.AmountA.MulDiv(p.TotalLpTokens, p.ReserveA)
		byB := a.AmountB.MulDiv(p.TotalLpTokens, p.ReserveB)
		minted = amount.Min(byA, byB)
		if !minted.IsPositive() {
			return ErrDustDeposit
		}
		p.TotalLpTokens = p.TotalLpTokens.Add(minted)
	}

	p.ReserveA = p.ReserveA.Add(a.AmountA)
	p.ReserveB = p.ReserveB.Add(a.AmountB)
	if err := Put(ctx.Ctx, ctx.Store, p); err != nil {
		return err
	}

	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, p.LpIdentifier, minted); err != nil {
		return err
	}
	if err := BumpPosition(ctx.Ctx, ctx.Store, ctx.Sender, p.ID, minted, ctx.Timestamp); err != nil {
		return err
	}

	ctx.Emit(event.CategoryPool, "liquidityAdded", map[string]any{
		"poolId":   p.ID,
		"amountA":  a.AmountA,
		"amountB":  a.AmountB,
		"lpMinted": minted,
	})
	return nil
}

// RemoveLiquidity is POOL_REMOVE_LIQUIDITY.
type RemoveLiquidity struct {
	PoolID   string        `json:"poolId"`
	LpTokens amount.Amount `json:"lpTokens"`
}

func (r *RemoveLiquidity) TxType() tx.Type { return tx.TypePoolRemoveLiquidity }

func (r *RemoveLiquidity) Validate(ctx *tx.Context) error {
	if !r.LpTokens.IsPositive() {
		return ErrBadAmount
	}
	p, err := MustGet(ctx.Ctx, ctx.Store, r.PoolID)
	if err != nil {
		return err
	}
	if p.TotalLpTokens.IsZero() {
		return ErrEmptyReserves
	}
	return nil
}

func (r *RemoveLiquidity) Apply(ctx *tx.Context) error {
	p, err := MustGet(ctx.Ctx, ctx.Store, r.PoolID)
	if err != nil {
		return err
	}

	outA := r.LpTokens.MulDiv(p.ReserveA, p.TotalLpTokens)
	outB := r.LpTokens.MulDiv(p.ReserveB, p.TotalLpTokens)
	if outA.IsZero() && outB.IsZero() {
		return ErrDustWithdraw
	}

	// Burn the wallet shares; staked shares cannot be withdrawn from here.
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, p.LpIdentifier, r.LpTokens.Neg()); err != nil {
		return err
	}
	if err := BumpPosition(ctx.Ctx, ctx.Store, ctx.Sender, p.ID, r.LpTokens.Neg(), ctx.Timestamp); err != nil {
		return err
	}

	for _, leg := range []struct {
		token string
		out   amount.Amount
	}{{p.TokenA, outA}, {p.TokenB, outB}} {
		if leg.out.IsZero() {
			continue
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, p.ID, leg.token, leg.out.Neg()); err != nil {
			return err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, leg.token, leg.out); err != nil {
			return err
		}
	}

	p.ReserveA = p.ReserveA.Sub(outA)
	p.ReserveB = p.ReserveB.Sub(outB)
	p.TotalLpTokens = p.TotalLpTokens.Sub(r.LpTokens)
	if err := Put(ctx.Ctx, ctx.Store, p); err != nil {
		return err
	}

	ctx.Emit(event.CategoryPool, "liquidityRemoved", map[string]any{
		"poolId":   p.ID,
		"lpBurned": r.LpTokens,
		"amountA":  outA,
		"amountB":  outB,
	})
	return nil
}
