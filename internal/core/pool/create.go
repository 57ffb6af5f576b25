package pool

import (
	"fmt"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Create is POOL_CREATE.
type Create struct {
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
}

func init() {
	tx.Register(tx.TypePoolCreate, func() tx.Operation { return &Create{} })
}

func (c *Create) TxType() tx.Type { return tx.TypePoolCreate }

func (c *Create) Validate(ctx *tx.Context) error {
	if c.TokenA == c.TokenB {
		return ErrSameToken
	}
	for _, id := range []string{c.TokenA, c.TokenB} {
		if _, err := token.MustGet(ctx.Ctx, ctx.Store, id); err != nil {
			return err
		}
	}
	poolID := ID(c.TokenA, c.TokenB)
	if _, found, err := Get(ctx.Ctx, ctx.Store, poolID); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: %s", ErrExists, poolID)
	}
	return nil
}

func (c *Create) Apply(ctx *tx.Context) error {
	a, b := Sort(c.TokenA, c.TokenB)
	poolID := a + "_" + b
	lpID := LpIdentifier(poolID)

	p := &Pool{
		ID:           poolID,
		TokenA:       a,
		TokenB:       b,
		FeeBps:       FeeBps,
		LpIdentifier: lpID,
		CreatedBy:    ctx.Sender,
		CreatedAt:    ctx.Timestamp,
	}
	if err := Put(ctx.Ctx, ctx.Store, p); err != nil {
		return err
	}

	// The pool holds its reserves on its own system account.
	if _, err := ctx.Ledger.Ensure(ctx.Ctx, poolID, ctx.Timestamp); err != nil {
		return err
	}

	// Register the share token so precision lookups and renders work like
	// any other token.
	if err := token.Put(ctx.Ctx, ctx.Store, &token.Token{
		Identifier: lpID,
		Symbol:     lpID,
		Name:       "Liquidity " + poolID,
		Issuer:     poolID,
		Precision:  LpDecimals,
		CreatedAt:  ctx.Timestamp,
	}); err != nil {
		return err
	}

	ctx.Emit(event.CategoryPool, "created", map[string]any{
		"poolId": poolID,
		"tokenA": a,
		"tokenB": b,
		"feeBps": FeeBps,
	})
	return nil
}
