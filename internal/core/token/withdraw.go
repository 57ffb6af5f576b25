package token

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

var errBadWithdrawTarget = errors.New("missing withdrawal target")

// Withdraw is TOKEN_WITHDRAW: the exit half of the bridge. The amount is
// burned here and released on the main chain by the bridge operators; To
// names the external account.
type Withdraw struct {
	Symbol string        `json:"symbol"`
	To     string        `json:"to"`
	Amount amount.Amount `json:"amount"`
	Memo   string        `json:"memo,omitempty"`
}

func init() {
	tx.Register(tx.TypeTokenWithdraw, func() tx.Operation { return &Withdraw{} })
}

func (w *Withdraw) TxType() tx.Type { return tx.TypeTokenWithdraw }

func (w *Withdraw) Validate(ctx *tx.Context) error {
	if !w.Amount.IsPositive() {
		return ErrBadAmount
	}
	if w.To == "" {
		return errBadWithdrawTarget
	}
	if len(w.Memo) > 256 {
		return ErrMemoTooLong
	}
	t, err := MustGet(ctx.Ctx, ctx.Store, w.Symbol)
	if err != nil {
		return err
	}
	if !t.Burnable {
		return ErrNotBurnable
	}
	return nil
}

func (w *Withdraw) Apply(ctx *tx.Context) error {
	t, err := MustGet(ctx.Ctx, ctx.Store, w.Symbol)
	if err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, t.Identifier, w.Amount.Neg()); err != nil {
		return err
	}
	t.TotalSupply = t.TotalSupply.Sub(w.Amount)
	if err := Put(ctx.Ctx, ctx.Store, t); err != nil {
		return err
	}
	data := map[string]any{
		"identifier": t.Identifier,
		"to":         w.To,
		"amount":     w.Amount,
	}
	if w.Memo != "" {
		data["memo"] = w.Memo
	}
	ctx.Emit(event.CategoryToken, "withdraw", data)
	return nil
}
