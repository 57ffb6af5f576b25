package token

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

var errSelfTransfer = errors.New("cannot transfer to self")

// Transfer is TOKEN_TRANSFER.
type Transfer struct {
	Symbol string        `json:"symbol"`
	To     string        `json:"to"`
	Amount amount.Amount `json:"amount"`
	Memo   string        `json:"memo,omitempty"`
}

func init() {
	tx.Register(tx.TypeTokenTransfer, func() tx.Operation { return &Transfer{} })
}

func (t *Transfer) TxType() tx.Type { return tx.TypeTokenTransfer }

func (t *Transfer) Validate(ctx *tx.Context) error {
	if !t.Amount.IsPositive() {
		return ErrBadAmount
	}
	if !account.ValidName(t.To) {
		return ErrBadRecipient
	}
	if t.To == ctx.Sender {
		return errSelfTransfer
	}
	if len(t.Memo) > 256 {
		return ErrMemoTooLong
	}
	if _, err := MustGet(ctx.Ctx, ctx.Store, t.Symbol); err != nil {
		return err
	}
	return nil
}

func (t *Transfer) Apply(ctx *tx.Context) error {
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, t.Symbol, t.Amount.Neg()); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, t.To, t.Symbol, t.Amount); err != nil {
		return err
	}
	data := map[string]any{
		"identifier": t.Symbol,
		"to":         t.To,
		"amount":     t.Amount,
	}
	if t.Memo != "" {
		data["memo"] = t.Memo
	}
	ctx.Emit(event.CategoryToken, "transferred", data)
	return nil
}
