package token

import (
	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Mint is TOKEN_MINT. Symbol takes the full identifier for non-master
// issuance (SYMBOL@issuer).
type Mint struct {
	Symbol string        `json:"symbol"`
	To     string        `json:"to"`
	Amount amount.Amount `json:"amount"`
}

func init() {
	tx.Register(tx.TypeTokenMint, func() tx.Operation { return &Mint{} })
}

func (m *Mint) TxType() tx.Type { return tx.TypeTokenMint }

func (m *Mint) Validate(ctx *tx.Context) error {
	if !m.Amount.IsPositive() {
		return ErrBadAmount
	}
	if !account.ValidName(m.To) {
		return ErrBadRecipient
	}
	t, err := MustGet(ctx.Ctx, ctx.Store, m.Symbol)
	if err != nil {
		return err
	}
	if t.Issuer != ctx.Sender {
		return ErrNotIssuer
	}
	if !t.Mintable {
		return ErrNotMintable
	}
	if !t.MaxSupply.IsZero() && t.TotalSupply.Add(m.Amount).Cmp(t.MaxSupply) > 0 {
		return ErrSupplyCap
	}
	return nil
}

func (m *Mint) Apply(ctx *tx.Context) error {
	t, err := MustGet(ctx.Ctx, ctx.Store, m.Symbol)
	if err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, m.To, t.Identifier, m.Amount); err != nil {
		return err
	}
	t.TotalSupply = t.TotalSupply.Add(m.Amount)
	if err := Put(ctx.Ctx, ctx.Store, t); err != nil {
		return err
	}
	ctx.Emit(event.CategoryToken, "minted", map[string]any{
		"identifier": t.Identifier,
		"to":         m.To,
		"amount":     m.Amount,
	})
	return nil
}
