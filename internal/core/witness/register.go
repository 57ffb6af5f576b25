package witness

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
)

var errURLTooLong = errors.New("witness url exceeds 256 characters")

// Register is WITNESS_REGISTER. Re-registering updates the key, url and
// enabled flag in place; accumulated vote weight and existing votes are
// untouched.
type Register struct {
	PublicKey string `json:"publicKey"`
	URL       string `json:"url"`
	Enabled   *bool  `json:"enabled"`
}

func init() {
	tx.Register(tx.TypeWitnessRegister, func() tx.Operation { return &Register{} })
}

func (r *Register) TxType() tx.Type { return tx.TypeWitnessRegister }

func (r *Register) Validate(ctx *tx.Context) error {
	if !crypto.ValidPublicKey(r.PublicKey) {
		return ErrBadPublicKey
	}
	if len(r.URL) > 256 {
		return errURLTooLong
	}
	return nil
}

func (r *Register) Apply(ctx *tx.Context) error {
	acct, err := ctx.Ledger.Ensure(ctx.Ctx, ctx.Sender, ctx.Timestamp)
	if err != nil {
		return err
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	acct.WitnessPublicKey = r.PublicKey
	acct.WitnessURL = r.URL
	acct.WitnessEnabled = enabled
	if err := ctx.Ledger.Save(ctx.Ctx, acct); err != nil {
		return err
	}
	ctx.Emit(event.CategoryWitness, "registered", map[string]any{
		"witness":   ctx.Sender,
		"publicKey": r.PublicKey,
		"url":       r.URL,
		"enabled":   enabled,
	})
	return nil
}
