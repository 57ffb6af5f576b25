package token

import (
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Create is TOKEN_CREATE. Supply figures are raw integer units at the
// token's own precision.
type Create struct {
	Symbol        string        `json:"symbol"`
	Name          string        `json:"name"`
	Precision     *uint8        `json:"precision,omitempty"` // default 8
	MaxSupply     amount.Amount `json:"maxSupply,omitempty"`
	InitialSupply amount.Amount `json:"initialSupply,omitempty"`
	Mintable      *bool         `json:"mintable,omitempty"` // default true
	Burnable      *bool         `json:"burnable,omitempty"` // default true
	Description   string        `json:"description,omitempty"`
	LogoURL       string        `json:"logoUrl,omitempty"`
	WebsiteURL    string        `json:"websiteUrl,omitempty"`
}

func init() {
	tx.Register(tx.TypeTokenCreate, func() tx.Operation { return &Create{} })
}

func (c *Create) TxType() tx.Type { return tx.TypeTokenCreate }

func (c *Create) precision() uint8 {
	if c.Precision == nil {
		return 8
	}
	return *c.Precision
}

func (c *Create) Validate(ctx *tx.Context) error {
	if !symbolRe.MatchString(c.Symbol) {
		return ErrBadSymbol
	}
	if len(c.Name) == 0 || len(c.Name) > 50 {
		return errBadName
	}
	if c.precision() > 18 {
		return errBadPrecision
	}
	if c.MaxSupply.IsNegative() || c.InitialSupply.IsNegative() {
		return ErrBadAmount
	}
	if !c.MaxSupply.IsZero() && c.InitialSupply.Cmp(c.MaxSupply) > 0 {
		return errInitialOverMax
	}
	identifier := Identifier(c.Symbol, ctx.Sender, ctx.Params.MasterAccount)
	if _, found, err := Get(ctx.Ctx, ctx.Store, identifier); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: %s", ErrExists, identifier)
	}
	return nil
}

func (c *Create) Apply(ctx *tx.Context) error {
	identifier := Identifier(c.Symbol, ctx.Sender, ctx.Params.MasterAccount)
	t := &Token{
		Identifier:  identifier,
		Symbol:      c.Symbol,
		Name:        c.Name,
		Issuer:      ctx.Sender,
		Precision:   c.precision(),
		MaxSupply:   c.MaxSupply,
		TotalSupply: c.InitialSupply,
		Mintable:    c.Mintable == nil || *c.Mintable,
		Burnable:    c.Burnable == nil || *c.Burnable,
		Description: c.Description,
		LogoURL:     c.LogoURL,
		WebsiteURL:  c.WebsiteURL,
		CreatedAt:   ctx.Timestamp,
	}
	if err := Put(ctx.Ctx, ctx.Store, t); err != nil {
		return err
	}
	if c.InitialSupply.IsPositive() {
		if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, identifier, c.InitialSupply); err != nil {
			return err
		}
	}
	ctx.Emit(event.CategoryToken, "created", map[string]any{
		"symbol":        c.Symbol,
		"identifier":    identifier,
		"precision":     t.Precision,
		"maxSupply":     t.MaxSupply,
		"initialSupply": c.InitialSupply,
	})
	return nil
}
