package token

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

var errNothingToUpdate = errors.New("no fields to update")

// Update is TOKEN_UPDATE; metadata only, issuer only.
type Update struct {
	Symbol      string  `json:"symbol"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	LogoURL     *string `json:"logoUrl,omitempty"`
	WebsiteURL  *string `json:"websiteUrl,omitempty"`
}

func init() {
	tx.Register(tx.TypeTokenUpdate, func() tx.Operation { return &Update{} })
}

func (u *Update) TxType() tx.Type { return tx.TypeTokenUpdate }

func (u *Update) Validate(ctx *tx.Context) error {
	if u.Name == nil && u.Description == nil && u.LogoURL == nil && u.WebsiteURL == nil {
		return errNothingToUpdate
	}
	if u.Name != nil && (len(*u.Name) == 0 || len(*u.Name) > 50) {
		return errBadName
	}
	t, err := MustGet(ctx.Ctx, ctx.Store, u.Symbol)
	if err != nil {
		return err
	}
	if t.Issuer != ctx.Sender {
		return ErrNotIssuer
	}
	return nil
}

func (u *Update) Apply(ctx *tx.Context) error {
	t, err := MustGet(ctx.Ctx, ctx.Store, u.Symbol)
	if err != nil {
		return err
	}
	changed := map[string]any{"identifier": t.Identifier}
	if u.Name != nil {
		t.Name = *u.Name
		changed["name"] = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
		changed["description"] = *u.Description
	}
	if u.LogoURL != nil {
		t.LogoURL = *u.LogoURL
		changed["logoUrl"] = *u.LogoURL
	}
	if u.WebsiteURL != nil {
		t.WebsiteURL = *u.WebsiteURL
		changed["websiteUrl"] = *u.WebsiteURL
	}
	if err := Put(ctx.Ctx, ctx.Store, t); err != nil {
		return err
	}
	ctx.Emit(event.CategoryToken, "updated", changed)
	return nil
}
