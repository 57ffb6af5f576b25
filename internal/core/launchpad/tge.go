package launchpad

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
)

var (
	errTokenSet     = errors.New("main token already set")
	errTokenUnset   = errors.New("main token not set")
	errBadNewStatus = errors.New("unknown launchpad status")
)

// SetMainToken is LAUNCHPAD_SET_MAIN_TOKEN: the token generation event. The
// full supply is minted in one shot, with the presale allocation parked on
// the pad account so claims are always funded.
type SetMainToken struct {
	LaunchpadID string `json:"launchpadId"`
}

// ClaimTokens is LAUNCHPAD_CLAIM_TOKENS.
type ClaimTokens struct {
	LaunchpadID    string `json:"launchpadId"`
	AllocationType string `json:"allocationType"`
}

// UpdateStatus is LAUNCHPAD_UPDATE_STATUS, the administrative lever moving
// a pad along its lifecycle.
type UpdateStatus struct {
	LaunchpadID string `json:"launchpadId"`
	Status      string `json:"status"`
}

func init() {
	tx.Register(tx.TypeLaunchpadSetMainToken, func() tx.Operation { return &SetMainToken{} })
	tx.Register(tx.TypeLaunchpadClaimTokens, func() tx.Operation { return &ClaimTokens{} })
	tx.Register(tx.TypeLaunchpadUpdateStatus, func() tx.Operation { return &UpdateStatus{} })
}

func (s *SetMainToken) TxType() tx.Type { return tx.TypeLaunchpadSetMainToken }
func (c *ClaimTokens) TxType() tx.Type  { return tx.TypeLaunchpadClaimTokens }
func (u *UpdateStatus) TxType() tx.Type { return tx.TypeLaunchpadUpdateStatus }

func (s *SetMainToken) Validate(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, s.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Owner != ctx.Sender {
		return ErrNotOwner
	}
	if lp.Status != StatusSucceededSoftcap && lp.Status != StatusSucceededHardcap {
		return ErrBadStatus
	}
	if lp.MainTokenID != "" {
		return errTokenSet
	}
	if taken, err := token.SymbolExists(ctx.Ctx, ctx.Store, lp.TokenSymbol); err != nil {
		return err
	} else if taken {
		return ErrSymbolTaken
	}
	return nil
}

func (s *SetMainToken) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, s.LaunchpadID)
	if err != nil {
		return err
	}
	identifier := token.Identifier(lp.TokenSymbol, lp.Owner, ctx.Params.MasterAccount)
	if err := token.Put(ctx.Ctx, ctx.Store, &token.Token{
		Identifier:  identifier,
		Symbol:      lp.TokenSymbol,
		Name:        lp.TokenName,
		Issuer:      lp.Owner,
		Precision:   lp.Decimals,
		TotalSupply: lp.TotalSupply,
		Description: lp.Description,
		WebsiteURL:  lp.Website,
		CreatedAt:   ctx.Timestamp,
	}); err != nil {
		return err
	}

	// Exactly the claimable sum stays on the pad; the rest belongs to the
	// owner from day one.
	reserve := amount.Zero()
	if lp.Presale != nil {
		for _, entry := range lp.Presale.Participants {
			reserve = reserve.Add(entry.TokensAllocated)
		}
	}
	if _, err := ctx.Ledger.Ensure(ctx.Ctx, lp.ID, ctx.Timestamp); err != nil {
		return err
	}
	if reserve.IsPositive() {
		if err := ctx.Journal.Adjust(ctx.Ctx, lp.ID, identifier, reserve); err != nil {
			return err
		}
	}
	ownerShare := lp.TotalSupply.Sub(reserve)
	if ownerShare.IsPositive() {
		if err := ctx.Journal.Adjust(ctx.Ctx, lp.Owner, identifier, ownerShare); err != nil {
			return err
		}
	}

	lp.MainTokenID = identifier
	lp.Status = StatusTGE
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "mainTokenSet", map[string]any{
		"launchpadId":    lp.ID,
		"identifier":     identifier,
		"presaleReserve": reserve,
		"ownerAmount":    ownerShare,
	})
	return nil
}

func (c *ClaimTokens) Validate(ctx *tx.Context) error {
	if c.AllocationType != "" && c.AllocationType != AllocationPresale {
		return ErrAllocationType
	}
	lp, err := MustGet(ctx.Ctx, ctx.Store, c.LaunchpadID)
	if err != nil {
		return err
	}
	if !lp.Succeeded() {
		return ErrBadStatus
	}
	if lp.MainTokenID == "" {
		return errTokenUnset
	}
	entry := lp.Presale.participant(ctx.Sender)
	if entry == nil || !entry.TokensAllocated.IsPositive() {
		return ErrNotParticipant
	}
	if entry.Claimed {
		return ErrAlreadyClaimed
	}
	return nil
}

func (c *ClaimTokens) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, c.LaunchpadID)
	if err != nil {
		return err
	}
	entry := lp.Presale.participant(ctx.Sender)
	if entry == nil {
		return ErrNotParticipant
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, lp.ID, lp.MainTokenID, entry.TokensAllocated.Neg()); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, lp.MainTokenID, entry.TokensAllocated); err != nil {
		return err
	}
	entry.Claimed = true
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "tokensClaimed", map[string]any{
		"launchpadId": lp.ID,
		"account":     ctx.Sender,
		"amount":      entry.TokensAllocated,
	})
	return nil
}

func (u *UpdateStatus) Validate(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, u.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Owner != ctx.Sender && !ctx.IsMaster() {
		return ErrNotOwner
	}
	if !knownStatus(u.Status) {
		return errBadNewStatus
	}
	if !lp.canTransition(u.Status) {
		return ErrBadTransition
	}
	switch u.Status {
	case StatusPresaleScheduled, StatusPresaleActive:
		if lp.Presale == nil {
			return ErrNotConfigured
		}
	case StatusTradingLive:
		if lp.MainTokenID == "" {
			return errTokenUnset
		}
	}
	return nil
}

func (u *UpdateStatus) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, u.LaunchpadID)
	if err != nil {
		return err
	}
	from := lp.Status
	if u.Status == StatusPaused {
		lp.PausedFrom = from
	} else if from == StatusPaused {
		lp.PausedFrom = ""
	}

	// First arrival at TRADING_LIVE opens the market.
	if u.Status == StatusTradingLive && from == StatusTGE {
		quote := ctx.Ledger.NativeSymbol()
		if lp.Presale != nil {
			quote = lp.Presale.QuoteAsset
		}
		if _, err := market.CreatePair(ctx.Ctx, ctx.Store, lp.MainTokenID, quote,
			market.PairConfig{}, ctx.Timestamp); err != nil {
			return err
		}
	}

	lp.Status = u.Status
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "statusUpdated", map[string]any{
		"launchpadId": lp.ID,
		"from":        from,
		"to":          u.Status,
	})
	return nil
}

func knownStatus(s string) bool {
	switch s {
	case StatusUpcoming, StatusPendingValidation, StatusPresaleScheduled,
		StatusPresaleActive, StatusPresaleEnded, StatusSucceededSoftcap,
		StatusSucceededHardcap, StatusFailed, StatusTGE, StatusTradingLive,
		StatusCompleted, StatusCancelled, StatusPaused:
		return true
	}
	return false
}
