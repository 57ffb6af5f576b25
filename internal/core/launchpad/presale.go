package launchpad

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
)

var (
	errBadContribution = errors.New("contribution must be positive")
	errBelowMinimum    = errors.New("contribution below minContribution")
	errAboveMaximum    = errors.New("total contribution above maxContribution")
	errBadWhitelist    = errors.New("whitelist entries must be valid account names")
)

// Participate is LAUNCHPAD_PARTICIPATE_PRESALE. Contributions accumulate on
// the pad's system account until claim or refund.
type Participate struct {
	LaunchpadID string        `json:"launchpadId"`
	Amount      amount.Amount `json:"amount"`
}

// Finalize is LAUNCHPAD_FINALIZE_PRESALE. It snapshots the outcome against
// the caps and fixes every participant's token allocation.
type Finalize struct {
	LaunchpadID string `json:"launchpadId"`
}

// Refund is LAUNCHPAD_REFUND_PRESALE. Participants reclaim their own
// contribution after failure or cancellation; the owner or master sweeps
// everyone with all=true.
type Refund struct {
	LaunchpadID string `json:"launchpadId"`
	All         bool   `json:"all"`
}

// UpdateWhitelist is LAUNCHPAD_UPDATE_WHITELIST.
type UpdateWhitelist struct {
	LaunchpadID string   `json:"launchpadId"`
	Add         []string `json:"add"`
	Remove      []string `json:"remove"`
}

func init() {
	tx.Register(tx.TypeLaunchpadParticipate, func() tx.Operation { return &Participate{} })
	tx.Register(tx.TypeLaunchpadFinalizePresale, func() tx.Operation { return &Finalize{} })
	tx.Register(tx.TypeLaunchpadRefundPresale, func() tx.Operation { return &Refund{} })
	tx.Register(tx.TypeLaunchpadUpdateWhitelist, func() tx.Operation { return &UpdateWhitelist{} })
}

func (p *Participate) TxType() tx.Type     { return tx.TypeLaunchpadParticipate }
func (f *Finalize) TxType() tx.Type        { return tx.TypeLaunchpadFinalizePresale }
func (r *Refund) TxType() tx.Type          { return tx.TypeLaunchpadRefundPresale }
func (u *UpdateWhitelist) TxType() tx.Type { return tx.TypeLaunchpadUpdateWhitelist }

func (p *Participate) Validate(ctx *tx.Context) error {
	if !p.Amount.IsPositive() {
		return errBadContribution
	}
	lp, err := MustGet(ctx.Ctx, ctx.Store, p.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Status != StatusPresaleActive || lp.Presale == nil {
		return ErrBadStatus
	}
	sale := lp.Presale
	if !sale.whitelisted(ctx.Sender) {
		return ErrNotWhitelisted
	}
	if sale.MinContribution.IsPositive() && p.Amount.Cmp(sale.MinContribution) < 0 {
		return errBelowMinimum
	}
	total := p.Amount
	if prev := sale.participant(ctx.Sender); prev != nil {
		total = total.Add(prev.Contribution)
	}
	if sale.MaxContribution.IsPositive() && total.Cmp(sale.MaxContribution) > 0 {
		return errAboveMaximum
	}
	if sale.TotalQuoteRaised.Add(p.Amount).Cmp(sale.HardCap) > 0 {
		return ErrHardCapExceeded
	}
	return nil
}

func (p *Participate) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, p.LaunchpadID)
	if err != nil {
		return err
	}
	sale := lp.Presale
	if _, err := ctx.Ledger.Ensure(ctx.Ctx, lp.ID, ctx.Timestamp); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Sender, sale.QuoteAsset, p.Amount.Neg()); err != nil {
		return err
	}
	if err := ctx.Journal.Adjust(ctx.Ctx, lp.ID, sale.QuoteAsset, p.Amount); err != nil {
		return err
	}
	entry := sale.participant(ctx.Sender)
	if entry == nil {
		sale.Participants = append(sale.Participants, Participant{
			Account:  ctx.Sender,
			JoinedAt: ctx.Timestamp,
		})
		entry = &sale.Participants[len(sale.Participants)-1]
	}
	entry.Contribution = entry.Contribution.Add(p.Amount)
	sale.TotalQuoteRaised = sale.TotalQuoteRaised.Add(p.Amount)
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "participated", map[string]any{
		"launchpadId":      lp.ID,
		"account":          ctx.Sender,
		"amount":           p.Amount,
		"totalQuoteRaised": sale.TotalQuoteRaised,
	})
	return nil
}

func (f *Finalize) Validate(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, f.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Owner != ctx.Sender && !ctx.IsMaster() {
		return ErrNotOwner
	}
	if lp.Presale == nil {
		return ErrNotConfigured
	}
	if lp.Status != StatusPresaleActive && lp.Status != StatusPresaleEnded {
		return ErrBadStatus
	}
	// Early finalization only once the hard cap is fully taken.
	if ctx.Timestamp < lp.Presale.EndTime &&
		lp.Presale.TotalQuoteRaised.Cmp(lp.Presale.HardCap) < 0 {
		return ErrPresaleRunning
	}
	return nil
}

func (f *Finalize) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, f.LaunchpadID)
	if err != nil {
		return err
	}
	sale := lp.Presale
	raised := sale.TotalQuoteRaised
	switch {
	case raised.Cmp(sale.HardCap) >= 0:
		lp.Status = StatusSucceededHardcap
	case sale.SoftCap.IsPositive() && raised.Cmp(sale.SoftCap) >= 0:
		lp.Status = StatusSucceededSoftcap
	case !sale.SoftCap.IsPositive() && raised.IsPositive():
		// No floor configured: any raise clears it.
		lp.Status = StatusSucceededSoftcap
	default:
		lp.Status = StatusFailed
	}
	if lp.Succeeded() {
		scale := amount.PowTen(int(lp.Decimals))
		for i := range sale.Participants {
			entry := &sale.Participants[i]
			entry.TokensAllocated = entry.Contribution.MulDiv(scale, sale.PricePerToken)
		}
	}
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "presaleFinalized", map[string]any{
		"launchpadId":      lp.ID,
		"status":           lp.Status,
		"totalQuoteRaised": raised,
		"participants":     len(sale.Participants),
	})
	return nil
}

func (r *Refund) Validate(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, r.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Status != StatusFailed && lp.Status != StatusCancelled {
		return ErrBadStatus
	}
	if lp.Presale == nil {
		return ErrNothingToRefund
	}
	if r.All {
		if lp.Owner != ctx.Sender && !ctx.IsMaster() {
			return ErrNotOwner
		}
		return nil
	}
	entry := lp.Presale.participant(ctx.Sender)
	if entry == nil || entry.Refunded || !entry.Contribution.IsPositive() {
		return ErrNothingToRefund
	}
	return nil
}

func (r *Refund) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, r.LaunchpadID)
	if err != nil {
		return err
	}
	sale := lp.Presale
	refunded := 0
	total := amount.Zero()
	for i := range sale.Participants {
		entry := &sale.Participants[i]
		if !r.All && entry.Account != ctx.Sender {
			continue
		}
		if entry.Refunded || !entry.Contribution.IsPositive() {
			continue
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, lp.ID, sale.QuoteAsset, entry.Contribution.Neg()); err != nil {
			return err
		}
		if err := ctx.Journal.Adjust(ctx.Ctx, entry.Account, sale.QuoteAsset, entry.Contribution); err != nil {
			return err
		}
		total = total.Add(entry.Contribution)
		entry.Refunded = true
		refunded++
	}
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "presaleRefunded", map[string]any{
		"launchpadId": lp.ID,
		"accounts":    refunded,
		"total":       total,
	})
	return nil
}

func (u *UpdateWhitelist) Validate(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, u.LaunchpadID)
	if err != nil {
		return err
	}
	if lp.Owner != ctx.Sender {
		return ErrNotOwner
	}
	if lp.Presale == nil {
		return ErrNotConfigured
	}
	switch lp.Status {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return ErrBadStatus
	}
	for _, name := range append(append([]string(nil), u.Add...), u.Remove...) {
		if !account.ValidName(name) {
			return errBadWhitelist
		}
	}
	return nil
}

func (u *UpdateWhitelist) Apply(ctx *tx.Context) error {
	lp, err := MustGet(ctx.Ctx, ctx.Store, u.LaunchpadID)
	if err != nil {
		return err
	}
	sale := lp.Presale
	keep := sale.Whitelist[:0]
	for _, name := range sale.Whitelist {
		if !contains(u.Remove, name) {
			keep = append(keep, name)
		}
	}
	sale.Whitelist = keep
	for _, name := range u.Add {
		if !contains(sale.Whitelist, name) {
			sale.Whitelist = append(sale.Whitelist, name)
		}
	}
	lp.UpdatedAt = ctx.Timestamp
	if err := Put(ctx.Ctx, ctx.Store, lp); err != nil {
		return err
	}
	ctx.Emit(event.CategoryLaunchpad, "whitelistUpdated", map[string]any{
		"launchpadId": lp.ID,
		"added":       len(u.Add),
		"removed":     len(u.Remove),
		"size":        len(sale.Whitelist),
	})
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
