package nft

import (
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// splitSale splits a sale price into the seller's share, the creator
// royalty and the integer-truncation remainder. The remainder accrues to
// the master account, so the three parts always sum to the price exactly.
// A seller selling their own creation keeps the whole price.
func splitSale(price amount.Amount, royaltyBps int64, seller, creator string) (sellerShare, creatorShare, dust amount.Amount) {
	if creator == seller || royaltyBps <= 0 {
		return price, amount.Zero(), amount.Zero()
	}
	sellerShare = price.PercentBps(10000 - royaltyBps)
	creatorShare = price.PercentBps(royaltyBps)
	dust = price.Sub(sellerShare).Sub(creatorShare)
	return sellerShare, creatorShare, dust
}

// settleSpendableSale debits the buyer's spendable balance by price and
// pays the split. Every move goes through the journal, so a failure
// anywhere leaves the buyer whole.
func settleSpendableSale(ctx *tx.Context, buyer, paymentToken string, price amount.Amount,
	seller, creator string, royaltyBps int64) (sellerShare, creatorShare amount.Amount, err error) {

	sellerShare, creatorShare, dust := splitSale(price, royaltyBps, seller, creator)
	if err := ctx.Journal.Adjust(ctx.Ctx, buyer, paymentToken, price.Neg()); err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if sellerShare.IsPositive() {
		if err := ctx.Journal.Adjust(ctx.Ctx, seller, paymentToken, sellerShare); err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}
	if creatorShare.IsPositive() {
		if err := ctx.Journal.Adjust(ctx.Ctx, creator, paymentToken, creatorShare); err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}
	if dust.IsPositive() {
		if err := ctx.Journal.Adjust(ctx.Ctx, ctx.Params.MasterAccount, paymentToken, dust); err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}
	return sellerShare, creatorShare, nil
}

// settleHeldSale pays the split out of the buyer's hold bucket, used when
// the price was escrowed up front by a bid or an offer.
func settleHeldSale(ctx *tx.Context, buyer, paymentToken string, price amount.Amount,
	seller, creator string, royaltyBps int64) (sellerShare, creatorShare amount.Amount, err error) {

	sellerShare, creatorShare, dust := splitSale(price, royaltyBps, seller, creator)
	if sellerShare.IsPositive() {
		if err := ctx.Journal.TransferHold(ctx.Ctx, buyer, paymentToken, sellerShare, seller); err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}
	if creatorShare.IsPositive() {
		if err := ctx.Journal.TransferHold(ctx.Ctx, buyer, paymentToken, creatorShare, creator); err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}
	if dust.IsPositive() {
		if err := ctx.Journal.TransferHold(ctx.Ctx, buyer, paymentToken, dust, ctx.Params.MasterAccount); err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}
	return sellerShare, creatorShare, nil
}

// deliverInstance hands the sold instance to the buyer. The owner match
// guards against a stale listing whose seller no longer holds the token.
func deliverInstance(ctx *tx.Context, l *Listing, to string) error {
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, l.TokenID)
	if err != nil {
		return err
	}
	if n.Owner != l.Seller {
		return fmt.Errorf("%w: %s no longer owned by %s", ErrNotOwner, n.ID, l.Seller)
	}
	n.Owner = to
	n.ActiveListingID = ""
	return PutNFT(ctx.Ctx, ctx.Store, n)
}
