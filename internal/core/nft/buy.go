package nft

import (
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
)

var (
	errBidRequired = errors.New("auction purchases require a bidAmount")
	errBadBid      = errors.New("bidAmount must be positive")
)

func init() {
	tx.Register(tx.TypeNFTBuyItem, func() tx.Operation { return &BuyItem{} })
}

// BuyItem is NFT_BUY_ITEM. On a fixed-price listing a payment at or above
// the asking price settles immediately at the asking price. Anything else,
// a lower fixed-price offer or any auction purchase, places an escrowed
// bid.
type BuyItem struct {
	ListingID string        `json:"listingId"`
	BidAmount amount.Amount `json:"bidAmount,omitempty"`
}

func (b *BuyItem) TxType() tx.Type { return tx.TypeNFTBuyItem }

func (b *BuyItem) Validate(ctx *tx.Context) error {
	if b.BidAmount.IsNegative() {
		return errBadBid
	}
	l, err := MustGetListing(ctx.Ctx, ctx.Store, b.ListingID)
	if err != nil {
		return err
	}
	if l.Status != ListingActive {
		return fmt.Errorf("%w: %s is %s", ErrListingClosed, l.ID, l.Status)
	}
	if l.Seller == ctx.Sender {
		return ErrOwnListing
	}
	if l.Auction() {
		if ctx.Timestamp >= l.AuctionEndTime {
			return ErrAuctionEnded
		}
		if !b.BidAmount.IsPositive() {
			return errBidRequired
		}
	}
	return nil
}

func (b *BuyItem) Apply(ctx *tx.Context) error {
	l, err := MustGetListing(ctx.Ctx, ctx.Store, b.ListingID)
	if err != nil {
		return err
	}
	payment := b.BidAmount
	if payment.IsZero() {
		payment = l.Price
	}
	if !l.Auction() && payment.Cmp(l.Price) >= 0 {
		return b.settleNow(ctx, l)
	}
	return b.placeBid(ctx, l, payment)
}

// settleNow executes the immediate fixed-price purchase. The buyer pays
// exactly the asking price, whatever they offered above it.
func (b *BuyItem) settleNow(ctx *tx.Context, l *Listing) error {
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, l.CollectionSymbol)
	if err != nil {
		return err
	}
	sellerShare, creatorShare, err := settleSpendableSale(ctx, ctx.Sender, l.PaymentToken,
		l.Price, l.Seller, coll.Creator, coll.RoyaltyBps)
	if err != nil {
		return err
	}
	if _, err := releaseLiveBids(ctx, l, BidLost, ""); err != nil {
		return err
	}
	if err := deliverInstance(ctx, l, ctx.Sender); err != nil {
		return err
	}
	l.Status = ListingSold
	l.HighestBidID = ""
	l.ClosedAt = ctx.Timestamp
	if err := PutListing(ctx.Ctx, ctx.Store, l); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "itemSold", map[string]any{
		"listingId":      l.ID,
		"tokenId":        l.TokenID,
		"buyer":          ctx.Sender,
		"seller":         l.Seller,
		"price":          l.Price.String(),
		"sellerProceeds": sellerShare.String(),
		"royalty":        creatorShare.String(),
	})
	return nil
}

// placeBid escrows the payment as a bid. A prior live bid by the same
// bidder is refunded and replaced; a bid strictly above the current
// highest takes the WINNING flag and demotes the predecessor to OUTBID.
func (b *BuyItem) placeBid(ctx *tx.Context, l *Listing, payment amount.Amount) error {
	if !payment.IsPositive() {
		return errBadBid
	}
	bids, err := ListingBids(ctx.Ctx, ctx.Store, l.ID)
	if err != nil {
		return err
	}

	replaced := ""
	for _, prior := range bids {
		if prior.Bidder != ctx.Sender || !prior.Live() {
			continue
		}
		if prior.EscrowedAmount.IsPositive() {
			if err := ctx.Journal.Release(ctx.Ctx, prior.Bidder, prior.PaymentToken, prior.EscrowedAmount); err != nil {
				return err
			}
		}
		prior.Status = BidCancelled
		prior.IsHighestBid = false
		prior.EscrowedAmount = amount.Zero()
		if err := PutBid(ctx.Ctx, ctx.Store, prior); err != nil {
			return err
		}
		replaced = prior.ID
		if l.HighestBidID == prior.ID {
			l.HighestBidID = ""
		}
		break
	}

	if err := ctx.Journal.Hold(ctx.Ctx, ctx.Sender, l.PaymentToken, payment); err != nil {
		return err
	}

	bid := &Bid{
		ID:             crypto.NFTBidID(l.ID, ctx.Sender, ctx.TxID),
		ListingID:      l.ID,
		Bidder:         ctx.Sender,
		BidAmount:      payment,
		EscrowedAmount: payment,
		PaymentToken:   l.PaymentToken,
		Status:         BidActive,
		CreatedAt:      ctx.Timestamp,
	}

	top := highestLive(bids, replaced)
	if top == nil || payment.Cmp(top.BidAmount) > 0 {
		if top != nil {
			top.Status = BidOutbid
			top.IsHighestBid = false
			if err := PutBid(ctx.Ctx, ctx.Store, top); err != nil {
				return err
			}
			bid.PreviousHighBidID = top.ID
		}
		bid.Status = BidWinning
		bid.IsHighestBid = true
		l.HighestBidID = bid.ID
	} else if l.HighestBidID == "" {
		// The replaced bid held the flag; restore it to the standing top.
		l.HighestBidID = top.ID
		if !top.IsHighestBid {
			top.Status = BidWinning
			top.IsHighestBid = true
			if err := PutBid(ctx.Ctx, ctx.Store, top); err != nil {
				return err
			}
		}
	}

	if err := PutBid(ctx.Ctx, ctx.Store, bid); err != nil {
		return err
	}
	if err := PutListing(ctx.Ctx, ctx.Store, l); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "bidPlaced", map[string]any{
		"listingId": l.ID,
		"tokenId":   l.TokenID,
		"bidId":     bid.ID,
		"bidder":    bid.Bidder,
		"amount":    bid.BidAmount.String(),
		"winning":   bid.IsHighestBid,
	})
	return nil
}
