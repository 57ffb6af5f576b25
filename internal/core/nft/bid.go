package nft

import (
	"context"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/state"
)

// Bid statuses. ACTIVE, WINNING and OUTBID bids hold escrow; the terminal
// statuses have released or settled it.
const (
	BidActive    = "ACTIVE"
	BidWinning   = "WINNING"
	BidOutbid    = "OUTBID"
	BidCancelled = "CANCELLED"
	BidWon       = "WON"
	BidLost      = "LOST"
)

var (
	ErrBidNotFound   = errors.New("bid not found")
	ErrNotBidder     = errors.New("only the bidder may do this")
	ErrBidClosed     = errors.New("bid is no longer live")
	ErrNoBids        = errors.New("listing has no bids")
	ErrReserveNotMet = errors.New("reserve price not met")
	errNotWinningBid = errors.New("only the winning bid can be accepted")
)

// Bid is one escrowed bid on a listing. EscrowedAmount mirrors BidAmount
// and tracks the slice of the bidder's hold bucket belonging to this bid.
type Bid struct {
	ID                string        `json:"id"`
	ListingID         string        `json:"listingId"`
	Bidder            string        `json:"bidder"`
	BidAmount         amount.Amount `json:"bidAmount"`
	EscrowedAmount    amount.Amount `json:"escrowedAmount"`
	PaymentToken      string        `json:"paymentToken"`
	Status            string        `json:"status"`
	IsHighestBid      bool          `json:"isHighestBid"`
	PreviousHighBidID string        `json:"previousHighBidId,omitempty"`
	CreatedAt         int64         `json:"createdAt"`
}

// Live reports whether the bid still holds escrow.
func (b *Bid) Live() bool {
	return b.Status == BidActive || b.Status == BidWinning || b.Status == BidOutbid
}

// GetBid loads a bid by id.
func GetBid(ctx context.Context, store *state.Store, id string) (*Bid, bool, error) {
	var b Bid
	found, err := store.Get(ctx, state.CollNFTBids, id, &b)
	if err != nil || !found {
		return nil, found, err
	}
	return &b, true, nil
}

// MustGetBid loads a bid callers know exists.
func MustGetBid(ctx context.Context, store *state.Store, id string) (*Bid, error) {
	b, found, err := GetBid(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrBidNotFound, id)
	}
	return b, nil
}

// PutBid writes a bid document.
func PutBid(ctx context.Context, store *state.Store, b *Bid) error {
	return store.Put(ctx, state.CollNFTBids, b.ID, b)
}

// ListingBids loads every bid on a listing, in id order.
func ListingBids(ctx context.Context, store *state.Store, listingID string) ([]*Bid, error) {
	var bids []*Bid
	err := store.Scan(ctx, state.CollNFTBids, func(id string, raw []byte) (bool, error) {
		var b Bid
		if err := state.Decode(raw, &b); err != nil {
			return false, err
		}
		if b.ListingID == listingID {
			bids = append(bids, &b)
		}
		return true, nil
	})
	return bids, err
}

// releaseLiveBids refunds the escrow of every live bid on the listing and
// moves them to the given terminal status, skipping exceptID (the winner of
// an accepted sale keeps its escrow for settlement).
func releaseLiveBids(ctx *tx.Context, l *Listing, status, exceptID string) (int, error) {
	bids, err := ListingBids(ctx.Ctx, ctx.Store, l.ID)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, b := range bids {
		if !b.Live() || b.ID == exceptID {
			continue
		}
		if b.EscrowedAmount.IsPositive() {
			if err := ctx.Journal.Release(ctx.Ctx, b.Bidder, b.PaymentToken, b.EscrowedAmount); err != nil {
				return released, err
			}
		}
		b.Status = status
		b.IsHighestBid = false
		b.EscrowedAmount = amount.Zero()
		if err := PutBid(ctx.Ctx, ctx.Store, b); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// highestLive returns the live bid with the largest amount, ignoring
// excludeID. Ties go to the earliest bid, then the smallest id, so every
// node promotes the same successor.
func highestLive(bids []*Bid, excludeID string) *Bid {
	var best *Bid
	for _, b := range bids {
		if !b.Live() || b.ID == excludeID {
			continue
		}
		if best == nil {
			best = b
			continue
		}
		switch c := b.BidAmount.Cmp(best.BidAmount); {
		case c > 0:
			best = b
		case c == 0 && (b.CreatedAt < best.CreatedAt ||
			(b.CreatedAt == best.CreatedAt && b.ID < best.ID)):
			best = b
		}
	}
	return best
}

func init() {
	tx.Register(tx.TypeNFTAcceptBid, func() tx.Operation { return &AcceptBid{} })
	tx.Register(tx.TypeNFTCancelBid, func() tx.Operation { return &CancelBid{} })
}

// AcceptBid is NFT_ACCEPT_BID: the seller settles the winning bid. Auctions
// must have ended, reserve auctions must have their reserve met. Every
// other live bid is refunded and marked LOST.
type AcceptBid struct {
	ListingID string `json:"listingId"`
	BidID     string `json:"bidId,omitempty"` // must be the winning bid when given
}

func (a *AcceptBid) TxType() tx.Type { return tx.TypeNFTAcceptBid }

func (a *AcceptBid) Validate(ctx *tx.Context) error {
	l, err := MustGetListing(ctx.Ctx, ctx.Store, a.ListingID)
	if err != nil {
		return err
	}
	if l.Status != ListingActive {
		return fmt.Errorf("%w: %s is %s", ErrListingClosed, l.ID, l.Status)
	}
	if l.Seller != ctx.Sender {
		return ErrNotSeller
	}
	if l.HighestBidID == "" {
		return ErrNoBids
	}
	if a.BidID != "" && a.BidID != l.HighestBidID {
		return errNotWinningBid
	}
	if l.Auction() && ctx.Timestamp < l.AuctionEndTime {
		return ErrAuctionRunning
	}
	winner, err := MustGetBid(ctx.Ctx, ctx.Store, l.HighestBidID)
	if err != nil {
		return err
	}
	if !winner.Live() {
		return fmt.Errorf("%w: %s", ErrBidClosed, winner.ID)
	}
	if l.Type == ListingReserveAuction && winner.BidAmount.Cmp(l.ReservePrice) < 0 {
		return fmt.Errorf("%w: bid %s below reserve %s", ErrReserveNotMet,
			winner.BidAmount.String(), l.ReservePrice.String())
	}
	return nil
}

func (a *AcceptBid) Apply(ctx *tx.Context) error {
	l, err := MustGetListing(ctx.Ctx, ctx.Store, a.ListingID)
	if err != nil {
		return err
	}
	winner, err := MustGetBid(ctx.Ctx, ctx.Store, l.HighestBidID)
	if err != nil {
		return err
	}
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, l.CollectionSymbol)
	if err != nil {
		return err
	}

	sellerShare, creatorShare, err := settleHeldSale(ctx, winner.Bidder, l.PaymentToken,
		winner.EscrowedAmount, l.Seller, coll.Creator, coll.RoyaltyBps)
	if err != nil {
		return err
	}
	if _, err := releaseLiveBids(ctx, l, BidLost, winner.ID); err != nil {
		return err
	}
	if err := deliverInstance(ctx, l, winner.Bidder); err != nil {
		return err
	}

	winner.Status = BidWon
	winner.EscrowedAmount = amount.Zero()
	if err := PutBid(ctx.Ctx, ctx.Store, winner); err != nil {
		return err
	}
	l.Status = ListingSold
	l.ClosedAt = ctx.Timestamp
	if err := PutListing(ctx.Ctx, ctx.Store, l); err != nil {
		return err
	}

	ctx.Emit(event.CategoryNFT, "bidAccepted", map[string]any{
		"listingId":      l.ID,
		"tokenId":        l.TokenID,
		"bidId":          winner.ID,
		"buyer":          winner.Bidder,
		"seller":         l.Seller,
		"price":          winner.BidAmount.String(),
		"sellerProceeds": sellerShare.String(),
		"royalty":        creatorShare.String(),
	})
	return nil
}

// CancelBid is NFT_CANCEL_BID. Cancelling the winning bid promotes the
// next-highest live bid.
type CancelBid struct {
	BidID string `json:"bidId"`
}

func (c *CancelBid) TxType() tx.Type { return tx.TypeNFTCancelBid }

func (c *CancelBid) Validate(ctx *tx.Context) error {
	b, err := MustGetBid(ctx.Ctx, ctx.Store, c.BidID)
	if err != nil {
		return err
	}
	if b.Bidder != ctx.Sender {
		return ErrNotBidder
	}
	if !b.Live() {
		return fmt.Errorf("%w: %s is %s", ErrBidClosed, b.ID, b.Status)
	}
	return nil
}

func (c *CancelBid) Apply(ctx *tx.Context) error {
	b, err := MustGetBid(ctx.Ctx, ctx.Store, c.BidID)
	if err != nil {
		return err
	}
	if b.EscrowedAmount.IsPositive() {
		if err := ctx.Journal.Release(ctx.Ctx, b.Bidder, b.PaymentToken, b.EscrowedAmount); err != nil {
			return err
		}
	}
	wasHighest := b.IsHighestBid
	b.Status = BidCancelled
	b.IsHighestBid = false
	b.EscrowedAmount = amount.Zero()
	if err := PutBid(ctx.Ctx, ctx.Store, b); err != nil {
		return err
	}

	promoted := ""
	l, found, err := GetListing(ctx.Ctx, ctx.Store, b.ListingID)
	if err != nil {
		return err
	}
	if found && l.Status == ListingActive && (wasHighest || l.HighestBidID == b.ID) {
		bids, err := ListingBids(ctx.Ctx, ctx.Store, l.ID)
		if err != nil {
			return err
		}
		if next := highestLive(bids, b.ID); next != nil {
			next.Status = BidWinning
			next.IsHighestBid = true
			if err := PutBid(ctx.Ctx, ctx.Store, next); err != nil {
				return err
			}
			l.HighestBidID = next.ID
			promoted = next.ID
		} else {
			l.HighestBidID = ""
		}
		if err := PutListing(ctx.Ctx, ctx.Store, l); err != nil {
			return err
		}
	}

	ctx.Emit(event.CategoryNFT, "bidCancelled", map[string]any{
		"listingId": b.ListingID,
		"bidId":     b.ID,
		"refunded":  b.BidAmount.String(),
		"promoted":  promoted,
	})
	return nil
}
