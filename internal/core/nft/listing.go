package nft

import (
	"context"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
	"github.com/echelon-net/echelond/internal/state"
)

// Listing types.
const (
	ListingFixedPrice     = "FIXED_PRICE"
	ListingAuction        = "AUCTION"
	ListingReserveAuction = "RESERVE_AUCTION"
)

// Listing statuses. Only active listings accept buys and bids.
const (
	ListingActive    = "active"
	ListingSold      = "sold"
	ListingCancelled = "cancelled"
	ListingExpired   = "expired"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrListingClosed   = errors.New("listing is not active")
	ErrNotSeller       = errors.New("only the seller may do this")
	ErrOwnListing      = errors.New("cannot buy your own listing")
	ErrAuctionEnded    = errors.New("auction has ended")
	ErrAuctionRunning  = errors.New("auction has not ended")
	errBadListingType  = errors.New("listing type must be FIXED_PRICE, AUCTION or RESERVE_AUCTION")
	errBadPrice        = errors.New("price must be positive")
	errBadEndTime      = errors.New("auction end time must be in the future")
	errBadReserve      = errors.New("reserve price must be positive")
)

// Listing is one marketplace listing. The instance stays with the seller
// while listed; what the listing escrows is the instance itself, via the
// ActiveListingID pin on the NFT document.
type Listing struct {
	ID               string        `json:"id"`
	CollectionSymbol string        `json:"collectionSymbol"`
	TokenID          string        `json:"tokenId"`
	Seller           string        `json:"seller"`
	Price            amount.Amount `json:"price"`
	PaymentToken     string        `json:"paymentToken"`
	Type             string        `json:"listingType"`
	AuctionEndTime   int64         `json:"auctionEndTime,omitempty"`
	ReservePrice     amount.Amount `json:"reservePrice"`
	Status           string        `json:"status"`
	HighestBidID     string        `json:"highestBidId,omitempty"`
	CreatedAt        int64         `json:"createdAt"`
	ClosedAt         int64         `json:"closedAt,omitempty"`
}

// Auction reports whether the listing runs a (reserve) auction.
func (l *Listing) Auction() bool {
	return l.Type == ListingAuction || l.Type == ListingReserveAuction
}

// GetListing loads a listing by id.
func GetListing(ctx context.Context, store *state.Store, id string) (*Listing, bool, error) {
	var l Listing
	found, err := store.Get(ctx, state.CollNFTListings, id, &l)
	if err != nil || !found {
		return nil, found, err
	}
	return &l, true, nil
}

// MustGetListing loads a listing callers know exists.
func MustGetListing(ctx context.Context, store *state.Store, id string) (*Listing, error) {
	l, found, err := GetListing(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id)
	}
	return l, nil
}

// PutListing writes a listing document.
func PutListing(ctx context.Context, store *state.Store, l *Listing) error {
	return store.Put(ctx, state.CollNFTListings, l.ID, l)
}

func init() {
	tx.Register(tx.TypeNFTListItem, func() tx.Operation { return &ListItem{} })
	tx.Register(tx.TypeNFTDelistItem, func() tx.Operation { return &DelistItem{} })
}

// ListItem is NFT_LIST_ITEM.
type ListItem struct {
	TokenID        string        `json:"tokenId"`
	Price          amount.Amount `json:"price"`
	PaymentToken   string        `json:"paymentToken,omitempty"` // default native
	ListingType    string        `json:"listingType,omitempty"`  // default FIXED_PRICE
	AuctionEndTime int64         `json:"auctionEndTime,omitempty"`
	ReservePrice   amount.Amount `json:"reservePrice,omitempty"`
}

func (li *ListItem) TxType() tx.Type { return tx.TypeNFTListItem }

func (li *ListItem) listingType() string {
	if li.ListingType == "" {
		return ListingFixedPrice
	}
	return li.ListingType
}

func (li *ListItem) paymentToken(ctx *tx.Context) string {
	if li.PaymentToken == "" {
		return ctx.Params.NativeSymbol
	}
	return li.PaymentToken
}

func (li *ListItem) Validate(ctx *tx.Context) error {
	typ := li.listingType()
	if typ != ListingFixedPrice && typ != ListingAuction && typ != ListingReserveAuction {
		return fmt.Errorf("%w: %q", errBadListingType, li.ListingType)
	}
	if !li.Price.IsPositive() {
		return errBadPrice
	}
	if typ != ListingFixedPrice {
		if li.AuctionEndTime <= ctx.Timestamp {
			return errBadEndTime
		}
	}
	if typ == ListingReserveAuction && !li.ReservePrice.IsPositive() {
		return errBadReserve
	}
	if _, err := token.MustGet(ctx.Ctx, ctx.Store, li.paymentToken(ctx)); err != nil {
		return err
	}
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, li.TokenID)
	if err != nil {
		return err
	}
	if n.Owner != ctx.Sender {
		return fmt.Errorf("%w: %s belongs to %s", ErrNotOwner, n.ID, n.Owner)
	}
	if n.ActiveListingID != "" {
		return fmt.Errorf("%w: %s", ErrTokenListed, n.ActiveListingID)
	}
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, n.CollectionSymbol)
	if err != nil {
		return err
	}
	if !coll.Transferable {
		return ErrNotTransferable
	}
	return nil
}

func (li *ListItem) Apply(ctx *tx.Context) error {
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, li.TokenID)
	if err != nil {
		return err
	}
	l := &Listing{
		ID:               crypto.NFTListingID(n.ID, ctx.Sender, ctx.TxID),
		CollectionSymbol: n.CollectionSymbol,
		TokenID:          n.ID,
		Seller:           ctx.Sender,
		Price:            li.Price,
		PaymentToken:     li.paymentToken(ctx),
		Type:             li.listingType(),
		AuctionEndTime:   li.AuctionEndTime,
		ReservePrice:     li.ReservePrice,
		Status:           ListingActive,
		CreatedAt:        ctx.Timestamp,
	}
	if err := PutListing(ctx.Ctx, ctx.Store, l); err != nil {
		return err
	}
	n.ActiveListingID = l.ID
	if err := PutNFT(ctx.Ctx, ctx.Store, n); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "itemListed", map[string]any{
		"listingId":    l.ID,
		"tokenId":      l.TokenID,
		"collectionId": l.CollectionSymbol,
		"price":        l.Price.String(),
		"paymentToken": l.PaymentToken,
		"listingType":  l.Type,
	})
	return nil
}

// DelistItem is NFT_DELIST_ITEM. Cancelling a listing refunds every live
// bid on it.
type DelistItem struct {
	ListingID string `json:"listingId"`
}

func (d *DelistItem) TxType() tx.Type { return tx.TypeNFTDelistItem }

func (d *DelistItem) Validate(ctx *tx.Context) error {
	l, err := MustGetListing(ctx.Ctx, ctx.Store, d.ListingID)
	if err != nil {
		return err
	}
	if l.Status != ListingActive {
		return fmt.Errorf("%w: %s is %s", ErrListingClosed, l.ID, l.Status)
	}
	if l.Seller != ctx.Sender && !ctx.IsMaster() {
		return ErrNotSeller
	}
	return nil
}

func (d *DelistItem) Apply(ctx *tx.Context) error {
	l, err := MustGetListing(ctx.Ctx, ctx.Store, d.ListingID)
	if err != nil {
		return err
	}
	refunded, err := releaseLiveBids(ctx, l, BidCancelled, "")
	if err != nil {
		return err
	}
	l.Status = ListingCancelled
	l.HighestBidID = ""
	l.ClosedAt = ctx.Timestamp
	if err := PutListing(ctx.Ctx, ctx.Store, l); err != nil {
		return err
	}
	if err := unpinInstance(ctx, l); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "itemDelisted", map[string]any{
		"listingId":    l.ID,
		"tokenId":      l.TokenID,
		"bidsRefunded": refunded,
	})
	return nil
}

// unpinInstance clears the listing pin on the instance document.
func unpinInstance(ctx *tx.Context, l *Listing) error {
	n, found, err := GetNFT(ctx.Ctx, ctx.Store, l.TokenID)
	if err != nil || !found {
		return err
	}
	if n.ActiveListingID != l.ID {
		return nil
	}
	n.ActiveListingID = ""
	return PutNFT(ctx.Ctx, ctx.Store, n)
}
