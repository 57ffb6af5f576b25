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

// Offer target types.
const (
	TargetNFT        = "NFT"
	TargetCollection = "COLLECTION"
	TargetTrait      = "TRAIT"
)

// Offer statuses.
const (
	OfferActive    = "ACTIVE"
	OfferAccepted  = "ACCEPTED"
	OfferCancelled = "CANCELLED"
)

var (
	ErrOfferNotFound  = errors.New("offer not found")
	ErrOfferExists    = errors.New("an active offer for this target already exists")
	ErrOfferClosed    = errors.New("offer is not active")
	ErrOfferExpired   = errors.New("offer has expired")
	ErrTraitsMismatch = errors.New("nft does not match the offered traits")
	errBadTargetType  = errors.New("target type must be NFT, COLLECTION or TRAIT")
	errBadOffer       = errors.New("offer amount must be positive")
	errOwnOffer       = errors.New("cannot accept your own offer")
	errOwnNFT         = errors.New("cannot offer on your own nft")
	errTraitsRequired = errors.New("trait offers need at least one trait")
	errTokenRequired  = errors.New("collection and trait offers need a tokenId to accept")
	errWrongInstance  = errors.New("nft does not match the offer target")
)

// Offer is a standing escrowed offer. Its id is derived from (targetType,
// targetId, offerBy) with no transaction salt, which is what enforces the
// one-active-offer-per-target rule: a second make lands on the same
// document and is rejected while the first is still active.
type Offer struct {
	ID             string            `json:"id"`
	TargetType     string            `json:"targetType"`
	TargetID       string            `json:"targetId"`
	OfferBy        string            `json:"offerBy"`
	OfferAmount    amount.Amount     `json:"offerAmount"`
	EscrowedAmount amount.Amount     `json:"escrowedAmount"`
	PaymentToken   string            `json:"paymentToken"`
	Traits         map[string]string `json:"traits,omitempty"`
	Status         string            `json:"status"`
	ExpiresAt      int64             `json:"expiresAt,omitempty"`
	CreatedAt      int64             `json:"createdAt"`
}

// Expired reports whether the offer's deadline has passed at the given
// block time. An expired offer can no longer be accepted; its escrow goes
// back through NFT_CANCEL_OFFER.
func (o *Offer) Expired(now int64) bool {
	return o.ExpiresAt > 0 && now >= o.ExpiresAt
}

// GetOffer loads an offer by id.
func GetOffer(ctx context.Context, store *state.Store, id string) (*Offer, bool, error) {
	var o Offer
	found, err := store.Get(ctx, state.CollNFTOffers, id, &o)
	if err != nil || !found {
		return nil, found, err
	}
	return &o, true, nil
}

// MustGetOffer loads an offer callers know exists.
func MustGetOffer(ctx context.Context, store *state.Store, id string) (*Offer, error) {
	o, found, err := GetOffer(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, id)
	}
	return o, nil
}

// PutOffer writes an offer document.
func PutOffer(ctx context.Context, store *state.Store, o *Offer) error {
	return store.Put(ctx, state.CollNFTOffers, o.ID, o)
}

func init() {
	tx.Register(tx.TypeNFTMakeOffer, func() tx.Operation { return &MakeOffer{} })
	tx.Register(tx.TypeNFTAcceptOffer, func() tx.Operation { return &AcceptOffer{} })
	tx.Register(tx.TypeNFTCancelOffer, func() tx.Operation { return &CancelOffer{} })
}

// MakeOffer is NFT_MAKE_OFFER.
type MakeOffer struct {
	TargetType   string            `json:"targetType"`
	TargetID     string            `json:"targetId"`
	OfferAmount  amount.Amount     `json:"offerAmount"`
	PaymentToken string            `json:"paymentToken,omitempty"` // default native
	Traits       map[string]string `json:"traits,omitempty"`
	ExpiresAt    int64             `json:"expiresAt,omitempty"`
}

func (m *MakeOffer) TxType() tx.Type { return tx.TypeNFTMakeOffer }

func (m *MakeOffer) paymentToken(ctx *tx.Context) string {
	if m.PaymentToken == "" {
		return ctx.Params.NativeSymbol
	}
	return m.PaymentToken
}

func (m *MakeOffer) Validate(ctx *tx.Context) error {
	if !m.OfferAmount.IsPositive() {
		return errBadOffer
	}
	if m.ExpiresAt != 0 && m.ExpiresAt <= ctx.Timestamp {
		return fmt.Errorf("%w: expiry in the past", ErrOfferExpired)
	}
	if _, err := token.MustGet(ctx.Ctx, ctx.Store, m.paymentToken(ctx)); err != nil {
		return err
	}
	switch m.TargetType {
	case TargetNFT:
		n, err := MustGetNFT(ctx.Ctx, ctx.Store, m.TargetID)
		if err != nil {
			return err
		}
		if n.Owner == ctx.Sender {
			return errOwnNFT
		}
	case TargetCollection:
		if _, err := MustGetCollection(ctx.Ctx, ctx.Store, m.TargetID); err != nil {
			return err
		}
	case TargetTrait:
		if _, err := MustGetCollection(ctx.Ctx, ctx.Store, m.TargetID); err != nil {
			return err
		}
		if len(m.Traits) == 0 {
			return errTraitsRequired
		}
	default:
		return fmt.Errorf("%w: %q", errBadTargetType, m.TargetType)
	}
	id := crypto.NFTOfferID(m.TargetType, m.TargetID, ctx.Sender)
	if prior, found, err := GetOffer(ctx.Ctx, ctx.Store, id); err != nil {
		return err
	} else if found && prior.Status == OfferActive {
		return fmt.Errorf("%w: %s", ErrOfferExists, id)
	}
	return nil
}

func (m *MakeOffer) Apply(ctx *tx.Context) error {
	payToken := m.paymentToken(ctx)
	if err := ctx.Journal.Hold(ctx.Ctx, ctx.Sender, payToken, m.OfferAmount); err != nil {
		return err
	}
	o := &Offer{
		ID:             crypto.NFTOfferID(m.TargetType, m.TargetID, ctx.Sender),
		TargetType:     m.TargetType,
		TargetID:       m.TargetID,
		OfferBy:        ctx.Sender,
		OfferAmount:    m.OfferAmount,
		EscrowedAmount: m.OfferAmount,
		PaymentToken:   payToken,
		Traits:         m.Traits,
		Status:         OfferActive,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      ctx.Timestamp,
	}
	if err := PutOffer(ctx.Ctx, ctx.Store, o); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "offerMade", map[string]any{
		"offerId":      o.ID,
		"targetType":   o.TargetType,
		"targetId":     o.TargetID,
		"amount":       o.OfferAmount.String(),
		"paymentToken": o.PaymentToken,
	})
	return nil
}

// AcceptOffer is NFT_ACCEPT_OFFER. Collection and trait offers name the
// concrete instance in the accept payload; the accepting owner chooses
// which of their tokens satisfies the offer.
type AcceptOffer struct {
	OfferID string `json:"offerId"`
	TokenID string `json:"tokenId,omitempty"`
}

func (a *AcceptOffer) TxType() tx.Type { return tx.TypeNFTAcceptOffer }

// resolveInstance returns the instance the acceptance sells.
func (a *AcceptOffer) resolveInstance(ctx *tx.Context, o *Offer) (*NFT, error) {
	switch o.TargetType {
	case TargetNFT:
		if a.TokenID != "" && a.TokenID != o.TargetID {
			return nil, fmt.Errorf("%w: offer is for %s", errWrongInstance, o.TargetID)
		}
		return MustGetNFT(ctx.Ctx, ctx.Store, o.TargetID)
	default:
		if a.TokenID == "" {
			return nil, errTokenRequired
		}
		n, err := MustGetNFT(ctx.Ctx, ctx.Store, a.TokenID)
		if err != nil {
			return nil, err
		}
		if n.CollectionSymbol != o.TargetID {
			return nil, fmt.Errorf("%w: %s is not in collection %s", errWrongInstance, n.ID, o.TargetID)
		}
		if o.TargetType == TargetTrait {
			for k, v := range o.Traits {
				if n.Properties[k] != v {
					return nil, fmt.Errorf("%w: %s=%s", ErrTraitsMismatch, k, v)
				}
			}
		}
		return n, nil
	}
}

func (a *AcceptOffer) Validate(ctx *tx.Context) error {
	o, err := MustGetOffer(ctx.Ctx, ctx.Store, a.OfferID)
	if err != nil {
		return err
	}
	if o.Status != OfferActive {
		return fmt.Errorf("%w: %s is %s", ErrOfferClosed, o.ID, o.Status)
	}
	if o.Expired(ctx.Timestamp) {
		return ErrOfferExpired
	}
	if o.OfferBy == ctx.Sender {
		return errOwnOffer
	}
	n, err := a.resolveInstance(ctx, o)
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

func (a *AcceptOffer) Apply(ctx *tx.Context) error {
	o, err := MustGetOffer(ctx.Ctx, ctx.Store, a.OfferID)
	if err != nil {
		return err
	}
	n, err := a.resolveInstance(ctx, o)
	if err != nil {
		return err
	}
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, n.CollectionSymbol)
	if err != nil {
		return err
	}

	sellerShare, creatorShare, err := settleHeldSale(ctx, o.OfferBy, o.PaymentToken,
		o.EscrowedAmount, ctx.Sender, coll.Creator, coll.RoyaltyBps)
	if err != nil {
		return err
	}

	n.Owner = o.OfferBy
	if err := PutNFT(ctx.Ctx, ctx.Store, n); err != nil {
		return err
	}
	o.Status = OfferAccepted
	o.EscrowedAmount = amount.Zero()
	if err := PutOffer(ctx.Ctx, ctx.Store, o); err != nil {
		return err
	}

	ctx.Emit(event.CategoryNFT, "offerAccepted", map[string]any{
		"offerId":        o.ID,
		"tokenId":        n.ID,
		"buyer":          o.OfferBy,
		"seller":         ctx.Sender,
		"price":          o.OfferAmount.String(),
		"sellerProceeds": sellerShare.String(),
		"royalty":        creatorShare.String(),
	})
	return nil
}

// CancelOffer is NFT_CANCEL_OFFER. Works on expired offers too; expiry only
// blocks acceptance.
type CancelOffer struct {
	OfferID string `json:"offerId"`
}

func (c *CancelOffer) TxType() tx.Type { return tx.TypeNFTCancelOffer }

func (c *CancelOffer) Validate(ctx *tx.Context) error {
	o, err := MustGetOffer(ctx.Ctx, ctx.Store, c.OfferID)
	if err != nil {
		return err
	}
	if o.OfferBy != ctx.Sender {
		return ErrNotBidder
	}
	if o.Status != OfferActive {
		return fmt.Errorf("%w: %s is %s", ErrOfferClosed, o.ID, o.Status)
	}
	return nil
}

func (c *CancelOffer) Apply(ctx *tx.Context) error {
	o, err := MustGetOffer(ctx.Ctx, ctx.Store, c.OfferID)
	if err != nil {
		return err
	}
	if o.EscrowedAmount.IsPositive() {
		if err := ctx.Journal.Release(ctx.Ctx, o.OfferBy, o.PaymentToken, o.EscrowedAmount); err != nil {
			return err
		}
	}
	o.Status = OfferCancelled
	o.EscrowedAmount = amount.Zero()
	if err := PutOffer(ctx.Ctx, ctx.Store, o); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "offerCancelled", map[string]any{
		"offerId":  o.ID,
		"refunded": o.OfferAmount.String(),
	})
	return nil
}
