// Package nft implements the NFT marketplace: collections and minted
// instances (NFT_CREATE_COLLECTION, NFT_MINT, NFT_TRANSFER, NFT_UPDATE,
// NFT_UPDATE_COLLECTION), fixed-price and auction listings with escrowed
// bids (NFT_LIST_ITEM, NFT_DELIST_ITEM, NFT_BUY_ITEM, NFT_ACCEPT_BID,
// NFT_CANCEL_BID), standing offers (NFT_MAKE_OFFER, NFT_ACCEPT_OFFER,
// NFT_CANCEL_OFFER) and batched execution (NFT_BATCH_OPERATIONS).
package nft

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/state"
)

// MaxRoyaltyBps caps the creator royalty at 25%.
const MaxRoyaltyBps = 2500

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrNotCreator         = errors.New("only the collection creator may do this")
	ErrNotMintable        = errors.New("collection is not mintable")
	ErrNotTransferable    = errors.New("collection is not transferable")
	ErrSupplyCap          = errors.New("mint exceeds max supply")
	ErrBadSymbol          = errors.New("symbol must be 3-10 uppercase letters or digits")
	ErrBadRoyalty         = errors.New("royalty exceeds 2500 basis points")
	errBadName            = errors.New("name must be 1-50 characters")
	errNothingToUpdate    = errors.New("no fields to update")
)

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

// Collection is the registry document of one NFT collection. NextIndex is
// the index the next mint takes and only ever grows, so instance ids stay
// unique for the life of the collection.
type Collection struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Creator       string `json:"creator"`
	MaxSupply     uint64 `json:"maxSupply"` // zero = uncapped
	CurrentSupply uint64 `json:"currentSupply"`
	NextIndex     uint64 `json:"nextIndex"`
	Mintable      bool   `json:"mintable"`
	Burnable      bool   `json:"burnable"`
	Transferable  bool   `json:"transferable"`
	RoyaltyBps    int64  `json:"royaltyBps"`
	Description   string `json:"description,omitempty"`
	CoverURL      string `json:"coverUrl,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// GetCollection loads a collection by symbol.
func GetCollection(ctx context.Context, store *state.Store, symbol string) (*Collection, bool, error) {
	var c Collection
	found, err := store.Get(ctx, state.CollNFTCollections, symbol, &c)
	if err != nil || !found {
		return nil, found, err
	}
	return &c, true, nil
}

// MustGetCollection loads a collection callers know exists.
func MustGetCollection(ctx context.Context, store *state.Store, symbol string) (*Collection, error) {
	c, found, err := GetCollection(ctx, store, symbol)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, symbol)
	}
	return c, nil
}

// PutCollection writes a collection document.
func PutCollection(ctx context.Context, store *state.Store, c *Collection) error {
	return store.Put(ctx, state.CollNFTCollections, c.Symbol, c)
}

// CreateCollection is NFT_CREATE_COLLECTION. RoyaltyBps wins over the
// legacy CreatorFee percentage; the fee is promoted (x100) only when no
// bps value is given.
type CreateCollection struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CoverURL     string `json:"coverUrl,omitempty"`
	MaxSupply    uint64 `json:"maxSupply,omitempty"`
	Mintable     *bool  `json:"mintable,omitempty"`     // default true
	Burnable     bool   `json:"burnable,omitempty"`
	Transferable *bool  `json:"transferable,omitempty"` // default true
	RoyaltyBps   *int64 `json:"royaltyBps,omitempty"`
	CreatorFee   *int64 `json:"creatorFee,omitempty"` // legacy, whole percent
}

func init() {
	tx.Register(tx.TypeNFTCreateCollection, func() tx.Operation { return &CreateCollection{} })
	tx.Register(tx.TypeNFTUpdateCollection, func() tx.Operation { return &UpdateCollection{} })
}

func (c *CreateCollection) TxType() tx.Type { return tx.TypeNFTCreateCollection }

func (c *CreateCollection) royalty() (int64, error) {
	switch {
	case c.RoyaltyBps != nil:
		if *c.RoyaltyBps < 0 || *c.RoyaltyBps > MaxRoyaltyBps {
			return 0, ErrBadRoyalty
		}
		return *c.RoyaltyBps, nil
	case c.CreatorFee != nil:
		bps := *c.CreatorFee * 100
		if bps < 0 || bps > MaxRoyaltyBps {
			return 0, ErrBadRoyalty
		}
		return bps, nil
	}
	return 0, nil
}

func (c *CreateCollection) Validate(ctx *tx.Context) error {
	if !symbolRe.MatchString(c.Symbol) {
		return ErrBadSymbol
	}
	if len(c.Name) == 0 || len(c.Name) > 50 {
		return errBadName
	}
	if _, err := c.royalty(); err != nil {
		return err
	}
	_, found, err := GetCollection(ctx.Ctx, ctx.Store, c.Symbol)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %s", ErrCollectionExists, c.Symbol)
	}
	return nil
}

func (c *CreateCollection) Apply(ctx *tx.Context) error {
	bps, err := c.royalty()
	if err != nil {
		return err
	}
	coll := &Collection{
		Symbol:       c.Symbol,
		Name:         c.Name,
		Creator:      ctx.Sender,
		MaxSupply:    c.MaxSupply,
		NextIndex:    1,
		Mintable:     orTrue(c.Mintable),
		Burnable:     c.Burnable,
		Transferable: orTrue(c.Transferable),
		RoyaltyBps:   bps,
		Description:  c.Description,
		CoverURL:     c.CoverURL,
		CreatedAt:    ctx.Timestamp,
	}
	if err := PutCollection(ctx.Ctx, ctx.Store, coll); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "collectionCreated", map[string]any{
		"collectionId": coll.Symbol,
		"name":         coll.Name,
		"maxSupply":    coll.MaxSupply,
		"royaltyBps":   coll.RoyaltyBps,
		"mintable":     coll.Mintable,
		"transferable": coll.Transferable,
	})
	return nil
}

func orTrue(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// UpdateCollection is NFT_UPDATE_COLLECTION; metadata, flags and royalty,
// creator only. Supply fields are immutable.
type UpdateCollection struct {
	Symbol       string  `json:"symbol"`
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	CoverURL     *string `json:"coverUrl,omitempty"`
	Mintable     *bool   `json:"mintable,omitempty"`
	Burnable     *bool   `json:"burnable,omitempty"`
	Transferable *bool   `json:"transferable,omitempty"`
	RoyaltyBps   *int64  `json:"royaltyBps,omitempty"`
}

func (u *UpdateCollection) TxType() tx.Type { return tx.TypeNFTUpdateCollection }

func (u *UpdateCollection) Validate(ctx *tx.Context) error {
	if u.Name == nil && u.Description == nil && u.CoverURL == nil &&
		u.Mintable == nil && u.Burnable == nil && u.Transferable == nil && u.RoyaltyBps == nil {
		return errNothingToUpdate
	}
	if u.Name != nil && (len(*u.Name) == 0 || len(*u.Name) > 50) {
		return errBadName
	}
	if u.RoyaltyBps != nil && (*u.RoyaltyBps < 0 || *u.RoyaltyBps > MaxRoyaltyBps) {
		return ErrBadRoyalty
	}
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, u.Symbol)
	if err != nil {
		return err
	}
	if coll.Creator != ctx.Sender {
		return ErrNotCreator
	}
	return nil
}

func (u *UpdateCollection) Apply(ctx *tx.Context) error {
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, u.Symbol)
	if err != nil {
		return err
	}
	changed := map[string]any{"collectionId": coll.Symbol}
	if u.Name != nil {
		coll.Name = *u.Name
		changed["name"] = *u.Name
	}
	if u.Description != nil {
		coll.Description = *u.Description
		changed["description"] = *u.Description
	}
	if u.CoverURL != nil {
		coll.CoverURL = *u.CoverURL
		changed["coverUrl"] = *u.CoverURL
	}
	if u.Mintable != nil {
		coll.Mintable = *u.Mintable
		changed["mintable"] = *u.Mintable
	}
	if u.Burnable != nil {
		coll.Burnable = *u.Burnable
		changed["burnable"] = *u.Burnable
	}
	if u.Transferable != nil {
		coll.Transferable = *u.Transferable
		changed["transferable"] = *u.Transferable
	}
	if u.RoyaltyBps != nil {
		coll.RoyaltyBps = *u.RoyaltyBps
		changed["royaltyBps"] = *u.RoyaltyBps
	}
	if err := PutCollection(ctx.Ctx, ctx.Store, coll); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "collectionUpdated", changed)
	return nil
}
