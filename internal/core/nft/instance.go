package nft

import (
	"context"
	"errors"
	"fmt"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/state"
)

var (
	ErrNFTNotFound  = errors.New("nft not found")
	ErrNotOwner     = errors.New("only the owner may do this")
	ErrTokenListed  = errors.New("nft has an active listing")
	ErrSelfTransfer = errors.New("cannot transfer to yourself")
	errBadRecipient = errors.New("invalid recipient account")
	errMetadataLong = errors.New("metadata exceeds 2048 characters")
)

// NFT is one minted instance. The id is <SYMBOL>_<index>; indexes come
// from the collection's NextIndex counter. ActiveListingID pins the
// instance while a listing is open: a pinned instance cannot be
// transferred or listed again until the listing closes.
type NFT struct {
	ID               string            `json:"id"`
	CollectionSymbol string            `json:"collectionSymbol"`
	Index            uint64            `json:"index"`
	Owner            string            `json:"owner"`
	Name             string            `json:"name,omitempty"`
	Metadata         string            `json:"metadata,omitempty"`
	CoverURL         string            `json:"coverUrl,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`
	ActiveListingID  string            `json:"activeListingId,omitempty"`
	MintedAt         int64             `json:"mintedAt"`
}

// InstanceID derives the id of the index-th mint of a collection.
func InstanceID(symbol string, index uint64) string {
	return fmt.Sprintf("%s_%d", symbol, index)
}

// GetNFT loads an instance by id.
func GetNFT(ctx context.Context, store *state.Store, id string) (*NFT, bool, error) {
	var n NFT
	found, err := store.Get(ctx, state.CollNFTs, id, &n)
	if err != nil || !found {
		return nil, found, err
	}
	return &n, true, nil
}

// MustGetNFT loads an instance callers know exists.
func MustGetNFT(ctx context.Context, store *state.Store, id string) (*NFT, error) {
	n, found, err := GetNFT(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNFTNotFound, id)
	}
	return n, nil
}

// PutNFT writes an instance document.
func PutNFT(ctx context.Context, store *state.Store, n *NFT) error {
	return store.Put(ctx, state.CollNFTs, n.ID, n)
}

func init() {
	tx.Register(tx.TypeNFTMint, func() tx.Operation { return &Mint{} })
	tx.Register(tx.TypeNFTTransfer, func() tx.Operation { return &Transfer{} })
	tx.Register(tx.TypeNFTUpdate, func() tx.Operation { return &Update{} })
}

// Mint is NFT_MINT; collection creator only. The instance goes to the
// optional recipient, defaulting to the creator.
type Mint struct {
	CollectionSymbol string            `json:"collectionSymbol"`
	To               string            `json:"to,omitempty"`
	Name             string            `json:"name,omitempty"`
	Metadata         string            `json:"metadata,omitempty"`
	CoverURL         string            `json:"coverUrl,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`
}

func (m *Mint) TxType() tx.Type { return tx.TypeNFTMint }

func (m *Mint) Validate(ctx *tx.Context) error {
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, m.CollectionSymbol)
	if err != nil {
		return err
	}
	if coll.Creator != ctx.Sender {
		return ErrNotCreator
	}
	if !coll.Mintable {
		return ErrNotMintable
	}
	if coll.MaxSupply > 0 && coll.CurrentSupply >= coll.MaxSupply {
		return fmt.Errorf("%w: %d of %d minted", ErrSupplyCap, coll.CurrentSupply, coll.MaxSupply)
	}
	if m.To != "" && !account.ValidName(m.To) {
		return fmt.Errorf("%w: %q", errBadRecipient, m.To)
	}
	if len(m.Metadata) > 2048 {
		return errMetadataLong
	}
	return nil
}

func (m *Mint) Apply(ctx *tx.Context) error {
	coll, err := MustGetCollection(ctx.Ctx, ctx.Store, m.CollectionSymbol)
	if err != nil {
		return err
	}
	owner := m.To
	if owner == "" {
		owner = ctx.Sender
	}
	n := &NFT{
		ID:               InstanceID(coll.Symbol, coll.NextIndex),
		CollectionSymbol: coll.Symbol,
		Index:            coll.NextIndex,
		Owner:            owner,
		Name:             m.Name,
		Metadata:         m.Metadata,
		CoverURL:         m.CoverURL,
		Properties:       m.Properties,
		MintedAt:         ctx.Timestamp,
	}
	coll.NextIndex++
	coll.CurrentSupply++
	if err := PutNFT(ctx.Ctx, ctx.Store, n); err != nil {
		return err
	}
	if err := PutCollection(ctx.Ctx, ctx.Store, coll); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "minted", map[string]any{
		"tokenId":      n.ID,
		"collectionId": coll.Symbol,
		"index":        n.Index,
		"owner":        owner,
	})
	return nil
}

// Transfer is NFT_TRANSFER. Listed instances are pinned and must be
// delisted first.
type Transfer struct {
	TokenID string `json:"tokenId"`
	To      string `json:"to"`
}

func (t *Transfer) TxType() tx.Type { return tx.TypeNFTTransfer }

func (t *Transfer) Validate(ctx *tx.Context) error {
	if !account.ValidName(t.To) {
		return fmt.Errorf("%w: %q", errBadRecipient, t.To)
	}
	if t.To == ctx.Sender {
		return ErrSelfTransfer
	}
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, t.TokenID)
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

func (t *Transfer) Apply(ctx *tx.Context) error {
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, t.TokenID)
	if err != nil {
		return err
	}
	from := n.Owner
	n.Owner = t.To
	if err := PutNFT(ctx.Ctx, ctx.Store, n); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "transferred", map[string]any{
		"tokenId": n.ID,
		"from":    from,
		"to":      t.To,
	})
	return nil
}

// Update is NFT_UPDATE; instance metadata, owner only.
type Update struct {
	TokenID    string            `json:"tokenId"`
	Name       *string           `json:"name,omitempty"`
	Metadata   *string           `json:"metadata,omitempty"`
	CoverURL   *string           `json:"coverUrl,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (u *Update) TxType() tx.Type { return tx.TypeNFTUpdate }

func (u *Update) Validate(ctx *tx.Context) error {
	if u.Name == nil && u.Metadata == nil && u.CoverURL == nil && u.Properties == nil {
		return errNothingToUpdate
	}
	if u.Metadata != nil && len(*u.Metadata) > 2048 {
		return errMetadataLong
	}
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, u.TokenID)
	if err != nil {
		return err
	}
	if n.Owner != ctx.Sender {
		return fmt.Errorf("%w: %s belongs to %s", ErrNotOwner, n.ID, n.Owner)
	}
	return nil
}

func (u *Update) Apply(ctx *tx.Context) error {
	n, err := MustGetNFT(ctx.Ctx, ctx.Store, u.TokenID)
	if err != nil {
		return err
	}
	changed := map[string]any{"tokenId": n.ID}
	if u.Name != nil {
		n.Name = *u.Name
		changed["name"] = *u.Name
	}
	if u.Metadata != nil {
		n.Metadata = *u.Metadata
		changed["metadata"] = *u.Metadata
	}
	if u.CoverURL != nil {
		n.CoverURL = *u.CoverURL
		changed["coverUrl"] = *u.CoverURL
	}
	if u.Properties != nil {
		n.Properties = u.Properties
		changed["properties"] = u.Properties
	}
	if err := PutNFT(ctx.Ctx, ctx.Store, n); err != nil {
		return err
	}
	ctx.Emit(event.CategoryNFT, "updated", changed)
	return nil
}
