package market

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/state"
)

// Order types.
const (
	OrderLimit  = "LIMIT"
	OrderMarket = "MARKET"
)

// Order statuses. OPEN and PARTIALLY_FILLED orders rest on the book;
// everything else is terminal.
const (
	StatusOpen            = "OPEN"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCancelled       = "CANCELLED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

// Time-in-force policies.
const (
	TifGTC = "GTC"
	TifIOC = "IOC"
	TifFOK = "FOK"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotOrderOwner = errors.New("not the order owner")
	ErrOrderClosed   = errors.New("order is not open")
)

// Order is the persisted record of one placed order. EscrowRemaining is the
// slice of the user's hold bucket still attributable to this order; the sum
// of open orders' shares always equals the account's held amount per token.
type Order struct {
	ID              string        `json:"id"`
	PairID          string        `json:"pairId"`
	User            string        `json:"userId"`
	Type            string        `json:"type"`
	Side            book.Side     `json:"side"`
	Price           amount.Amount `json:"price,omitempty"`
	Quantity        amount.Amount `json:"quantity"`
	QuoteOrderQty   amount.Amount `json:"quoteOrderQty,omitempty"`
	FilledQuantity  amount.Amount `json:"filledQuantity"`
	EscrowRemaining amount.Amount `json:"escrowRemaining"`
	Status          string        `json:"status"`
	TimeInForce     string        `json:"timeInForce"`
	CreatedAt       int64         `json:"createdAt"`
	ExpiresAt       int64         `json:"expiresAt,omitempty"`
}

// Remaining is the unfilled base quantity.
func (o *Order) Remaining() amount.Amount { return o.Quantity.Sub(o.FilledQuantity) }

// Resting reports whether the order should be on the book.
func (o *Order) Resting() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// EscrowToken returns the identifier the order's escrow is held in: quote
// for buys, base for sells.
func (o *Order) EscrowToken(p *Pair) string {
	if o.Side == book.Buy {
		return p.Quote
	}
	return p.Base
}

// GetOrder loads an order by id.
func GetOrder(ctx context.Context, store *state.Store, id string) (*Order, bool, error) {
	var o Order
	found, err := store.Get(ctx, state.CollOrders, id, &o)
	if err != nil || !found {
		return nil, found, err
	}
	return &o, true, nil
}

// MustGetOrder loads an order callers know exists.
func MustGetOrder(ctx context.Context, store *state.Store, id string) (*Order, error) {
	o, found, err := GetOrder(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

// PutOrder writes an order document.
func PutOrder(ctx context.Context, store *state.Store, o *Order) error {
	return store.Put(ctx, state.CollOrders, o.ID, o)
}

// RebuildBooks reloads every resting order into the in-memory books,
// oldest first so FIFO priority within a price level survives restarts.
func RebuildBooks(ctx context.Context, store *state.Store, books *book.Registry) error {
	var open []*Order
	err := store.Scan(ctx, state.CollOrders, func(id string, raw []byte) (bool, error) {
		var o Order
		if err := state.Decode(raw, &o); err != nil {
			return false, err
		}
		if o.Resting() {
			open = append(open, &o)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].CreatedAt != open[j].CreatedAt {
			return open[i].CreatedAt < open[j].CreatedAt
		}
		return open[i].ID < open[j].ID
	})
	for _, o := range open {
		books.Ensure(o.PairID).Add(o.Side, book.Entry{
			OrderID:   o.ID,
			Account:   o.User,
			Price:     o.Price,
			Remaining: o.Remaining(),
			ExpiresAt: o.ExpiresAt,
		})
	}
	return nil
}
