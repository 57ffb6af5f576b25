package market

import (
	"errors"
	"strconv"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
)

var (
	ErrBadOrderType    = errors.New("order type must be LIMIT or MARKET")
	ErrBadSide         = errors.New("side must be BUY or SELL")
	ErrBadTimeInForce  = errors.New("timeInForce must be GTC, IOC or FOK")
	ErrBadPrice        = errors.New("price must be positive and tick-aligned")
	ErrBadQuantity     = errors.New("quantity must be positive and lot-aligned")
	ErrBadExpiry       = errors.New("expiresAt must be in the future")
	ErrBelowNotional   = errors.New("notional below pair minimum")
	ErrTradeBounds     = errors.New("amount outside pair trade bounds")
	ErrQuoteQtyMarket  = errors.New("quoteOrderQty is only for market buys")
	ErrQuoteQtyMissing = errors.New("market buys are quote-denominated: set quoteOrderQty, not quantity")
	ErrFOKMarketBuy    = errors.New("FOK needs a base quantity")
)

func init() {
	tx.Register(tx.TypeMarketPlaceOrder, func() tx.Operation { return &PlaceOrder{} })
	tx.Register(tx.TypeMarketCancelOrder, func() tx.Operation { return &CancelOrder{} })
}

// PlaceOrder is MARKET_PLACE_ORDER. Market buys carry quoteOrderQty instead
// of quantity; everything else is quantity-denominated.
type PlaceOrder struct {
	PairID        string        `json:"pairId"`
	Type          string        `json:"type"`
	Side          book.Side     `json:"side"`
	Price         amount.Amount `json:"price,omitempty"`
	Quantity      amount.Amount `json:"quantity,omitempty"`
	QuoteOrderQty amount.Amount `json:"quoteOrderQty,omitempty"`
	TimeInForce   string        `json:"timeInForce,omitempty"`
	ExpiresAt     int64         `json:"expiresAt,omitempty"`
}

func (p *PlaceOrder) TxType() tx.Type { return tx.TypeMarketPlaceOrder }

func (p *PlaceOrder) tif() string {
	if p.TimeInForce == "" {
		return TifGTC
	}
	return p.TimeInForce
}

func (p *PlaceOrder) marketBuy() bool {
	return p.Type == OrderMarket && p.Side == book.Buy
}

func (p *PlaceOrder) Validate(ctx *tx.Context) error {
	pair, err := MustGetPair(ctx.Ctx, ctx.Store, p.PairID)
	if err != nil {
		return err
	}
	if pair.Status != PairTrading {
		return ErrPairNotTrading
	}
	if p.Type != OrderLimit && p.Type != OrderMarket {
		return ErrBadOrderType
	}
	if !p.Side.Valid() {
		return ErrBadSide
	}
	switch p.tif() {
	case TifGTC, TifIOC, TifFOK:
	default:
		return ErrBadTimeInForce
	}
	if p.ExpiresAt != 0 && p.ExpiresAt <= ctx.Timestamp {
		return ErrBadExpiry
	}
	if p.Type == OrderMarket && !p.Price.IsZero() {
		return ErrBadPrice
	}

	if p.marketBuy() {
		if !p.Quantity.IsZero() || !p.QuoteOrderQty.IsPositive() {
			return ErrQuoteQtyMissing
		}
		if p.tif() == TifFOK {
			return ErrFOKMarketBuy
		}
		if p.QuoteOrderQty.Cmp(pair.MinNotional) < 0 {
			return ErrBelowNotional
		}
		return checkTradeBounds(ctx, pair, p.QuoteOrderQty)
	}

	if !p.QuoteOrderQty.IsZero() {
		return ErrQuoteQtyMarket
	}
	if !p.Quantity.IsPositive() || !alignDown(p.Quantity, pair.LotSize).Equal(p.Quantity) {
		return ErrBadQuantity
	}
	if p.Type == OrderMarket {
		// Market sells have no price, so the trade bounds apply to the
		// base quantity directly.
		return checkTradeBounds(ctx, pair, p.Quantity)
	}

	if !p.Price.IsPositive() || !alignDown(p.Price, pair.TickSize).Equal(p.Price) {
		return ErrBadPrice
	}
	notional := p.Price.Mul(p.Quantity)
	if notional.Cmp(pair.MinNotional) < 0 {
		return ErrBelowNotional
	}
	return checkTradeBounds(ctx, pair, notional)
}

func checkTradeBounds(ctx *tx.Context, pair *Pair, v amount.Amount) error {
	if v.Cmp(pair.MinTradeAmount) < 0 {
		return ErrTradeBounds
	}
	max := pair.MaxTradeAmount
	if !max.IsPositive() {
		max = ctx.Params.MaxTradeAmount
	}
	if v.Cmp(max) > 0 {
		return ErrTradeBounds
	}
	return nil
}

func (p *PlaceOrder) Apply(ctx *tx.Context) error {
	_, err := p.place(ctx)
	return err
}

func (p *PlaceOrder) place(ctx *tx.Context) (*session, error) {
	pair, err := MustGetPair(ctx.Ctx, ctx.Store, p.PairID)
	if err != nil {
		return nil, err
	}
	bk := ctx.Books.Ensure(pair.ID)

	order := &Order{
		PairID:          pair.ID,
		User:            ctx.Sender,
		Type:            p.Type,
		Side:            p.Side,
		Price:           p.Price,
		Quantity:        p.Quantity,
		QuoteOrderQty:   p.QuoteOrderQty,
		FilledQuantity:  amount.Zero(),
		EscrowRemaining: amount.Zero(),
		Status:          StatusOpen,
		TimeInForce:     p.tif(),
		CreatedAt:       ctx.Timestamp,
		ExpiresAt:       p.ExpiresAt,
	}

	// A fill-or-kill order is checked against the book before anything is
	// escrowed, so an unfillable one fails without leaving a trace.
	if order.TimeInForce == TifFOK {
		fillable, _ := simulate(bk, pair, order, ctx.Timestamp)
		if !fillable.Equal(order.Quantity) {
			return nil, ErrNotFillable
		}
	}

	return executeOrder(ctx, pair, bk, order)
}

// executeOrder escrows, matches and disposes one order: the remainder of a
// limit order rests on the book, market and IOC remainders are refunded.
// The returned session carries what the taker received.
func executeOrder(ctx *tx.Context, pair *Pair, bk *book.Book, order *Order) (*session, error) {
	nonce, err := ctx.Ledger.NextOrderNonce(ctx.Ctx, ctx.Sender)
	if err != nil {
		return nil, err
	}
	order.ID = crypto.OrderID(order.User, pair.ID, strconv.FormatUint(nonce, 10))

	escrow := order.Quantity
	if order.Side == book.Buy {
		if order.Type == OrderLimit {
			escrow = order.Price.Mul(order.Quantity)
		} else {
			escrow = order.QuoteOrderQty
		}
	}
	if err := ctx.Journal.Hold(ctx.Ctx, order.User, order.EscrowToken(pair), escrow); err != nil {
		return nil, err
	}
	order.EscrowRemaining = escrow

	ctx.EmitAs(order.User, event.CategoryMarket, "orderPlaced", map[string]any{
		"orderId":       order.ID,
		"pairId":        pair.ID,
		"type":          order.Type,
		"side":          order.Side,
		"price":         order.Price,
		"quantity":      order.Quantity,
		"quoteOrderQty": order.QuoteOrderQty,
		"timeInForce":   order.TimeInForce,
		"escrowed":      escrow,
	})

	sess := newSession(ctx, pair, bk, order)
	if err := sess.match(); err != nil {
		return nil, err
	}

	rests := false
	switch {
	case order.Type == OrderMarket:
		// Market orders never rest.
		if order.FilledQuantity.IsZero() {
			order.Status = StatusRejected
		} else if order.Quantity.IsPositive() && order.Remaining().IsZero() {
			order.Status = StatusFilled
		} else {
			order.Status = StatusPartiallyFilled
		}
		if err := refundResidual(ctx, pair, order); err != nil {
			return nil, err
		}
	case order.Status == StatusFilled:
	case order.TimeInForce == TifIOC:
		if order.FilledQuantity.IsZero() {
			order.Status = StatusCancelled
		}
		if err := refundResidual(ctx, pair, order); err != nil {
			return nil, err
		}
	default:
		rests = true
	}

	if err := PutOrder(ctx.Ctx, ctx.Store, order); err != nil {
		return nil, err
	}
	if rests {
		bk.Add(order.Side, book.Entry{
			OrderID:   order.ID,
			Account:   order.User,
			Price:     order.Price,
			Remaining: order.Remaining(),
			ExpiresAt: order.ExpiresAt,
		})
	}
	return sess, nil
}

// refundResidual releases whatever escrow a terminal taker did not spend.
func refundResidual(ctx *tx.Context, pair *Pair, o *Order) error {
	if !o.EscrowRemaining.IsPositive() {
		return nil
	}
	if err := ctx.Journal.Release(ctx.Ctx, o.User, o.EscrowToken(pair), o.EscrowRemaining); err != nil {
		return err
	}
	o.EscrowRemaining = amount.Zero()
	return nil
}

// CancelOrder is MARKET_CANCEL_ORDER. Only the owner cancels, and only
// while the order still rests; the unfilled escrow comes back exactly.
type CancelOrder struct {
	OrderID string `json:"orderId"`
}

func (c *CancelOrder) TxType() tx.Type { return tx.TypeMarketCancelOrder }

func (c *CancelOrder) Validate(ctx *tx.Context) error {
	o, err := MustGetOrder(ctx.Ctx, ctx.Store, c.OrderID)
	if err != nil {
		return err
	}
	if o.User != ctx.Sender {
		return ErrNotOrderOwner
	}
	if !o.Resting() {
		return ErrOrderClosed
	}
	return nil
}

func (c *CancelOrder) Apply(ctx *tx.Context) error {
	o, err := MustGetOrder(ctx.Ctx, ctx.Store, c.OrderID)
	if err != nil {
		return err
	}
	pair, err := MustGetPair(ctx.Ctx, ctx.Store, o.PairID)
	if err != nil {
		return err
	}
	ctx.Books.Ensure(o.PairID).Remove(o.ID)

	released := o.EscrowRemaining
	if released.IsPositive() {
		if err := ctx.Journal.Release(ctx.Ctx, o.User, o.EscrowToken(pair), released); err != nil {
			return err
		}
	}
	o.EscrowRemaining = amount.Zero()
	o.Status = StatusCancelled
	if err := PutOrder(ctx.Ctx, ctx.Store, o); err != nil {
		return err
	}

	ctx.Emit(event.CategoryMarket, "orderCancelled", map[string]any{
		"orderId":  o.ID,
		"pairId":   o.PairID,
		"released": released,
	})
	return nil
}
