package market

import (
	"context"
	"errors"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/crypto"
	"github.com/echelon-net/echelond/internal/state"
)

var ErrNotFillable = errors.New("order cannot be fully filled")

// Trade is the persisted record of one fill. Its id is deterministic so
// replaying a block reproduces it bit for bit.
type Trade struct {
	ID           string        `json:"id"`
	PairID       string        `json:"pairId"`
	MakerOrderID string        `json:"makerOrderId"`
	TakerOrderID string        `json:"takerOrderId"`
	Buyer        string        `json:"buyer"`
	Seller       string        `json:"seller"`
	Price        amount.Amount `json:"price"`
	Quantity     amount.Amount `json:"quantity"`
	Total        amount.Amount `json:"total"`
	Timestamp    int64         `json:"timestamp"`
}

// GetTrade loads a trade by id.
func GetTrade(ctx context.Context, store *state.Store, id string) (*Trade, bool, error) {
	var t Trade
	found, err := store.Get(ctx, state.CollTrades, id, &t)
	if err != nil || !found {
		return nil, found, err
	}
	return &t, true, nil
}

// session is one taker's trip through the book. The escrow for the taker is
// already held when match runs; every settlement draws on holds whose
// sufficiency the escrow bookkeeping guarantees, so matching cannot fail on
// balances once it has started.
type session struct {
	ctx   *tx.Context
	pair  *Pair
	book  *book.Book
	taker *Order

	quoteLeft amount.Amount // remaining budget of a quote-capped market buy
	quoteOut  amount.Amount // quote received by a selling taker
	baseOut   amount.Amount // base received by a buying taker
}

func newSession(ctx *tx.Context, pair *Pair, bk *book.Book, taker *Order) *session {
	s := &session{ctx: ctx, pair: pair, book: bk, taker: taker}
	if taker.Type == OrderMarket && taker.Side == book.Buy {
		s.quoteLeft = taker.QuoteOrderQty
	}
	return s
}

// capacity reports whether the taker can still fill.
func (s *session) capacity() bool {
	if s.taker.Quantity.IsPositive() {
		return s.taker.Remaining().IsPositive()
	}
	return s.quoteLeft.IsPositive()
}

// crosses reports whether a limit taker's price satisfies the maker's.
func (s *session) crosses(makerPrice amount.Amount) bool {
	if s.taker.Type == OrderMarket {
		return true
	}
	if s.taker.Side == book.Buy {
		return makerPrice.Cmp(s.taker.Price) <= 0
	}
	return makerPrice.Cmp(s.taker.Price) >= 0
}

// fillQuantity computes how much of the maker entry this taker consumes,
// floored to the pair's lot size for quote-capped buys.
func (s *session) fillQuantity(e book.Entry) amount.Amount {
	qty := e.Remaining
	if s.taker.Quantity.IsPositive() {
		qty = amount.Min(qty, s.taker.Remaining())
	} else {
		affordable := alignDown(s.quoteLeft.Div(e.Price), s.pair.LotSize)
		qty = amount.Min(qty, affordable)
	}
	return qty
}

// match walks the opposing side in price-time priority, settling every fill
// at the maker's price, until the taker is exhausted or the book no longer
// crosses.
func (s *session) match() error {
	for s.capacity() {
		entry, ok := s.book.Best(s.taker.Side.Opposite())
		if !ok {
			return nil
		}
		if entry.Expired(s.ctx.Timestamp) {
			if err := s.expire(entry); err != nil {
				return err
			}
			continue
		}
		if !s.crosses(entry.Price) {
			return nil
		}
		qty := s.fillQuantity(entry)
		if qty.IsZero() {
			return nil
		}
		if err := s.settle(entry, qty); err != nil {
			return err
		}
	}
	return nil
}

// settle executes one fill: quote moves from the buyer's hold to the
// seller, base from the seller's hold to the buyer, and a limit buyer
// taking below its own price gets the difference back immediately.
func (s *session) settle(entry book.Entry, qty amount.Amount) error {
	maker, err := MustGetOrder(s.ctx.Ctx, s.ctx.Store, entry.OrderID)
	if err != nil {
		return err
	}
	price := entry.Price
	total := price.Mul(qty)

	buyer, seller := s.taker, maker
	if s.taker.Side == book.Sell {
		buyer, seller = maker, s.taker
	}

	if err := s.ctx.Journal.TransferHold(s.ctx.Ctx, buyer.User, s.pair.Quote, total, seller.User); err != nil {
		return err
	}
	if err := s.ctx.Journal.TransferHold(s.ctx.Ctx, seller.User, s.pair.Base, qty, buyer.User); err != nil {
		return err
	}
	buyer.EscrowRemaining = buyer.EscrowRemaining.Sub(total)
	seller.EscrowRemaining = seller.EscrowRemaining.Sub(qty)

	// Price improvement: a limit buyer escrowed at its own price but pays
	// the maker's, so the difference per unit comes straight back.
	if buyer == s.taker && s.taker.Type == OrderLimit && s.taker.Price.Cmp(price) > 0 {
		diff := s.taker.Price.Sub(price).Mul(qty)
		if err := s.ctx.Journal.Release(s.ctx.Ctx, buyer.User, s.pair.Quote, diff); err != nil {
			return err
		}
		buyer.EscrowRemaining = buyer.EscrowRemaining.Sub(diff)
	}

	for _, o := range []*Order{maker, s.taker} {
		o.FilledQuantity = o.FilledQuantity.Add(qty)
		if o.Quantity.IsPositive() && o.Remaining().IsZero() {
			o.Status = StatusFilled
		} else {
			o.Status = StatusPartiallyFilled
		}
	}
	if err := PutOrder(s.ctx.Ctx, s.ctx.Store, maker); err != nil {
		return err
	}
	s.book.Reduce(maker.ID, maker.Remaining())

	if s.taker.Side == book.Buy {
		s.baseOut = s.baseOut.Add(qty)
		if s.taker.Type == OrderMarket {
			s.quoteLeft = s.quoteLeft.Sub(total)
		}
	} else {
		s.quoteOut = s.quoteOut.Add(total)
	}

	trade := &Trade{
		ID:           crypto.TradeID(s.pair.ID, maker.ID, s.taker.ID, qty.String(), price.String()),
		PairID:       s.pair.ID,
		MakerOrderID: maker.ID,
		TakerOrderID: s.taker.ID,
		Buyer:        buyer.User,
		Seller:       seller.User,
		Price:        price,
		Quantity:     qty,
		Total:        total,
		Timestamp:    s.ctx.Timestamp,
	}
	if err := s.ctx.Store.Put(s.ctx.Ctx, state.CollTrades, trade.ID, trade); err != nil {
		return err
	}
	s.ctx.Emit(event.CategoryMarket, "trade", map[string]any{
		"tradeId":  trade.ID,
		"pairId":   trade.PairID,
		"makerId":  maker.ID,
		"takerId":  s.taker.ID,
		"buyer":    trade.Buyer,
		"seller":   trade.Seller,
		"price":    price,
		"quantity": qty,
		"total":    total,
	})
	return nil
}

// expire lazily retires a maker whose expiry passed: off the book, escrow
// released, terminal status.
func (s *session) expire(entry book.Entry) error {
	s.book.Remove(entry.OrderID)
	o, err := MustGetOrder(s.ctx.Ctx, s.ctx.Store, entry.OrderID)
	if err != nil {
		return err
	}
	if !o.Resting() {
		return nil
	}
	o.Status = StatusExpired
	if o.EscrowRemaining.IsPositive() {
		if err := s.ctx.Journal.Release(s.ctx.Ctx, o.User, o.EscrowToken(s.pair), o.EscrowRemaining); err != nil {
			return err
		}
		o.EscrowRemaining = amount.Zero()
	}
	if err := PutOrder(s.ctx.Ctx, s.ctx.Store, o); err != nil {
		return err
	}
	s.ctx.EmitAs(o.User, event.CategoryMarket, "orderExpired", map[string]any{
		"orderId": o.ID,
		"pairId":  o.PairID,
	})
	return nil
}

// simulate dry-walks the opposing side without touching anything and
// reports the base quantity and quote total a matching run would settle.
// It mirrors match exactly: expired makers are skipped, fills happen at
// maker price, quote-capped buys floor to the lot size.
func simulate(bk *book.Book, pair *Pair, taker *Order, now int64) (baseQty, quoteTotal amount.Amount) {
	remaining := taker.Remaining()
	quoteLeft := taker.QuoteOrderQty
	byQuantity := taker.Quantity.IsPositive()

	bk.Walk(taker.Side.Opposite(), func(e book.Entry) bool {
		if e.Expired(now) {
			return true
		}
		if taker.Type == OrderLimit {
			if taker.Side == book.Buy && e.Price.Cmp(taker.Price) > 0 {
				return false
			}
			if taker.Side == book.Sell && e.Price.Cmp(taker.Price) < 0 {
				return false
			}
		}
		qty := e.Remaining
		if byQuantity {
			qty = amount.Min(qty, remaining)
		} else {
			qty = amount.Min(qty, alignDown(quoteLeft.Div(e.Price), pair.LotSize))
		}
		if qty.IsZero() {
			return false
		}
		total := e.Price.Mul(qty)
		baseQty = baseQty.Add(qty)
		quoteTotal = quoteTotal.Add(total)
		if byQuantity {
			remaining = remaining.Sub(qty)
			return remaining.IsPositive()
		}
		quoteLeft = quoteLeft.Sub(total)
		return quoteLeft.IsPositive()
	})
	return baseQty, quoteTotal
}

// alignDown floors v to a multiple of step.
func alignDown(v, step amount.Amount) amount.Amount {
	return v.Div(step).Mul(step)
}
