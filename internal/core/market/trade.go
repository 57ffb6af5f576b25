package market

import (
	"errors"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/pool"
	"github.com/echelon-net/echelond/internal/core/token"
	"github.com/echelon-net/echelond/internal/core/tx"
)

// Route venues the hybrid trade can dispatch to.
const (
	VenueAMM       = "AMM"
	VenueOrderbook = "ORDERBOOK"
)

var (
	ErrBadAmountIn     = errors.New("amountIn must be positive")
	ErrBoundRequired   = errors.New("exactly one of price or a slippage bound is required")
	ErrBadMinOut       = errors.New("minAmountOut cannot be negative")
	ErrBadSlippagePct  = errors.New("maxSlippagePercent must be between 1 and 100")
	ErrRoutesWithPrice = errors.New("explicit routes cannot be combined with price")
	ErrBadVenue        = errors.New("route type must be AMM or ORDERBOOK")
	ErrVenueRef        = errors.New("route reference does not match its venue")
	ErrBadAllocation   = errors.New("route allocations must be positive and sum to 100")
	ErrDuplicateVenue  = errors.New("at most one route per venue")
	ErrWrongPool       = errors.New("pool does not trade this token pair")
	ErrWrongPair       = errors.New("pair does not match tokenIn and tokenOut")
	ErrNoLiquidity     = errors.New("no liquidity for trade")
	ErrDustTrade       = errors.New("amountIn too small to trade")
	ErrMinAmountOut    = errors.New("expected output below minAmountOut")
	ErrSlippageLimit   = errors.New("slippage exceeds maxSlippagePercent")
)

func init() {
	tx.Register(tx.TypeMarketTrade, func() tx.Operation { return &HybridTrade{} })
}

// TradeRoute is one explicit leg of a hybrid trade. Allocation is a whole
// percentage of amountIn; poolId pins an AMM leg to a specific pool and
// pairId pins an orderbook leg to a specific pair.
type TradeRoute struct {
	Type       string `json:"type"`
	Allocation int    `json:"allocation"`
	PoolID     string `json:"poolId,omitempty"`
	PairID     string `json:"pairId,omitempty"`
}

// HybridTrade is MARKET_TRADE: swap amountIn of tokenIn for tokenOut across
// the AMM, the orderbook, or both. With price set the trade becomes a plain
// limit order on the matching pair; otherwise the output is protected by
// minAmountOut, maxSlippagePercent, or both.
type HybridTrade struct {
	TokenIn            string        `json:"tokenIn"`
	TokenOut           string        `json:"tokenOut"`
	AmountIn           amount.Amount `json:"amountIn"`
	Price              amount.Amount `json:"price,omitempty"`
	MinAmountOut       amount.Amount `json:"minAmountOut,omitempty"`
	MaxSlippagePercent int           `json:"maxSlippagePercent,omitempty"`
	Routes             []TradeRoute  `json:"routes,omitempty"`
}

func (h *HybridTrade) TxType() tx.Type { return tx.TypeMarketTrade }

func (h *HybridTrade) Validate(ctx *tx.Context) error {
	if !h.AmountIn.IsPositive() {
		return ErrBadAmountIn
	}
	if h.TokenIn == h.TokenOut {
		return ErrSameToken
	}
	if _, err := token.MustGet(ctx.Ctx, ctx.Store, h.TokenIn); err != nil {
		return err
	}
	if _, err := token.MustGet(ctx.Ctx, ctx.Store, h.TokenOut); err != nil {
		return err
	}
	if h.Price.IsNegative() {
		return ErrBadPrice
	}
	if h.MinAmountOut.IsNegative() {
		return ErrBadMinOut
	}
	if h.MaxSlippagePercent < 0 || h.MaxSlippagePercent > 100 {
		return ErrBadSlippagePct
	}
	hasBound := h.MinAmountOut.IsPositive() || h.MaxSlippagePercent > 0
	if h.Price.IsPositive() == hasBound {
		return ErrBoundRequired
	}
	if h.Price.IsPositive() && len(h.Routes) > 0 {
		return ErrRoutesWithPrice
	}
	return h.validateRoutes()
}

func (h *HybridTrade) validateRoutes() error {
	sum := 0
	seen := map[string]bool{}
	for _, r := range h.Routes {
		switch r.Type {
		case VenueAMM:
			if r.PairID != "" {
				return ErrVenueRef
			}
		case VenueOrderbook:
			if r.PoolID != "" {
				return ErrVenueRef
			}
		default:
			return ErrBadVenue
		}
		// Legs are simulated against the pre-trade state, so a second leg
		// on the same venue would see liquidity the first one consumes.
		if seen[r.Type] {
			return ErrDuplicateVenue
		}
		seen[r.Type] = true
		if r.Allocation <= 0 {
			return ErrBadAllocation
		}
		sum += r.Allocation
	}
	if len(h.Routes) > 0 && sum != 100 {
		return ErrBadAllocation
	}
	return nil
}

func (h *HybridTrade) Apply(ctx *tx.Context) error {
	if h.Price.IsPositive() {
		return h.applyLimit(ctx)
	}
	return h.applyRouted(ctx)
}

// applyLimit routes the whole trade to the orderbook as a limit order at
// the caller's price. Buying converts amountIn (quote) into a lot-aligned
// base quantity; any unfilled remainder rests on the book as usual.
func (h *HybridTrade) applyLimit(ctx *tx.Context) error {
	pair, buyingBase, err := FindPair(ctx.Ctx, ctx.Store, h.TokenIn, h.TokenOut)
	if err != nil {
		return err
	}
	side := book.Sell
	quantity := alignDown(h.AmountIn, pair.LotSize)
	if buyingBase {
		side = book.Buy
		quantity = alignDown(h.AmountIn.Div(h.Price), pair.LotSize)
	}
	if !quantity.IsPositive() {
		return ErrDustTrade
	}

	po := &PlaceOrder{PairID: pair.ID, Type: OrderLimit, Side: side, Price: h.Price, Quantity: quantity}
	if err := po.Validate(ctx); err != nil {
		return err
	}
	sess, err := po.place(ctx)
	if err != nil {
		return err
	}

	out := sess.quoteOut
	if buyingBase {
		out = sess.baseOut
	}
	ctx.Emit(event.CategoryMarket, "tradeExecuted", map[string]any{
		"tokenIn":   h.TokenIn,
		"tokenOut":  h.TokenOut,
		"amountIn":  h.AmountIn,
		"amountOut": out,
		"price":     h.Price,
		"pairId":    pair.ID,
		"orderId":   sess.taker.ID,
	})
	return nil
}

// tradeLeg is one resolved slice of a routed trade, carrying its simulated
// output and the depth-free spot output used as the slippage baseline.
type tradeLeg struct {
	venue      string
	allocation int
	amountIn   amount.Amount

	route *pool.Route // AMM

	pair       *Pair // orderbook
	buyingBase bool
	quantity   amount.Amount // lot-aligned base quantity for sells

	expected amount.Amount
	spot     amount.Amount
}

// applyRouted simulates every leg against the current state, enforces the
// slippage bound on the combined expected output, and only then executes.
// Execution inside one transaction sees exactly the state the simulation
// saw, so the enforced figure is the settled figure.
func (h *HybridTrade) applyRouted(ctx *tx.Context) error {
	legs, err := h.resolveLegs(ctx)
	if err != nil {
		return err
	}

	totalExpected := amount.Zero()
	totalSpot := amount.Zero()
	for _, leg := range legs {
		totalExpected = totalExpected.Add(leg.expected)
		totalSpot = totalSpot.Add(leg.spot)
	}
	if !totalExpected.IsPositive() {
		return ErrNoLiquidity
	}
	if h.MinAmountOut.IsPositive() && totalExpected.Cmp(h.MinAmountOut) < 0 {
		return ErrMinAmountOut
	}
	if h.MaxSlippagePercent > 0 {
		floor := totalSpot.MulDiv(amount.New(int64(100-h.MaxSlippagePercent)), amount.New(100))
		if totalExpected.Cmp(floor) < 0 {
			return ErrSlippageLimit
		}
	}

	// Every leg debits or escrows its slice of amountIn from the spendable
	// balance, so one upfront check keeps later legs from failing midway.
	acct, found, err := ctx.Ledger.Get(ctx.Ctx, ctx.Sender)
	if err != nil {
		return err
	}
	if !found || acct.Balance(h.TokenIn).Cmp(h.AmountIn) < 0 {
		return account.ErrInsufficientBalance
	}

	totalOut := amount.Zero()
	report := make([]map[string]any, 0, len(legs))
	for _, leg := range legs {
		var out amount.Amount
		entry := map[string]any{
			"type":       leg.venue,
			"allocation": leg.allocation,
			"amountIn":   leg.amountIn,
		}
		switch leg.venue {
		case VenueAMM:
			out, err = pool.ExecuteRoute(ctx, leg.route)
			if err != nil {
				return err
			}
			ids := make([]string, len(leg.route.Hops))
			for i, hop := range leg.route.Hops {
				ids[i] = hop.PoolID
			}
			entry["poolIds"] = ids
		case VenueOrderbook:
			order := &Order{
				PairID:          leg.pair.ID,
				User:            ctx.Sender,
				Type:            OrderMarket,
				Side:            book.Sell,
				Quantity:        leg.quantity,
				FilledQuantity:  amount.Zero(),
				EscrowRemaining: amount.Zero(),
				Status:          StatusOpen,
				TimeInForce:     TifGTC,
				CreatedAt:       ctx.Timestamp,
			}
			if leg.buyingBase {
				order.Side = book.Buy
				order.Quantity = amount.Zero()
				order.QuoteOrderQty = leg.amountIn
			}
			sess, err := executeOrder(ctx, leg.pair, ctx.Books.Ensure(leg.pair.ID), order)
			if err != nil {
				return err
			}
			out = sess.quoteOut
			if leg.buyingBase {
				out = sess.baseOut
			}
			entry["pairId"] = leg.pair.ID
			entry["orderId"] = order.ID
		}
		entry["amountOut"] = out
		report = append(report, entry)
		totalOut = totalOut.Add(out)
	}

	ctx.Emit(event.CategoryMarket, "tradeExecuted", map[string]any{
		"tokenIn":   h.TokenIn,
		"tokenOut":  h.TokenOut,
		"amountIn":  h.AmountIn,
		"amountOut": totalOut,
		"legs":      report,
	})
	return nil
}

// resolveLegs turns explicit routes into simulated legs, or auto-routes the
// full amount to whichever single venue simulates the better output.
func (h *HybridTrade) resolveLegs(ctx *tx.Context) ([]*tradeLeg, error) {
	if len(h.Routes) > 0 {
		legs := make([]*tradeLeg, len(h.Routes))
		rest := h.AmountIn
		for i, r := range h.Routes {
			amt := h.AmountIn.MulDiv(amount.New(int64(r.Allocation)), amount.New(100))
			if i == len(h.Routes)-1 {
				// Integer splits round down, so the last leg absorbs the
				// remainder and the legs conserve amountIn exactly.
				amt = rest
			}
			rest = rest.Sub(amt)
			legs[i] = &tradeLeg{venue: r.Type, allocation: r.Allocation, amountIn: amt}
			if err := h.simulateLeg(ctx, legs[i], r.PoolID, r.PairID); err != nil {
				return nil, err
			}
			if !legs[i].expected.IsPositive() {
				return nil, ErrNoLiquidity
			}
		}
		return legs, nil
	}

	amm := &tradeLeg{venue: VenueAMM, allocation: 100, amountIn: h.AmountIn}
	ob := &tradeLeg{venue: VenueOrderbook, allocation: 100, amountIn: h.AmountIn}
	if err := h.simulateLeg(ctx, amm, "", ""); err != nil {
		if !routable(err) {
			return nil, err
		}
		amm.expected = amount.Zero()
	}
	if err := h.simulateLeg(ctx, ob, "", ""); err != nil {
		if !routable(err) {
			return nil, err
		}
		ob.expected = amount.Zero()
	}
	best := amm
	if ob.expected.Cmp(amm.expected) > 0 {
		best = ob
	}
	if !best.expected.IsPositive() {
		return nil, ErrNoLiquidity
	}
	return []*tradeLeg{best}, nil
}

// routable tells liquidity gaps apart from genuine failures: the former
// just disqualify a candidate venue during auto-routing.
func routable(err error) bool {
	for _, candidate := range []error{
		pool.ErrNoRoute, pool.ErrEmptyReserves, pool.ErrDustSwap, pool.ErrNotFound,
		ErrPairNotFound, ErrPairNotTrading, ErrDustTrade, ErrBelowNotional, ErrTradeBounds,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

func (h *HybridTrade) simulateLeg(ctx *tx.Context, leg *tradeLeg, poolID, pairID string) error {
	if leg.venue == VenueAMM {
		return h.simulateAMM(ctx, leg, poolID)
	}
	return h.simulateBook(ctx, leg, pairID)
}

func (h *HybridTrade) simulateAMM(ctx *tx.Context, leg *tradeLeg, poolID string) error {
	if poolID != "" {
		p, err := pool.MustGet(ctx.Ctx, ctx.Store, poolID)
		if err != nil {
			return err
		}
		rIn, rOut, outToken, ok := p.Reserves(h.TokenIn)
		if !ok || outToken != h.TokenOut {
			return ErrWrongPool
		}
		out, err := pool.SwapOutput(rIn, rOut, leg.amountIn)
		if err != nil {
			return err
		}
		leg.route = &pool.Route{
			Hops: []pool.Hop{{
				PoolID:    p.ID,
				TokenIn:   h.TokenIn,
				TokenOut:  h.TokenOut,
				AmountIn:  leg.amountIn,
				AmountOut: out,
			}},
			AmountOut: out,
		}
	} else {
		route, err := pool.BestRoute(ctx.Ctx, ctx.Store, h.TokenIn, h.TokenOut, leg.amountIn)
		if err != nil {
			return err
		}
		leg.route = route
	}
	leg.expected = leg.route.AmountOut

	// Spot baseline: the route's output at current marginal prices with no
	// fee and no depth impact, so the slippage bound covers both.
	spot := leg.amountIn
	for _, hop := range leg.route.Hops {
		p, err := pool.MustGet(ctx.Ctx, ctx.Store, hop.PoolID)
		if err != nil {
			return err
		}
		rIn, rOut, _, ok := p.Reserves(hop.TokenIn)
		if !ok || rIn.IsZero() {
			return pool.ErrNoRoute
		}
		spot = spot.MulDiv(rOut, rIn)
	}
	leg.spot = spot
	return nil
}

func (h *HybridTrade) simulateBook(ctx *tx.Context, leg *tradeLeg, pairID string) error {
	var (
		pair       *Pair
		buyingBase bool
		err        error
	)
	if pairID != "" {
		pair, err = MustGetPair(ctx.Ctx, ctx.Store, pairID)
		if err != nil {
			return err
		}
		switch {
		case pair.Base == h.TokenOut && pair.Quote == h.TokenIn:
			buyingBase = true
		case pair.Base == h.TokenIn && pair.Quote == h.TokenOut:
		default:
			return ErrWrongPair
		}
	} else {
		pair, buyingBase, err = FindPair(ctx.Ctx, ctx.Store, h.TokenIn, h.TokenOut)
		if err != nil {
			return err
		}
	}

	po := &PlaceOrder{PairID: pair.ID, Type: OrderMarket}
	if buyingBase {
		po.Side = book.Buy
		po.QuoteOrderQty = leg.amountIn
	} else {
		po.Side = book.Sell
		po.Quantity = alignDown(leg.amountIn, pair.LotSize)
		if !po.Quantity.IsPositive() {
			return ErrDustTrade
		}
	}
	if err := po.Validate(ctx); err != nil {
		return err
	}

	probe := &Order{
		PairID:         pair.ID,
		User:           ctx.Sender,
		Type:           OrderMarket,
		Side:           po.Side,
		Quantity:       po.Quantity,
		QuoteOrderQty:  po.QuoteOrderQty,
		FilledQuantity: amount.Zero(),
	}
	bk := ctx.Books.Ensure(pair.ID)
	baseQty, quoteTotal := simulate(bk, pair, probe, ctx.Timestamp)

	leg.pair = pair
	leg.buyingBase = buyingBase
	leg.quantity = po.Quantity
	leg.expected = quoteTotal
	if buyingBase {
		leg.expected = baseQty
	}

	best, ok := bestLive(bk, po.Side.Opposite(), ctx.Timestamp)
	if !ok {
		leg.spot = amount.Zero()
		return nil
	}
	if buyingBase {
		leg.spot = leg.amountIn.Div(best)
	} else {
		leg.spot = leg.quantity.Mul(best)
	}
	return nil
}

// bestLive returns the top-of-book price skipping entries that have expired
// but not yet been swept.
func bestLive(bk *book.Book, side book.Side, now int64) (amount.Amount, bool) {
	var px amount.Amount
	found := false
	bk.Walk(side, func(e book.Entry) bool {
		if e.Expired(now) {
			return true
		}
		px = e.Price
		found = true
		return false
	})
	return px, found
}
