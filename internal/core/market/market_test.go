package market_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/core/pool"
	"github.com/echelon-net/echelond/internal/core/tx"
	"github.com/echelon-net/echelond/internal/testutil"
)

// marketEnv boots a chain with the USD token (6 decimals) and an ECH-USD
// pair using default tick, lot and notional of 1.
func marketEnv(t *testing.T) *testutil.Env {
	t.Helper()
	env := testutil.NewEnv(t)
	env.CreateToken("echelon", "USD", 6, "0")
	_, err := market.CreatePair(env.Ctx(), env.Store, "ECH", "USD", market.PairConfig{}, env.Now)
	require.NoError(t, err)
	return env
}

// seedVenues adds a 1:1 ECH/USD pool with a million raw units per side next
// to the ECH-USD pair, so hybrid trades have two venues to choose from.
func seedVenues(t *testing.T) *testutil.Env {
	t.Helper()
	env := marketEnv(t)
	env.Fund("lp", "ECH", "1000000")
	env.Fund("lp", "USD", "1000000")
	env.MustExecute(tx.TypePoolCreate, "lp", `{"tokenA":"ECH","tokenB":"USD"}`)
	env.MustExecute(tx.TypePoolAddLiquidity, "lp",
		`{"poolId":"ECH_USD","amountA":"1000000","amountB":"1000000"}`)
	return env
}

func findEvent(t *testing.T, rcpt *tx.Receipt, action string) event.Event {
	t.Helper()
	for _, ev := range rcpt.Events {
		if ev.Action == action {
			return ev
		}
	}
	t.Fatalf("no %q event in receipt", action)
	return event.Event{}
}

func placedID(t *testing.T, rcpt *tx.Receipt) string {
	t.Helper()
	id, ok := findEvent(t, rcpt, "orderPlaced").Data["orderId"].(string)
	require.True(t, ok)
	return id
}

func getOrder(t *testing.T, env *testutil.Env, id string) *market.Order {
	t.Helper()
	o, err := market.MustGetOrder(env.Ctx(), env.Store, id)
	require.NoError(t, err)
	return o
}

func TestLimitMatchSettlesAtMakerPrice(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "1000")
	env.Fund("bob", "USD", "2000")

	aRcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`)
	assert.Equal(t, "990", env.Balance("alice", "ECH"))
	assert.Equal(t, "10", env.Held("alice", "ECH"))

	bRcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"105","quantity":"10"}`)

	ev := findEvent(t, bRcpt, "trade")
	assert.Equal(t, "100", ev.Data["price"].(amount.Amount).String(), "trade settles at the maker price")
	assert.Equal(t, "10", ev.Data["quantity"].(amount.Amount).String())
	assert.Equal(t, "1000", ev.Data["total"].(amount.Amount).String())
	assert.Equal(t, "alice", ev.Data["seller"])
	assert.Equal(t, "bob", ev.Data["buyer"])

	// Bob escrowed 10*105 = 1050 but paid 10*100; the 50 comes back with
	// the fill, not at cancellation.
	assert.Equal(t, "1000", env.Balance("bob", "USD"))
	assert.Equal(t, "0", env.Held("bob", "USD"))
	assert.Equal(t, "10", env.Balance("bob", "ECH"))
	assert.Equal(t, "1000", env.Balance("alice", "USD"))
	assert.Equal(t, "0", env.Held("alice", "ECH"))

	maker := getOrder(t, env, placedID(t, aRcpt))
	taker := getOrder(t, env, placedID(t, bRcpt))
	assert.Equal(t, market.StatusFilled, maker.Status)
	assert.Equal(t, market.StatusFilled, taker.Status)
	assert.True(t, maker.EscrowRemaining.IsZero())
	assert.True(t, taker.EscrowRemaining.IsZero())

	trade, found, err := market.GetTrade(env.Ctx(), env.Store, ev.Data["tradeId"].(string))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, maker.ID, trade.MakerOrderID)
	assert.Equal(t, taker.ID, trade.TakerOrderID)
}

func TestPriceTimePriority(t *testing.T) {
	env := marketEnv(t)
	for _, seller := range []string{"alice", "dave", "erin"} {
		env.Fund(seller, "ECH", "100")
	}
	env.Fund("bob", "USD", "10000")

	env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"5"}`)
	env.MustExecute(tx.TypeMarketPlaceOrder, "dave",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"5"}`)
	env.MustExecute(tx.TypeMarketPlaceOrder, "erin",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"99","quantity":"5"}`)

	rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"MARKET","side":"BUY","quoteOrderQty":"10000"}`)

	var sellers []string
	for _, ev := range rcpt.Events {
		if ev.Action == "trade" {
			sellers = append(sellers, ev.Data["seller"].(string))
		}
	}
	assert.Equal(t, []string{"erin", "alice", "dave"}, sellers,
		"best price first, then arrival order within a level")

	// 5*99 + 5*100 + 5*100 spent, the rest of the budget refunded.
	assert.Equal(t, "15", env.Balance("bob", "ECH"))
	assert.Equal(t, "8505", env.Balance("bob", "USD"))
	assert.Equal(t, "0", env.Held("bob", "USD"))
}

func TestPartialFillRestsRemainder(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "100")
	env.Fund("bob", "USD", "1000")
	env.Fund("carol", "USD", "1000")

	aRcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`)
	makerID := placedID(t, aRcpt)

	env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"4"}`)

	maker := getOrder(t, env, makerID)
	assert.Equal(t, market.StatusPartiallyFilled, maker.Status)
	assert.Equal(t, "6", maker.Remaining().String())
	assert.Equal(t, "6", env.Held("alice", "ECH"))

	best, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "6", best.Remaining.String())

	env.MustExecute(tx.TypeMarketPlaceOrder, "carol",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"6"}`)

	maker = getOrder(t, env, makerID)
	assert.Equal(t, market.StatusFilled, maker.Status)
	assert.Equal(t, "0", env.Held("alice", "ECH"))
	assert.Equal(t, "1000", env.Balance("alice", "USD"))
}

func TestMarketBuyDispositions(t *testing.T) {
	t.Run("empty book rejects but the transaction succeeds", func(t *testing.T) {
		env := marketEnv(t)
		env.Fund("bob", "USD", "2000")

		rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
			`{"pairId":"ECH-USD","type":"MARKET","side":"BUY","quoteOrderQty":"500"}`)

		o := getOrder(t, env, placedID(t, rcpt))
		assert.Equal(t, market.StatusRejected, o.Status)
		assert.Equal(t, "2000", env.Balance("bob", "USD"))
		assert.Equal(t, "0", env.Held("bob", "USD"))
	})

	t.Run("partial fill refunds the unspent budget", func(t *testing.T) {
		env := marketEnv(t)
		env.Fund("alice", "ECH", "100")
		env.Fund("bob", "USD", "2000")

		env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
			`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"2"}`)
		rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
			`{"pairId":"ECH-USD","type":"MARKET","side":"BUY","quoteOrderQty":"500"}`)

		o := getOrder(t, env, placedID(t, rcpt))
		assert.Equal(t, market.StatusPartiallyFilled, o.Status)
		assert.Equal(t, "2", env.Balance("bob", "ECH"))
		assert.Equal(t, "1800", env.Balance("bob", "USD"))
		assert.Equal(t, "0", env.Held("bob", "USD"))
	})
}

func TestMarketSellDispositions(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "100")
	env.Fund("bob", "USD", "1000")

	env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"5"}`)

	// 8 on offer against a 5-deep bid: 5 fill, 3 come back.
	rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"MARKET","side":"SELL","quantity":"8"}`)

	o := getOrder(t, env, placedID(t, rcpt))
	assert.Equal(t, market.StatusPartiallyFilled, o.Status)
	assert.Equal(t, "500", env.Balance("alice", "USD"))
	assert.Equal(t, "95", env.Balance("alice", "ECH"))
	assert.Equal(t, "0", env.Held("alice", "ECH"))

	// A fully fillable market sell ends FILLED.
	env.Fund("carol", "USD", "1000")
	env.MustExecute(tx.TypeMarketPlaceOrder, "carol",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"5"}`)
	rcpt = env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"MARKET","side":"SELL","quantity":"5"}`)
	assert.Equal(t, market.StatusFilled, getOrder(t, env, placedID(t, rcpt)).Status)
}

func TestImmediateOrCancel(t *testing.T) {
	t.Run("partial fill cancels the remainder", func(t *testing.T) {
		env := marketEnv(t)
		env.Fund("alice", "ECH", "100")
		env.Fund("bob", "USD", "2000")

		env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
			`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"5"}`)
		rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
			`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"10","timeInForce":"IOC"}`)

		o := getOrder(t, env, placedID(t, rcpt))
		assert.Equal(t, market.StatusPartiallyFilled, o.Status)
		assert.Equal(t, "5", env.Balance("bob", "ECH"))
		assert.Equal(t, "1500", env.Balance("bob", "USD"))
		assert.Equal(t, "0", env.Held("bob", "USD"))

		_, ok := env.Books.Ensure("ECH-USD").Best(book.Buy)
		assert.False(t, ok, "IOC remainder must not rest")
	})

	t.Run("no fill cancels outright", func(t *testing.T) {
		env := marketEnv(t)
		env.Fund("bob", "USD", "2000")

		rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
			`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"5","timeInForce":"IOC"}`)

		o := getOrder(t, env, placedID(t, rcpt))
		assert.Equal(t, market.StatusCancelled, o.Status)
		assert.Equal(t, "2000", env.Balance("bob", "USD"))
	})
}

func TestFillOrKill(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "100")
	env.Fund("bob", "USD", "2000")

	env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"5"}`)

	rcpt := env.Execute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"10","timeInForce":"FOK"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process MARKET_PLACE_ORDER")
	assert.Contains(t, rcpt.Error, "order cannot be fully filled")

	// Nothing moved and the maker still rests untouched.
	assert.Equal(t, "2000", env.Balance("bob", "USD"))
	assert.Equal(t, "0", env.Held("bob", "USD"))
	best, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "5", best.Remaining.String())

	rcpt = env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"5","timeInForce":"FOK"}`)
	assert.Equal(t, market.StatusFilled, getOrder(t, env, placedID(t, rcpt)).Status)

	rcpt = env.Execute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"MARKET","side":"BUY","quoteOrderQty":"100","timeInForce":"FOK"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "invalid MARKET_PLACE_ORDER")
	assert.Contains(t, rcpt.Error, "FOK needs a base quantity")
}

func TestLazyExpiry(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "1000")
	env.Fund("bob", "USD", "2000")

	aRcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "alice", fmt.Sprintf(
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"5","expiresAt":%d}`,
		env.Now+10))
	makerID := placedID(t, aRcpt)
	assert.Equal(t, "5", env.Held("alice", "ECH"))

	env.AdvanceBlocks(10)

	bRcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"5"}`)

	expired := findEvent(t, bRcpt, "orderExpired")
	assert.Equal(t, "alice", expired.Actor)
	assert.Equal(t, makerID, expired.Data["orderId"])
	for _, ev := range bRcpt.Events {
		assert.NotEqual(t, "trade", ev.Action, "expired maker must not fill")
	}

	assert.Equal(t, market.StatusExpired, getOrder(t, env, makerID).Status)
	assert.Equal(t, "1000", env.Balance("alice", "ECH"))
	assert.Equal(t, "0", env.Held("alice", "ECH"))

	// The buy found no live counterparty and rests.
	assert.Equal(t, market.StatusOpen, getOrder(t, env, placedID(t, bRcpt)).Status)
	assert.Equal(t, "500", env.Held("bob", "USD"))
}

func TestCancelRestoresEscrow(t *testing.T) {
	env := marketEnv(t)
	env.Fund("carol", "ECH", "500")

	rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "carol",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"200","quantity":"5"}`)
	orderID := placedID(t, rcpt)
	assert.Equal(t, "495", env.Balance("carol", "ECH"))
	assert.Equal(t, "5", env.Held("carol", "ECH"))

	cRcpt := env.MustExecute(tx.TypeMarketCancelOrder, "carol",
		fmt.Sprintf(`{"orderId":%q}`, orderID))

	assert.Equal(t, "500", env.Balance("carol", "ECH"))
	assert.Equal(t, "0", env.Held("carol", "ECH"))
	assert.Equal(t, market.StatusCancelled, getOrder(t, env, orderID).Status)

	ev := findEvent(t, cRcpt, "orderCancelled")
	assert.Equal(t, "5", ev.Data["released"].(amount.Amount).String())

	_, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
	assert.False(t, ok)
}

func TestCancelRejections(t *testing.T) {
	env := marketEnv(t)
	env.Fund("carol", "ECH", "500")
	env.Fund("bob", "USD", "2000")

	rcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "carol",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"5"}`)
	orderID := placedID(t, rcpt)

	r := env.Execute(tx.TypeMarketCancelOrder, "bob", fmt.Sprintf(`{"orderId":%q}`, orderID))
	require.False(t, r.OK)
	assert.Contains(t, r.Error, "invalid MARKET_CANCEL_ORDER")
	assert.Contains(t, r.Error, "not the order owner")

	r = env.Execute(tx.TypeMarketCancelOrder, "carol", `{"orderId":"missing"}`)
	require.False(t, r.OK)
	assert.Contains(t, r.Error, "order not found")

	// Fill it, then cancelling must fail as closed.
	env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"5"}`)
	r = env.Execute(tx.TypeMarketCancelOrder, "carol", fmt.Sprintf(`{"orderId":%q}`, orderID))
	require.False(t, r.OK)
	assert.Contains(t, r.Error, "order is not open")
}

func TestPlaceOrderRejections(t *testing.T) {
	env := marketEnv(t)
	env.CreateToken("echelon", "GLD", 8, "0")
	_, err := market.CreatePair(env.Ctx(), env.Store, "GLD", "USD", market.PairConfig{
		TickSize:       amount.New(10),
		LotSize:        amount.New(10),
		MinNotional:    amount.New(1000),
		MaxTradeAmount: amount.New(100000),
	}, env.Now)
	require.NoError(t, err)
	env.CreateToken("echelon", "SIL", 8, "0")
	_, err = market.CreatePair(env.Ctx(), env.Store, "SIL", "USD", market.PairConfig{
		Status: market.PairHalted,
	}, env.Now)
	require.NoError(t, err)
	env.Fund("alice", "GLD", "1000000")
	env.Fund("alice", "USD", "100000000")

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"unknown pair",
			`{"pairId":"NOPE-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`,
			"trading pair not found"},
		{"halted pair",
			`{"pairId":"SIL-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`,
			"pair is not trading"},
		{"bad type",
			`{"pairId":"GLD-USD","type":"STOP","side":"SELL","price":"100","quantity":"10"}`,
			"order type must be LIMIT or MARKET"},
		{"bad side",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"HODL","price":"100","quantity":"10"}`,
			"side must be BUY or SELL"},
		{"bad tif",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10","timeInForce":"GTD"}`,
			"timeInForce must be GTC, IOC or FOK"},
		{"market order with price",
			`{"pairId":"GLD-USD","type":"MARKET","side":"SELL","price":"100","quantity":"10"}`,
			"price"},
		{"market buy with quantity",
			`{"pairId":"GLD-USD","type":"MARKET","side":"BUY","quantity":"10"}`,
			"quote-denominated"},
		{"limit with quoteOrderQty",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"BUY","price":"100","quantity":"10","quoteOrderQty":"100"}`,
			"only for market buys"},
		{"unaligned quantity",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"15"}`,
			"lot-aligned"},
		{"unaligned price",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"105","quantity":"10"}`,
			"tick-aligned"},
		{"below notional",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"10","quantity":"10"}`,
			"notional below pair minimum"},
		{"over trade bounds",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"100000","quantity":"10"}`,
			"outside pair trade bounds"},
		{"past expiry",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10","expiresAt":1}`,
			"expiresAt must be in the future"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcpt := env.Execute(tx.TypeMarketPlaceOrder, "alice", tt.payload)
			require.False(t, rcpt.OK)
			assert.Contains(t, rcpt.Error, "invalid MARKET_PLACE_ORDER")
			assert.Contains(t, rcpt.Error, tt.wantErr)
		})
	}

	t.Run("insufficient balance unwinds", func(t *testing.T) {
		rcpt := env.Execute(tx.TypeMarketPlaceOrder, "bob",
			`{"pairId":"GLD-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`)
		require.False(t, rcpt.OK)
		assert.Contains(t, rcpt.Error, "failed to process MARKET_PLACE_ORDER")
		assert.Contains(t, rcpt.Error, "insufficient balance")
		_, ok := env.Books.Ensure("GLD-USD").Best(book.Sell)
		assert.False(t, ok, "a failed place must leave no book entry")
	})
}

func TestRebuildBooks(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "100")
	env.Fund("bob", "USD", "10000")
	env.Fund("carol", "ECH", "100")

	env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`)
	env.MustExecute(tx.TypeMarketPlaceOrder, "bob",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"BUY","price":"90","quantity":"5"}`)
	cRcpt := env.MustExecute(tx.TypeMarketPlaceOrder, "carol",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"95","quantity":"3"}`)

	fresh := book.NewRegistry()
	require.NoError(t, market.RebuildBooks(env.Ctx(), env.Store, fresh))

	bk := fresh.Ensure("ECH-USD")
	assert.Equal(t, 2, bk.Len(book.Sell))
	assert.Equal(t, 1, bk.Len(book.Buy))
	ask, ok := bk.Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "95", ask.Price.String())
	bid, ok := bk.Best(book.Buy)
	require.True(t, ok)
	assert.Equal(t, "90", bid.Price.String())

	// Terminal orders stay off a rebuilt book.
	env.MustExecute(tx.TypeMarketCancelOrder, "carol",
		fmt.Sprintf(`{"orderId":%q}`, placedID(t, cRcpt)))
	fresh = book.NewRegistry()
	require.NoError(t, market.RebuildBooks(env.Ctx(), env.Store, fresh))
	bk = fresh.Ensure("ECH-USD")
	assert.Equal(t, 1, bk.Len(book.Sell))
	assert.Equal(t, 1, bk.Len(book.Buy))
	ask, ok = bk.Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "100", ask.Price.String())
}

func TestTradePriceModePlacesLimitOrder(t *testing.T) {
	env := marketEnv(t)
	env.Fund("alice", "ECH", "1000")
	env.Fund("bob", "USD", "2000")
	env.Fund("carol", "ECH", "100")

	env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"100","quantity":"10"}`)

	// 1050 quote at price 100 buys 10 base; the 50 never leaves spendable.
	rcpt := env.MustExecute(tx.TypeMarketTrade, "bob",
		`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"1050","price":"100"}`)

	ev := findEvent(t, rcpt, "tradeExecuted")
	assert.Equal(t, "10", ev.Data["amountOut"].(amount.Amount).String())
	assert.Equal(t, "ECH-USD", ev.Data["pairId"])
	assert.NotEmpty(t, ev.Data["orderId"])
	assert.Equal(t, "10", env.Balance("bob", "ECH"))
	assert.Equal(t, "1000", env.Balance("bob", "USD"))

	// Selling at a price nothing bids rests the remainder as a plain limit.
	rcpt = env.MustExecute(tx.TypeMarketTrade, "carol",
		`{"tokenIn":"ECH","tokenOut":"USD","amountIn":"7","price":"120"}`)
	ev = findEvent(t, rcpt, "tradeExecuted")
	assert.Equal(t, "0", ev.Data["amountOut"].(amount.Amount).String())
	assert.Equal(t, "7", env.Held("carol", "ECH"))
	ask, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "120", ask.Price.String())

	// A budget below one lot's worth cannot trade.
	r := env.Execute(tx.TypeMarketTrade, "bob",
		`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"50","price":"100"}`)
	require.False(t, r.OK)
	assert.Contains(t, r.Error, "failed to process MARKET_TRADE")
	assert.Contains(t, r.Error, "too small to trade")
}

func TestTradeAutoRoutePicksBestVenue(t *testing.T) {
	t.Run("deeper book beats the pool", func(t *testing.T) {
		env := seedVenues(t)
		env.Fund("alice", "ECH", "10000")
		env.Fund("bob", "USD", "10000")

		env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
			`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"1","quantity":"10000"}`)

		// Book: 10000 out at price 1. Pool: 9606 out after fee and impact.
		rcpt := env.MustExecute(tx.TypeMarketTrade, "bob",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"10000","minAmountOut":"1"}`)

		ev := findEvent(t, rcpt, "tradeExecuted")
		legs := ev.Data["legs"].([]map[string]any)
		require.Len(t, legs, 1)
		assert.Equal(t, market.VenueOrderbook, legs[0]["type"])
		assert.Equal(t, "10000", ev.Data["amountOut"].(amount.Amount).String())
		assert.Equal(t, "10000", env.Balance("bob", "ECH"))
		assert.Equal(t, "0", env.Balance("bob", "USD"))

		p, err := pool.MustGet(env.Ctx(), env.Store, "ECH_USD")
		require.NoError(t, err)
		assert.Equal(t, "1000000", p.ReserveA.String(), "losing venue stays untouched")
	})

	t.Run("pool beats a thin book", func(t *testing.T) {
		env := seedVenues(t)
		env.Fund("alice", "ECH", "10000")
		env.Fund("bob", "USD", "10000")

		// At price 2 the book yields only 5000 for the same budget.
		env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
			`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"2","quantity":"10000"}`)

		rcpt := env.MustExecute(tx.TypeMarketTrade, "bob",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"10000","minAmountOut":"1"}`)

		ev := findEvent(t, rcpt, "tradeExecuted")
		legs := ev.Data["legs"].([]map[string]any)
		require.Len(t, legs, 1)
		assert.Equal(t, market.VenueAMM, legs[0]["type"])
		assert.Equal(t, []string{"ECH_USD"}, legs[0]["poolIds"])
		assert.Equal(t, "9606", env.Balance("bob", "ECH"))

		p, err := pool.MustGet(env.Ctx(), env.Store, "ECH_USD")
		require.NoError(t, err)
		assert.Equal(t, "990394", p.ReserveA.String())
		assert.Equal(t, "1010000", p.ReserveB.String())

		ask, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
		require.True(t, ok)
		assert.Equal(t, "10000", ask.Remaining.String())
	})

	t.Run("no liquidity anywhere fails cleanly", func(t *testing.T) {
		env := marketEnv(t)
		env.Fund("bob", "USD", "10000")

		rcpt := env.Execute(tx.TypeMarketTrade, "bob",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"10000","minAmountOut":"1"}`)
		require.False(t, rcpt.OK)
		assert.Contains(t, rcpt.Error, "failed to process MARKET_TRADE")
		assert.Contains(t, rcpt.Error, "no liquidity for trade")
		assert.Equal(t, "10000", env.Balance("bob", "USD"))
	})
}

func TestTradeExplicitSplit(t *testing.T) {
	env := seedVenues(t)
	env.Fund("alice", "ECH", "20000")
	env.Fund("bob", "USD", "20000")

	env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"1","quantity":"20000"}`)

	payload := `{"tokenIn":"USD","tokenOut":"ECH","amountIn":"20000","minAmountOut":"19606",` +
		`"routes":[{"type":"AMM","allocation":50,"poolId":"ECH_USD"},` +
		`{"type":"ORDERBOOK","allocation":50,"pairId":"ECH-USD"}]}`
	rcpt := env.MustExecute(tx.TypeMarketTrade, "bob", payload)

	// AMM leg: 10000 in, 9606 out. Book leg: 10000 in, 10000 out at 1.
	ev := findEvent(t, rcpt, "tradeExecuted")
	assert.Equal(t, "19606", ev.Data["amountOut"].(amount.Amount).String())
	legs := ev.Data["legs"].([]map[string]any)
	require.Len(t, legs, 2)
	assert.Equal(t, market.VenueAMM, legs[0]["type"])
	assert.Equal(t, "10000", legs[0]["amountIn"].(amount.Amount).String())
	assert.Equal(t, "9606", legs[0]["amountOut"].(amount.Amount).String())
	assert.Equal(t, market.VenueOrderbook, legs[1]["type"])
	assert.Equal(t, "10000", legs[1]["amountIn"].(amount.Amount).String())
	assert.Equal(t, "10000", legs[1]["amountOut"].(amount.Amount).String())

	assert.Equal(t, "19606", env.Balance("bob", "ECH"))
	assert.Equal(t, "0", env.Balance("bob", "USD"))

	ask, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "10000", ask.Remaining.String())
}

func TestTradeMinAmountOutBlocksExecution(t *testing.T) {
	env := seedVenues(t)
	env.Fund("alice", "ECH", "20000")
	env.Fund("bob", "USD", "20000")

	env.MustExecute(tx.TypeMarketPlaceOrder, "alice",
		`{"pairId":"ECH-USD","type":"LIMIT","side":"SELL","price":"1","quantity":"20000"}`)

	payload := `{"tokenIn":"USD","tokenOut":"ECH","amountIn":"20000","minAmountOut":"19607",` +
		`"routes":[{"type":"AMM","allocation":50},{"type":"ORDERBOOK","allocation":50}]}`
	rcpt := env.Execute(tx.TypeMarketTrade, "bob", payload)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process MARKET_TRADE")
	assert.Contains(t, rcpt.Error, "expected output below minAmountOut")

	// The bound is enforced before any leg runs, so nothing moved at all.
	assert.Equal(t, "20000", env.Balance("bob", "USD"))
	assert.Equal(t, "0", env.Balance("bob", "ECH"))
	p, err := pool.MustGet(env.Ctx(), env.Store, "ECH_USD")
	require.NoError(t, err)
	assert.Equal(t, "1000000", p.ReserveA.String())
	assert.Equal(t, "1000000", p.ReserveB.String())
	ask, ok := env.Books.Ensure("ECH-USD").Best(book.Sell)
	require.True(t, ok)
	assert.Equal(t, "20000", ask.Remaining.String())
}

func TestTradeSlippagePercentBound(t *testing.T) {
	env := seedVenues(t)
	env.Fund("bob", "USD", "20000")

	// The 1:1 spot quote for 10000 is 10000; the pool actually yields 9606,
	// a 3.94% shortfall from fee plus impact.
	rcpt := env.Execute(tx.TypeMarketTrade, "bob",
		`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"10000","maxSlippagePercent":3}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process MARKET_TRADE")
	assert.Contains(t, rcpt.Error, "slippage exceeds maxSlippagePercent")
	assert.Equal(t, "20000", env.Balance("bob", "USD"))

	env.MustExecute(tx.TypeMarketTrade, "bob",
		`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"10000","maxSlippagePercent":4}`)
	assert.Equal(t, "9606", env.Balance("bob", "ECH"))
}

func TestTradeInsufficientBalancePreCheck(t *testing.T) {
	env := seedVenues(t)
	env.Fund("bob", "USD", "5000")

	rcpt := env.Execute(tx.TypeMarketTrade, "bob",
		`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"10000","minAmountOut":"1"}`)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process MARKET_TRADE")
	assert.Contains(t, rcpt.Error, "insufficient balance")

	p, err := pool.MustGet(env.Ctx(), env.Store, "ECH_USD")
	require.NoError(t, err)
	assert.Equal(t, "1000000", p.ReserveA.String(), "balance is checked before any leg runs")
	assert.Equal(t, "5000", env.Balance("bob", "USD"))
}

func TestTradePinnedPoolMismatch(t *testing.T) {
	env := seedVenues(t)
	env.CreateToken("echelon", "GLD", 8, "0")
	env.Fund("bob", "USD", "10000")

	payload := `{"tokenIn":"USD","tokenOut":"GLD","amountIn":"10000","minAmountOut":"1",` +
		`"routes":[{"type":"AMM","allocation":100,"poolId":"ECH_USD"}]}`
	rcpt := env.Execute(tx.TypeMarketTrade, "bob", payload)
	require.False(t, rcpt.OK)
	assert.Contains(t, rcpt.Error, "failed to process MARKET_TRADE")
	assert.Contains(t, rcpt.Error, "does not trade this token pair")
}

func TestTradeValidationRejections(t *testing.T) {
	env := marketEnv(t)
	env.Fund("bob", "USD", "10000")

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"zero amountIn",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"0","minAmountOut":"1"}`,
			"amountIn must be positive"},
		{"same token",
			`{"tokenIn":"USD","tokenOut":"USD","amountIn":"100","minAmountOut":"1"}`,
			"must differ"},
		{"unknown token",
			`{"tokenIn":"USD","tokenOut":"XYZ","amountIn":"100","minAmountOut":"1"}`,
			"not found"},
		{"price and bound together",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","price":"10","minAmountOut":"1"}`,
			"exactly one of price or a slippage bound"},
		{"neither price nor bound",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100"}`,
			"exactly one of price or a slippage bound"},
		{"slippage percent out of range",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","maxSlippagePercent":101}`,
			"between 1 and 100"},
		{"routes with price",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","price":"10","routes":[{"type":"AMM","allocation":100}]}`,
			"cannot be combined with price"},
		{"bad venue",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","minAmountOut":"1","routes":[{"type":"DEX","allocation":100}]}`,
			"route type must be AMM or ORDERBOOK"},
		{"allocations off 100",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","minAmountOut":"1","routes":[{"type":"AMM","allocation":60},{"type":"ORDERBOOK","allocation":50}]}`,
			"sum to 100"},
		{"duplicate venue",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","minAmountOut":"1","routes":[{"type":"AMM","allocation":50},{"type":"AMM","allocation":50}]}`,
			"at most one route per venue"},
		{"mismatched reference",
			`{"tokenIn":"USD","tokenOut":"ECH","amountIn":"100","minAmountOut":"1","routes":[{"type":"AMM","allocation":100,"pairId":"ECH-USD"}]}`,
			"does not match its venue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcpt := env.Execute(tx.TypeMarketTrade, "bob", tt.payload)
			require.False(t, rcpt.OK)
			assert.Contains(t, rcpt.Error, "invalid MARKET_TRADE")
			assert.Contains(t, rcpt.Error, tt.wantErr)
		})
	}
}
