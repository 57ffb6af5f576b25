package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echelon-net/echelond/internal/api"
	"github.com/echelon-net/echelond/internal/core/amount"
	"github.com/echelon-net/echelond/internal/core/book"
	"github.com/echelon-net/echelond/internal/core/event"
	"github.com/echelon-net/echelond/internal/core/launchpad"
	"github.com/echelon-net/echelond/internal/core/market"
	"github.com/echelon-net/echelond/internal/core/pool"
	"github.com/echelon-net/echelond/internal/core/witness"
	"github.com/echelon-net/echelond/internal/eventbus"
	"github.com/echelon-net/echelond/internal/state"
	"github.com/echelon-net/echelond/internal/storage/index"
	"github.com/echelon-net/echelond/internal/testutil"
)

// fixture is the full read stack over a test chain: state store, relational
// index, event bus and an httptest server around the API router.
type fixture struct {
	env *testutil.Env
	idx *index.Index
	bus *eventbus.Bus
	ts  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)

	idx, err := index.Open(context.Background(), index.DriverSQLite, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	bus := eventbus.New()
	t.Cleanup(bus.Close)

	srv := api.NewServer(api.Config{
		Store:   env.Store,
		Ledger:  env.Ledger,
		Index:   idx,
		Bus:     bus,
		ChainID: "echelon-test",
		Version: "0.0.0-test",
		Peers:   []string{"http://seed1.example:3000"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{env: env, idx: idx, bus: bus, ts: ts}
}

// get fetches a path and decodes the envelope.
func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (f *fixture) getOK(t *testing.T, path string) map[string]any {
	t.Helper()
	status, body := f.get(t, path)
	require.Equal(t, http.StatusOK, status, "GET %s: %v", path, body)
	require.Equal(t, true, body["success"])
	return body
}

func list(t *testing.T, body map[string]any, key string) []any {
	t.Helper()
	items, isList := body[key].([]any)
	require.True(t, isList, "expected %q to be a list, body %v", key, body)
	return items
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	m, isObj := v.(map[string]any)
	require.True(t, isObj, "expected an object, got %T", v)
	return m
}

func padded(raw string) string {
	return strings.Repeat("0", 32-len(raw)) + raw
}

func accountNames(t *testing.T, body map[string]any) []string {
	t.Helper()
	items := list(t, body, "accounts")
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, obj(t, it)["name"].(string))
	}
	return names
}

func TestAccountEndpoints(t *testing.T) {
	f := newFixture(t)
	env := f.env
	ctx := env.Ctx()

	usd := env.CreateToken("echelon", "USD", 6, "0")
	env.Fund("alice", "ECH", "150000000")
	env.Fund("alice", usd, "2500000")
	env.Fund("bob", "ECH", "50000000")

	t.Run("get", func(t *testing.T) {
		body := f.getOK(t, "/accounts/alice")
		acct := obj(t, body["account"])
		assert.Equal(t, "alice", acct["name"])

		bal := obj(t, obj(t, acct["balances"])["ECH"])
		assert.Equal(t, "1.5", bal["amount"])
		assert.Equal(t, padded("150000000"), bal["rawAmount"])
	})

	t.Run("missing", func(t *testing.T) {
		status, body := f.get(t, "/accounts/nobody")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "account not found", body["error"])
	})

	t.Run("count", func(t *testing.T) {
		body := f.getOK(t, "/accounts/count")
		assert.EqualValues(t, 3, body["count"]) // echelon, alice, bob
	})

	t.Run("list", func(t *testing.T) {
		body := f.getOK(t, "/accounts")
		assert.Equal(t, []string{"alice", "bob", "echelon"}, accountNames(t, body))
		assert.EqualValues(t, 3, body["total"])

		body = f.getOK(t, "/accounts?sortBy=name&sortDirection=desc")
		assert.Equal(t, []string{"echelon", "bob", "alice"}, accountNames(t, body))

		body = f.getOK(t, "/accounts?limit=1&offset=1")
		assert.Equal(t, []string{"bob"}, accountNames(t, body))
		assert.EqualValues(t, 3, body["total"])
	})

	t.Run("hasToken", func(t *testing.T) {
		body := f.getOK(t, "/accounts?hasToken="+usd)
		assert.Equal(t, []string{"alice"}, accountNames(t, body))
	})

	t.Run("isWitness", func(t *testing.T) {
		acct := env.Account("bob")
		acct.WitnessPublicKey = "EPKbobnode"
		acct.WitnessEnabled = true
		require.NoError(t, env.Ledger.Save(ctx, acct))

		body := f.getOK(t, "/accounts?isWitness=true")
		assert.Equal(t, []string{"bob"}, accountNames(t, body))
	})

	t.Run("bad params", func(t *testing.T) {
		status, _ := f.get(t, "/accounts?isWitness=maybe")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/accounts?sortBy=balance")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/accounts?sortDirection=sideways")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("tokens", func(t *testing.T) {
		body := f.getOK(t, "/accounts/alice/tokens")
		tokens := list(t, body, "tokens")
		require.Len(t, tokens, 2)

		ech := obj(t, tokens[0])
		assert.Equal(t, "ECH", ech["identifier"])
		assert.EqualValues(t, 8, ech["precision"])
		assert.Equal(t, "1.5", obj(t, ech["balance"])["amount"])

		quote := obj(t, tokens[1])
		assert.Equal(t, usd, quote["identifier"])
		assert.EqualValues(t, 6, quote["precision"])
		assert.Equal(t, "2.5", obj(t, quote["balance"])["amount"])
	})

	t.Run("transactions", func(t *testing.T) {
		require.NoError(t, f.idx.RecordTx(ctx, index.TxRow{
			ID: "tx-h1", Height: 7, Seq: 0, Type: 23, TypeName: "TOKEN_TRANSFER",
			Sender: "alice", OK: true, Data: `{"to":"bob","symbol":"ECH","amount":"1"}`,
			Timestamp: 1_700_000_007,
		}, []string{"alice", "bob"}, nil, nil, nil))
		require.NoError(t, f.idx.RecordTx(ctx, index.TxRow{
			ID: "tx-h2", Height: 8, Seq: 0, Type: 60, TypeName: "POOL_SWAP",
			Sender: "alice", OK: false, Error: "no swap route found",
			Data:      `{"fromTokenSymbol":"ECH","toTokenSymbol":"ZZZ"}`,
			Timestamp: 1_700_000_008,
		}, []string{"alice"}, nil, nil, nil))

		body := f.getOK(t, "/accounts/alice/transactions")
		txs := list(t, body, "transactions")
		require.Len(t, txs, 2)
		newest := obj(t, txs[0])
		assert.Equal(t, "tx-h2", newest["id"])
		assert.Equal(t, false, newest["ok"])
		assert.Equal(t, "no swap route found", newest["error"])

		body = f.getOK(t, "/accounts/alice/transactions?type=TOKEN_TRANSFER")
		txs = list(t, body, "transactions")
		require.Len(t, txs, 1)
		first := obj(t, txs[0])
		assert.Equal(t, "tx-h1", first["id"])
		assert.Equal(t, "bob", obj(t, first["data"])["to"])

		body = f.getOK(t, "/accounts/alice/transactions?dataKey=to&dataValue=bob")
		require.Len(t, list(t, body, "transactions"), 1)

		// Unknown accounts have an empty history, not a 404.
		body = f.getOK(t, "/accounts/nobody/transactions")
		assert.Len(t, list(t, body, "transactions"), 0)
	})
}

func TestMarketEndpoints(t *testing.T) {
	f := newFixture(t)
	env := f.env
	ctx := env.Ctx()

	env.CreateToken("echelon", "USD", 6, "0")
	_, err := market.CreatePair(ctx, env.Store, "ECH", "USD", market.PairConfig{}, env.Now)
	require.NoError(t, err)

	t.Run("pairs", func(t *testing.T) {
		body := f.getOK(t, "/markets/pairs")
		pairs := list(t, body, "pairs")
		require.Len(t, pairs, 1)
		assert.Equal(t, "ECH-USD", obj(t, pairs[0])["id"])

		body = f.getOK(t, "/markets/pairs?status="+market.PairTrading)
		assert.Len(t, list(t, body, "pairs"), 1)
		body = f.getOK(t, "/markets/pairs?status=PAUSED")
		assert.Len(t, list(t, body, "pairs"), 0)

		body = f.getOK(t, "/markets/pairs/ECH-USD")
		assert.Equal(t, market.PairTrading, obj(t, body["pair"])["status"])

		status, _ := f.get(t, "/markets/pairs/FOO-BAR")
		assert.Equal(t, http.StatusNotFound, status)
	})

	// One filled match: maker BUY, taker SELL, a single trade.
	maker := &market.Order{
		ID: "o-maker", PairID: "ECH-USD", User: "alice", Type: market.OrderLimit,
		Side: book.Buy, Price: amount.MustParse("100"), Quantity: amount.MustParse("10"),
		FilledQuantity: amount.MustParse("10"), Status: market.StatusFilled, TimeInForce: market.TifGTC,
	}
	taker := &market.Order{
		ID: "o-taker", PairID: "ECH-USD", User: "bob", Type: market.OrderLimit,
		Side: book.Sell, Price: amount.MustParse("100"), Quantity: amount.MustParse("10"),
		FilledQuantity: amount.MustParse("10"), Status: market.StatusFilled, TimeInForce: market.TifGTC,
	}
	trade := &market.Trade{
		ID: "t-1", PairID: "ECH-USD", MakerOrderID: "o-maker", TakerOrderID: "o-taker",
		Buyer: "alice", Seller: "bob",
		Price: amount.MustParse("100"), Quantity: amount.MustParse("10"), Total: amount.MustParse("1000"),
		Timestamp: 1_700_000_100,
	}
	orderRow := func(o *market.Order, at int64) index.OrderRow {
		doc, err := json.Marshal(o)
		require.NoError(t, err)
		return index.OrderRow{
			ID: o.ID, PairID: o.PairID, Account: o.User, Side: string(o.Side),
			Status: o.Status, Price: o.Price.String(), CreatedAt: at, UpdatedAt: at, Doc: doc,
		}
	}
	tradeDoc, err := json.Marshal(trade)
	require.NoError(t, err)
	require.NoError(t, f.idx.RecordTx(ctx, index.TxRow{
		ID: "tx-match", Height: 9, Seq: 0, Type: 40, TypeName: "MARKET_PLACE_ORDER",
		Sender: "bob", OK: true, Data: `{"pairId":"ECH-USD"}`, Timestamp: 1_700_000_100,
	}, []string{"alice", "bob"},
		nil,
		[]index.OrderRow{orderRow(maker, 1_700_000_090), orderRow(taker, 1_700_000_100)},
		[]index.TradeRow{{
			ID: trade.ID, PairID: trade.PairID, MakerOrderID: trade.MakerOrderID,
			TakerOrderID: trade.TakerOrderID, Buyer: trade.Buyer, Seller: trade.Seller,
			Timestamp: trade.Timestamp, Doc: tradeDoc,
		}}))

	t.Run("orders", func(t *testing.T) {
		body := f.getOK(t, "/markets/orders/pair/ECH-USD")
		orders := list(t, body, "orders")
		require.Len(t, orders, 2)
		assert.EqualValues(t, 2, body["total"])

		body = f.getOK(t, "/markets/orders/pair/ECH-USD?status="+market.StatusOpen)
		assert.Len(t, list(t, body, "orders"), 0)

		body = f.getOK(t, "/markets/orders/user/alice")
		orders = list(t, body, "orders")
		require.Len(t, orders, 1)
		assert.Equal(t, "o-maker", obj(t, orders[0])["id"])

		body = f.getOK(t, "/markets/orders/o-maker")
		order := obj(t, body["order"])
		assert.Equal(t, "alice", order["userId"])
		assert.Equal(t, padded("100"), order["price"])

		status, _ := f.get(t, "/markets/orders/o-nope")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("trades", func(t *testing.T) {
		body := f.getOK(t, "/markets/trades/pair/ECH-USD")
		trades := list(t, body, "trades")
		require.Len(t, trades, 1)
		assert.Equal(t, "t-1", obj(t, trades[0])["id"])

		body = f.getOK(t, "/markets/trades/pair/ECH-USD?fromTimestamp=1700000000&toTimestamp=1700000150")
		assert.Len(t, list(t, body, "trades"), 1)
		body = f.getOK(t, "/markets/trades/pair/ECH-USD?fromTimestamp=1700000150")
		assert.Len(t, list(t, body, "trades"), 0)

		status, _ := f.get(t, "/markets/trades/pair/ECH-USD?fromTimestamp=abc")
		assert.Equal(t, http.StatusBadRequest, status)

		body = f.getOK(t, "/markets/trades/order/o-taker")
		assert.Len(t, list(t, body, "trades"), 1)

		body = f.getOK(t, "/markets/trades/t-1")
		assert.Equal(t, "alice", obj(t, body["trade"])["buyer"])

		status, _ = f.get(t, "/markets/trades/t-nope")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestPoolEndpoints(t *testing.T) {
	f := newFixture(t)
	env := f.env
	ctx := env.Ctx()

	usd := env.CreateToken("echelon", "USD", 6, "0")
	xyz := env.CreateToken("echelon", "XYZ", 4, "0")

	seedPool := func(tokenA, tokenB, reserveA, reserveB string) *pool.Pool {
		t.Helper()
		id := pool.ID(tokenA, tokenB)
		a, b := pool.Sort(tokenA, tokenB)
		p := &pool.Pool{
			ID: id, TokenA: a, TokenB: b,
			ReserveA: amount.MustParse(reserveA), ReserveB: amount.MustParse(reserveB),
			TotalLpTokens: amount.MustParse("1000000000000000000"),
			BurnedLp:      amount.MustParse("1000"),
			FeeBps:        pool.FeeBps, LpIdentifier: pool.LpIdentifier(id),
			CreatedBy: "alice", CreatedAt: env.Now,
		}
		require.NoError(t, pool.Put(ctx, env.Store, p))
		return p
	}
	echUsd := seedPool("ECH", usd, "1000000000", "100000000") // 10 ECH / 100 USD
	usdXyz := seedPool(usd, xyz, "200000000", "5000000")      // 200 USD / 500 XYZ

	t.Run("pools", func(t *testing.T) {
		body := f.getOK(t, "/pools")
		assert.EqualValues(t, 2, body["total"])

		body = f.getOK(t, "/pools/"+echUsd.ID)
		p := obj(t, body["pool"])
		assert.Equal(t, "10", obj(t, p["reserveA"])["amount"])
		assert.Equal(t, "100", obj(t, p["reserveB"])["amount"])
		assert.Equal(t, "1", obj(t, p["totalLpTokens"])["amount"])
		assert.Equal(t, "LP_"+echUsd.ID, p["lpIdentifier"])

		status, _ := f.get(t, "/pools/NO_POOL")
		assert.Equal(t, http.StatusNotFound, status)

		body = f.getOK(t, "/pools/token/"+usd)
		assert.Len(t, list(t, body, "pools"), 2)
		body = f.getOK(t, "/pools/token/ECH")
		assert.Len(t, list(t, body, "pools"), 1)
		body = f.getOK(t, "/pools/token/ZZZ")
		assert.Len(t, list(t, body, "pools"), 0)
	})

	t.Run("positions", func(t *testing.T) {
		require.NoError(t, pool.BumpPosition(ctx, env.Store, "alice", echUsd.ID, amount.MustParse("250000000000000000"), env.Now))

		body := f.getOK(t, "/pools/positions/user/alice")
		positions := list(t, body, "positions")
		require.Len(t, positions, 1)
		pos := obj(t, positions[0])
		assert.Equal(t, "alice:"+echUsd.ID, pos["id"])
		assert.Equal(t, "0.25", obj(t, pos["lpTokens"])["amount"])

		body = f.getOK(t, "/pools/positions/pool/"+echUsd.ID)
		assert.Len(t, list(t, body, "positions"), 1)
		body = f.getOK(t, "/pools/positions/pool/"+usdXyz.ID)
		assert.Len(t, list(t, body, "positions"), 0)

		body = f.getOK(t, "/pools/positions/alice:"+echUsd.ID)
		assert.Equal(t, "alice", obj(t, body["position"])["provider"])

		body = f.getOK(t, "/pools/positions/user/alice/pool/"+echUsd.ID)
		assert.Equal(t, echUsd.ID, obj(t, body["position"])["poolId"])

		status, _ := f.get(t, "/pools/positions/not-a-composite-id")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/pools/positions/bob:"+echUsd.ID)
		assert.Equal(t, http.StatusNotFound, status)
		status, _ = f.get(t, "/pools/positions/user/bob/pool/"+echUsd.ID)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("route swap", func(t *testing.T) {
		body := f.getOK(t, "/pools/route-swap?fromTokenSymbol=ECH&toTokenSymbol="+usd+"&amountIn=100000000")
		route := obj(t, body["route"])
		hops := list(t, route, "hops")
		require.Len(t, hops, 1)
		assert.Equal(t, echUsd.ID, obj(t, hops[0])["poolId"])
		// 1 ECH against 10/100 reserves with the 3% fee.
		out := obj(t, route["amountOut"])
		assert.Equal(t, "8.842297", out["amount"])
		assert.Equal(t, padded("8842297"), out["rawAmount"])

		body = f.getOK(t, "/pools/route-swap?fromTokenSymbol=ECH&toTokenSymbol="+xyz+"&amountIn=100000000")
		route = obj(t, body["route"])
		hops = list(t, route, "hops")
		require.Len(t, hops, 2)
		assert.Equal(t, "ECH", obj(t, hops[0])["tokenIn"])
		assert.Equal(t, usd, obj(t, hops[0])["tokenOut"])
		assert.Equal(t, xyz, obj(t, hops[1])["tokenOut"])
		assert.NotEqual(t, padded("0"), obj(t, route["amountOut"])["rawAmount"])
	})

	t.Run("route swap errors", func(t *testing.T) {
		status, _ := f.get(t, "/pools/route-swap?toTokenSymbol="+usd+"&amountIn=1")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/pools/route-swap?fromTokenSymbol=ECH&toTokenSymbol="+usd)
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/pools/route-swap?fromTokenSymbol=ECH&toTokenSymbol="+usd+"&amountIn=abc")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/pools/route-swap?fromTokenSymbol=ECH&toTokenSymbol="+usd+"&amountIn=-5")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/pools/route-swap?fromTokenSymbol=ECH&toTokenSymbol=ZZZ&amountIn=100")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestLaunchpadEndpoints(t *testing.T) {
	f := newFixture(t)
	env := f.env
	ctx := env.Ctx()

	usd := env.CreateToken("echelon", "USD", 6, "0")
	lp := &launchpad.Launchpad{
		ID: "pad-1", Owner: "alice", TokenSymbol: "NEW", TokenName: "New Token",
		Decimals: 8, TotalSupply: amount.MustParse("100000000000000000"),
		Status: launchpad.StatusSucceededSoftcap, MainTokenID: "NEW",
		Presale: &launchpad.Presale{
			PricePerToken: amount.MustParse("100000"), QuoteAsset: usd,
			HardCap: amount.MustParse("100000000"), SoftCap: amount.MustParse("1000000"),
			StartTime: 1_700_000_000, EndTime: 1_700_000_600, AllocationBps: 3000,
			TotalQuoteRaised: amount.MustParse("5000000"),
			Participants: []launchpad.Participant{{
				Account: "bob", Contribution: amount.MustParse("5000000"),
				TokensAllocated: amount.MustParse("5000000000"), JoinedAt: 1_700_000_010,
			}},
		},
		CreatedAt: 1_700_000_000, UpdatedAt: 1_700_000_700,
	}
	require.NoError(t, launchpad.Put(ctx, env.Store, lp))

	t.Run("list", func(t *testing.T) {
		body := f.getOK(t, "/launchpad")
		pads := list(t, body, "launchpads")
		require.Len(t, pads, 1)
		pad := obj(t, pads[0])
		assert.Equal(t, "pad-1", pad["id"])
		assert.Equal(t, "1000000000", obj(t, pad["totalSupply"])["amount"])

		presale := obj(t, pad["presale"])
		assert.EqualValues(t, 1, presale["participants"])
		assert.Equal(t, "5", obj(t, presale["totalQuoteRaised"])["amount"])
		_, withEntries := presale["entries"]
		assert.False(t, withEntries, "list view must not inline participant entries")
	})

	t.Run("get", func(t *testing.T) {
		body := f.getOK(t, "/launchpad/pad-1")
		pad := obj(t, body["launchpad"])
		presale := obj(t, pad["presale"])
		entries := list(t, presale, "entries")
		require.Len(t, entries, 1)
		entry := obj(t, entries[0])
		assert.Equal(t, "bob", entry["account"])
		assert.Equal(t, "5", obj(t, entry["contribution"])["amount"])
		assert.Equal(t, "50", obj(t, entry["tokensAllocated"])["amount"])

		status, _ := f.get(t, "/launchpad/pad-ghost")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("participant", func(t *testing.T) {
		body := f.getOK(t, "/launchpad/pad-1/user/bob")
		entry := obj(t, body["participant"])
		assert.Equal(t, "bob", entry["account"])
		assert.Equal(t, false, entry["claimed"])

		status, _ := f.get(t, "/launchpad/pad-1/user/carol")
		assert.Equal(t, http.StatusNotFound, status)
		status, _ = f.get(t, "/launchpad/pad-ghost/user/bob")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("claimable", func(t *testing.T) {
		body := f.getOK(t, "/launchpad/pad-1/user/bob/claimable")
		claim := obj(t, body["claimable"])
		assert.Equal(t, true, claim["eligible"])
		assert.Equal(t, false, claim["claimed"])
		assert.Equal(t, "50", obj(t, claim["amount"])["amount"])
		assert.Equal(t, padded("5000000000"), obj(t, claim["amount"])["rawAmount"])

		lp.Presale.Participants[0].Claimed = true
		require.NoError(t, launchpad.Put(ctx, env.Store, lp))

		body = f.getOK(t, "/launchpad/pad-1/user/bob/claimable")
		claim = obj(t, body["claimable"])
		assert.Equal(t, false, claim["eligible"])
		assert.Equal(t, true, claim["claimed"])
		assert.Equal(t, "0", obj(t, claim["amount"])["amount"])
	})
}

func TestWitnessEndpoints(t *testing.T) {
	f := newFixture(t)
	env := f.env
	ctx := env.Ctx()

	registerWitness := func(name, key, weightRaw string) {
		t.Helper()
		env.Fund(name, "ECH", "1")
		acct := env.Account(name)
		acct.WitnessPublicKey = key
		acct.WitnessEnabled = true
		acct.WitnessURL = "https://" + name + ".example"
		acct.TotalVoteWeight = amount.MustParse(weightRaw)
		require.NoError(t, env.Ledger.Save(ctx, acct))
	}
	registerWitness("w1", "EPKone", "10000000000")
	registerWitness("w2", "EPKtwo", "30000000000")

	env.Fund("alice", "ECH", "1")
	alice := env.Account("alice")
	alice.VotedWitnesses = []string{"w1"}
	require.NoError(t, env.Ledger.Save(ctx, alice))
	require.NoError(t, witness.PutVoteRecord(ctx, env.Store, &witness.VoteRecord{
		Witness: "w1", Voter: "alice", VotedAt: 1_700_000_050,
	}))

	t.Run("list", func(t *testing.T) {
		body := f.getOK(t, "/witnesses")
		witnesses := list(t, body, "witnesses")
		require.Len(t, witnesses, 2)
		// Heaviest vote weight first.
		assert.Equal(t, "w2", obj(t, witnesses[0])["name"])
		assert.Equal(t, "300", obj(t, obj(t, witnesses[0])["totalVoteWeight"])["amount"])
		assert.Equal(t, "w1", obj(t, witnesses[1])["name"])
	})

	t.Run("details", func(t *testing.T) {
		body := f.getOK(t, "/witnesses/w1/details")
		w := obj(t, body["witness"])
		assert.Equal(t, "EPKone", w["publicKey"])
		voters := list(t, w, "voters")
		require.Len(t, voters, 1)
		assert.Equal(t, "alice", obj(t, voters[0])["voter"])

		status, _ := f.get(t, "/witnesses/ghost/details")
		assert.Equal(t, http.StatusNotFound, status)
		// A plain account is not a witness.
		status, _ = f.get(t, "/witnesses/alice/details")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("votes cast by", func(t *testing.T) {
		body := f.getOK(t, "/witnesses/votescastby/alice")
		votes := list(t, body, "votes")
		require.Len(t, votes, 1)
		assert.Equal(t, "w1", votes[0])

		body = f.getOK(t, "/witnesses/votescastby/w2")
		assert.Len(t, list(t, body, "votes"), 0)

		status, _ := f.get(t, "/witnesses/votescastby/ghost")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("voters for", func(t *testing.T) {
		body := f.getOK(t, "/witnesses/votersfor/w1")
		voters := list(t, body, "voters")
		require.Len(t, voters, 1)
		assert.Equal(t, "alice", obj(t, voters[0])["voter"])

		body = f.getOK(t, "/witnesses/votersfor/w2")
		assert.Len(t, list(t, body, "voters"), 0)
	})
}

func TestEventEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := f.env.Ctx()

	require.NoError(t, f.idx.RecordTx(ctx, index.TxRow{
		ID: "tx-e1", Height: 5, Seq: 0, Type: 23, TypeName: "TOKEN_TRANSFER",
		Sender: "alice", OK: true, Data: `{"to":"bob"}`, Timestamp: 100,
	}, []string{"alice"}, []index.EventRow{{
		ID: "tx-e1-0000", TxID: "tx-e1", Height: 5, Seq: 0,
		Category: "token", Action: "transferred", Actor: "alice",
		Data: `{"symbol":"ECH"}`, Timestamp: 100,
	}}, nil, nil))
	require.NoError(t, f.idx.RecordTx(ctx, index.TxRow{
		ID: "tx-e2", Height: 6, Seq: 0, Type: 60, TypeName: "POOL_SWAP",
		Sender: "bob", OK: true, Data: `{"fromTokenSymbol":"ECH"}`, Timestamp: 200,
	}, []string{"bob"}, []index.EventRow{{
		ID: "tx-e2-0000", TxID: "tx-e2", Height: 6, Seq: 0,
		Category: "pool", Action: "swapped", Actor: "bob", PoolID: "ECH_USD",
		Data: `{"poolId":"ECH_USD"}`, Timestamp: 200,
	}}, nil, nil))

	t.Run("list", func(t *testing.T) {
		body := f.getOK(t, "/events")
		events := list(t, body, "events")
		require.Len(t, events, 2)
		assert.EqualValues(t, 2, body["total"])
		// Newest first by default.
		assert.Equal(t, "tx-e2-0000", obj(t, events[0])["id"])

		body = f.getOK(t, "/events?sortDirection=asc")
		events = list(t, body, "events")
		assert.Equal(t, "tx-e1-0000", obj(t, events[0])["id"])
	})

	t.Run("filters", func(t *testing.T) {
		body := f.getOK(t, "/events?category=token")
		require.Len(t, list(t, body, "events"), 1)

		body = f.getOK(t, "/events?action=swapped")
		require.Len(t, list(t, body, "events"), 1)

		body = f.getOK(t, "/events?actor=alice")
		require.Len(t, list(t, body, "events"), 1)

		body = f.getOK(t, "/events?poolId=ECH_USD")
		events := list(t, body, "events")
		require.Len(t, events, 1)
		assert.Equal(t, "tx-e2-0000", obj(t, events[0])["id"])

		body = f.getOK(t, "/events?transactionId=tx-e1")
		require.Len(t, list(t, body, "events"), 1)

		body = f.getOK(t, "/events?startTime=150")
		require.Len(t, list(t, body, "events"), 1)
		body = f.getOK(t, "/events?endTime=150")
		events = list(t, body, "events")
		require.Len(t, events, 1)
		assert.Equal(t, "tx-e1-0000", obj(t, events[0])["id"])
	})

	t.Run("bad params", func(t *testing.T) {
		status, _ := f.get(t, "/events?sortDirection=bogus")
		assert.Equal(t, http.StatusBadRequest, status)
		status, _ = f.get(t, "/events?startTime=abc")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("types and categories", func(t *testing.T) {
		body := f.getOK(t, "/events/types")
		types := list(t, body, "types")
		assert.ElementsMatch(t, []any{"swapped", "transferred"}, types)

		body = f.getOK(t, "/events/categories")
		categories := list(t, body, "categories")
		assert.ElementsMatch(t, []any{"pool", "token"}, categories)
	})

	t.Run("stats", func(t *testing.T) {
		body := f.getOK(t, "/events/stats")
		assert.EqualValues(t, 2, body["total"])
		counts := map[string]float64{}
		for _, it := range list(t, body, "stats") {
			row := obj(t, it)
			counts[row["category"].(string)] = row["count"].(float64)
		}
		assert.Equal(t, map[string]float64{"pool": 1, "token": 1}, counts)
	})

	t.Run("get", func(t *testing.T) {
		body := f.getOK(t, "/events/tx-e1-0000")
		evt := obj(t, body["event"])
		assert.Equal(t, "tx-e1", evt["transactionId"])
		assert.Equal(t, "ECH", obj(t, evt["data"])["symbol"])

		status, _ := f.get(t, "/events/zzz")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestStatusAndPeers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Store.SetHead(f.env.Ctx(), state.Head{
		Height: 42, BlockID: "blk-42", Timestamp: time.Unix(1_700_000_042, 0),
	}))

	body := f.getOK(t, "/status")
	st := obj(t, body["status"])
	assert.Equal(t, "echelon-test", st["chainId"])
	assert.Equal(t, "0.0.0-test", st["version"])
	assert.EqualValues(t, 42, st["headHeight"])
	assert.Equal(t, "blk-42", st["headBlockId"])
	assert.EqualValues(t, 1_700_000_042, st["headTimestamp"])

	body = f.getOK(t, "/peers")
	peers := list(t, body, "peers")
	require.Len(t, peers, 1)
	assert.Equal(t, "http://seed1.example:3000", peers[0])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.ts.URL+"/accounts", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(f.ts.URL + "/accounts/count")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestRateLimit(t *testing.T) {
	env := testutil.NewEnv(t)
	srv := api.NewServer(api.Config{
		Store:     env.Store,
		Ledger:    env.Ledger,
		RateLimit: 1,
		RateBurst: 1,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/accounts/count")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Burst of one: the second request in the same window is rejected.
	resp, err = http.Get(ts.URL + "/accounts/count")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
}

func dialWS(t *testing.T, f *fixture, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	// The handler registers the client right after the upgrade.
	time.Sleep(100 * time.Millisecond)
	return conn
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f, "/ws")

	f.bus.Publish(event.Event{
		ID: "evt-1", Category: "token", Action: "transferred", Actor: "alice",
		Data: map[string]any{"symbol": "ECH"}, TxID: "tx-9", Timestamp: 42,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(payload, &evt))
	assert.Equal(t, "transferred", evt["action"])
	assert.Equal(t, "tx-9", evt["transactionId"])
	assert.Equal(t, "ECH", obj(t, evt["data"])["symbol"])
}

func TestWebSocketCategoryFilter(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f, "/ws?category=market")

	f.bus.Publish(event.Event{ID: "evt-1", Category: "token", Action: "transferred", Timestamp: 1})
	f.bus.Publish(event.Event{ID: "evt-2", Category: "market", Action: "order_filled", Timestamp: 2})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(payload, &evt))
	assert.Equal(t, "market", evt["category"], "token events must be filtered out")
}
