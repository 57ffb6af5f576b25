package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func txRow(id string, height uint64, seq int, typeName, sender, data string, ok bool) TxRow {
	return TxRow{
		ID: id, Height: height, Seq: seq, Type: 23, TypeName: typeName,
		Sender: sender, OK: ok, Data: data, Timestamp: int64(1700000000 + height),
	}
}

func TestAccountTxHistory(t *testing.T) {
	ctx := context.Background()
	x := openTestIndex(t)

	require.NoError(t, x.RecordTx(ctx,
		txRow("tx1", 10, 0, "TOKEN_TRANSFER", "alice", `{"to":"bob","amount":"5"}`, true),
		[]string{"alice", "bob"}, nil, nil, nil))
	require.NoError(t, x.RecordTx(ctx,
		txRow("tx2", 11, 0, "TOKEN_TRANSFER", "alice", `{"to":"carol","amount":"7"}`, true),
		[]string{"alice", "carol"}, nil, nil, nil))
	require.NoError(t, x.RecordTx(ctx,
		txRow("tx3", 11, 1, "POOL_SWAP", "alice", `{"fromTokenSymbol":"ECH"}`, false),
		[]string{"alice"}, nil, nil, nil))

	rows, total, err := x.AccountTxs(ctx, "alice", TxFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 3)
	// Newest first: height 11 seq 1, height 11 seq 0, height 10.
	assert.Equal(t, "tx3", rows[0].ID)
	assert.Equal(t, "tx2", rows[1].ID)
	assert.Equal(t, "tx1", rows[2].ID)
	assert.False(t, rows[0].OK)
	assert.True(t, rows[1].OK)

	rows, total, err = x.AccountTxs(ctx, "bob", TxFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "tx1", rows[0].ID)

	rows, total, err = x.AccountTxs(ctx, "alice", TxFilter{TypeName: "TOKEN_TRANSFER"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)

	rows, total, err = x.AccountTxs(ctx, "alice", TxFilter{DataKey: "to", DataValue: "carol"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "tx2", rows[0].ID)

	// DataKey alone matches any value.
	_, total, err = x.AccountTxs(ctx, "alice", TxFilter{DataKey: "to"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	rows, total, err = x.AccountTxs(ctx, "alice", TxFilter{Limit: 1, Skip: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "tx2", rows[0].ID)
}

func TestReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	x := openTestIndex(t)

	row := txRow("tx1", 5, 0, "TOKEN_MINT", "echelon", `{}`, true)
	events := []EventRow{{
		ID: "tx1-0000", TxID: "tx1", Height: 5, Seq: 0,
		Category: "token", Action: "minted", Actor: "echelon",
		Data: `{}`, Timestamp: 1700000005,
	}}
	require.NoError(t, x.RecordTx(ctx, row, []string{"echelon"}, events, nil, nil))
	require.NoError(t, x.RecordTx(ctx, row, []string{"echelon"}, events, nil, nil))

	_, total, err := x.AccountTxs(ctx, "echelon", TxFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = x.Events(ctx, EventFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func seedEvents(t *testing.T, x *Index) {
	t.Helper()
	ctx := context.Background()
	rows := []EventRow{
		{ID: "tx1-0000", TxID: "tx1", Height: 1, Seq: 0, Category: "token", Action: "created", Actor: "alice", Data: `{}`, Timestamp: 100},
		{ID: "tx1-0001", TxID: "tx1", Height: 1, Seq: 1, Category: "pool", Action: "liquidityAdded", Actor: "alice", PoolID: "ECH_USD", Data: `{}`, Timestamp: 100},
		{ID: "tx2-0000", TxID: "tx2", Height: 2, Seq: 0, Category: "pool", Action: "swap", Actor: "bob", PoolID: "ECH_USD", Data: `{}`, Timestamp: 200},
		{ID: "tx3-0000", TxID: "tx3", Height: 3, Seq: 0, Category: "market", Action: "orderPlaced", Actor: "bob", Data: `{}`, Timestamp: 300},
	}
	require.NoError(t, x.RecordTx(ctx, txRow("tx1", 1, 0, "T", "alice", `{}`, true), []string{"alice"}, rows[:2], nil, nil))
	require.NoError(t, x.RecordTx(ctx, txRow("tx2", 2, 0, "T", "bob", `{}`, true), []string{"bob"}, rows[2:3], nil, nil))
	require.NoError(t, x.RecordTx(ctx, txRow("tx3", 3, 0, "T", "bob", `{}`, true), []string{"bob"}, rows[3:], nil, nil))
}

func TestEventQueries(t *testing.T) {
	ctx := context.Background()
	x := openTestIndex(t)
	seedEvents(t, x)

	rows, total, err := x.Events(ctx, EventFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, rows, 4)
	// Newest first by default.
	assert.Equal(t, "tx3-0000", rows[0].ID)
	assert.Equal(t, "tx1-0000", rows[3].ID)

	rows, _, err = x.Events(ctx, EventFilter{Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, "tx1-0000", rows[0].ID)
	assert.Equal(t, "tx1-0001", rows[1].ID)

	rows, total, err = x.Events(ctx, EventFilter{Category: "pool"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	rows, total, err = x.Events(ctx, EventFilter{Actor: "bob", Category: "market"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "orderPlaced", rows[0].Action)

	rows, total, err = x.Events(ctx, EventFilter{PoolID: "ECH_USD"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	rows, total, err = x.Events(ctx, EventFilter{StartTime: 150, EndTime: 250})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "tx2-0000", rows[0].ID)

	_, total, err = x.Events(ctx, EventFilter{TxID: "tx1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	evt, found, err := x.EventByID(ctx, "tx2-0000")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "swap", evt.Action)

	_, found, err = x.EventByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	actions, err := x.EventActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"created", "liquidityAdded", "orderPlaced", "swap"}, actions)

	cats, err := x.EventCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"market", "pool", "token"}, cats)

	stats, statTotal, err := x.EventStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, statTotal)
	assert.Equal(t, []CategoryCount{{"market", 1}, {"pool", 2}, {"token", 1}}, stats)
}

func TestOrderAndTradeProjections(t *testing.T) {
	ctx := context.Background()
	x := openTestIndex(t)

	open := OrderRow{
		ID: "ord1", PairID: "ECH-USD", Account: "alice", Side: "buy", Status: "open",
		Price: "00000000000000000000000000000100", CreatedAt: 100, UpdatedAt: 100,
		Doc: []byte(`{"id":"ord1","status":"open"}`),
	}
	require.NoError(t, x.RecordTx(ctx, txRow("tx1", 1, 0, "MARKET_PLACE_ORDER", "alice", `{}`, true),
		[]string{"alice"}, nil, []OrderRow{open}, nil))

	// The fill updates the order snapshot and writes the trade.
	filled := open
	filled.Status = "filled"
	filled.UpdatedAt = 200
	filled.Doc = []byte(`{"id":"ord1","status":"filled"}`)
	trade := TradeRow{
		ID: "tr1", PairID: "ECH-USD", MakerOrderID: "ord1", TakerOrderID: "ord2",
		Buyer: "alice", Seller: "bob", Timestamp: 200, Doc: []byte(`{"id":"tr1"}`),
	}
	require.NoError(t, x.RecordTx(ctx, txRow("tx2", 2, 0, "MARKET_PLACE_ORDER", "bob", `{}`, true),
		[]string{"bob"}, nil, []OrderRow{filled}, []TradeRow{trade}))

	o, found, err := x.OrderByID(ctx, "ord1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "filled", o.Status)
	assert.JSONEq(t, `{"id":"ord1","status":"filled"}`, string(o.Doc))

	rows, total, err := x.OrdersByPair(ctx, "ECH-USD", "", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, rows, 1)

	_, total, err = x.OrdersByPair(ctx, "ECH-USD", "open", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	rows, total, err = x.OrdersByUser(ctx, "alice", "filled", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "ord1", rows[0].ID)

	tr, found, err := x.TradeByID(ctx, "tr1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "bob", tr.Seller)

	trades, total, err := x.TradesByPair(ctx, "ECH-USD", 0, 0, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, trades, 1)

	_, total, err = x.TradesByPair(ctx, "ECH-USD", 300, 0, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	trades, err = x.TradesByOrder(ctx, "ord2")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "tr1", trades[0].ID)

	trades, err = x.TradesByOrder(ctx, "ord9")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRebind(t *testing.T) {
	sqlite := &Index{driver: DriverSQLite}
	postgres := &Index{driver: DriverPostgres}

	q := `INSERT INTO t (a, b) VALUES (?, ?)`
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `INSERT INTO t (a, b) VALUES ($1, $2)`, postgres.rebind(q))
}

func TestUnknownDriverRejected(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.ErrorContains(t, err, "unknown index driver")
}
