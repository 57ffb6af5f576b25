package index

import (
	"context"
	"fmt"
)

// TxRow is one executed transaction.
type TxRow struct {
	ID        string `json:"id"`
	Height    uint64 `json:"height"`
	Seq       int    `json:"seq"`
	Type      uint16 `json:"type"`
	TypeName  string `json:"typeName"`
	Sender    string `json:"sender"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// EventRow is one journal record, flattened for querying. Seq orders
// events across a whole block.
type EventRow struct {
	ID        string `json:"id"`
	TxID      string `json:"transactionId"`
	Height    uint64 `json:"height"`
	Seq       int    `json:"-"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	PoolID    string `json:"poolId,omitempty"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// OrderRow snapshots the current state of an order. Doc carries the full
// JSON document; the other columns exist to be queried.
type OrderRow struct {
	ID        string
	PairID    string
	Account   string
	Side      string
	Status    string
	Price     string
	CreatedAt int64
	UpdatedAt int64
	Doc       []byte
}

// TradeRow is one fill. Trades are immutable once written.
type TradeRow struct {
	ID           string
	PairID       string
	MakerOrderID string
	TakerOrderID string
	Buyer        string
	Seller       string
	Timestamp    int64
	Doc          []byte
}

// RecordTx writes everything one receipt produced in a single database
// transaction: the tx row, its touched accounts, its events and the
// order/trade snapshots the events reference. Re-running the same receipt
// (replay) is idempotent.
func (x *Index) RecordTx(ctx context.Context, row TxRow, accounts []string, events []EventRow, orders []OrderRow, trades []TradeRow) error {
	dbtx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index tx begin: %w", err)
	}
	defer dbtx.Rollback()

	ok := 0
	if row.OK {
		ok = 1
	}
	_, err = dbtx.ExecContext(ctx, x.rebind(
		`INSERT INTO transactions (id, height, seq, type, type_name, sender, ok, error, data, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		row.ID, int64(row.Height), row.Seq, int(row.Type), row.TypeName, row.Sender, ok, row.Error, row.Data, row.Timestamp)
	if err != nil {
		return fmt.Errorf("index tx %s: %w", row.ID, err)
	}

	for _, acct := range accounts {
		_, err = dbtx.ExecContext(ctx, x.rebind(
			`INSERT INTO tx_accounts (tx_id, account, height, seq)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (tx_id, account) DO NOTHING`),
			row.ID, acct, int64(row.Height), row.Seq)
		if err != nil {
			return fmt.Errorf("index tx account %s/%s: %w", row.ID, acct, err)
		}
	}

	for _, evt := range events {
		_, err = dbtx.ExecContext(ctx, x.rebind(
			`INSERT INTO events (id, tx_id, height, seq, category, action, actor, pool_id, data, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`),
			evt.ID, evt.TxID, int64(evt.Height), evt.Seq, evt.Category, evt.Action, evt.Actor, evt.PoolID, evt.Data, evt.Timestamp)
		if err != nil {
			return fmt.Errorf("index event %s: %w", evt.ID, err)
		}
	}

	for _, o := range orders {
		_, err = dbtx.ExecContext(ctx, x.rebind(
			`INSERT INTO orders (id, pair_id, account, side, status, price, created_at, updated_at, doc)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				status = excluded.status,
				updated_at = excluded.updated_at,
				doc = excluded.doc`),
			o.ID, o.PairID, o.Account, o.Side, o.Status, o.Price, o.CreatedAt, o.UpdatedAt, string(o.Doc))
		if err != nil {
			return fmt.Errorf("index order %s: %w", o.ID, err)
		}
	}

	for _, tr := range trades {
		_, err = dbtx.ExecContext(ctx, x.rebind(
			`INSERT INTO trades (id, pair_id, maker_order_id, taker_order_id, buyer, seller, timestamp, doc)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`),
			tr.ID, tr.PairID, tr.MakerOrderID, tr.TakerOrderID, tr.Buyer, tr.Seller, tr.Timestamp, string(tr.Doc))
		if err != nil {
			return fmt.Errorf("index trade %s: %w", tr.ID, err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("index tx commit: %w", err)
	}
	return nil
}
