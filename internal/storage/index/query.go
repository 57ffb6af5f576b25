package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// TxFilter narrows an account's transaction history. DataKey/DataValue
// match against the decoded payload, so they filter in Go after the SQL
// page is fetched.
type TxFilter struct {
	TypeName  string
	DataKey   string
	DataValue string
	Limit     int
	Skip      int
}

// EventFilter narrows the journal query surface.
type EventFilter struct {
	Category  string
	Action    string
	Actor     string
	TxID      string
	PoolID    string
	StartTime int64
	EndTime   int64
	Ascending bool
	Limit     int
	Skip      int
}

// CategoryCount is one /events/stats bucket.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

func limitClause(limit, skip int) string {
	clause := ""
	if limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", limit)
	}
	if skip > 0 {
		clause += fmt.Sprintf(" OFFSET %d", skip)
	}
	return clause
}

// AccountTxs returns an account's transaction history, newest first, with
// the total match count before paging.
func (x *Index) AccountTxs(ctx context.Context, account string, f TxFilter) ([]TxRow, int64, error) {
	where := []string{"a.account = ?"}
	args := []any{account}
	if f.TypeName != "" {
		where = append(where, "t.type_name = ?")
		args = append(args, f.TypeName)
	}
	base := `FROM transactions t JOIN tx_accounts a ON a.tx_id = t.id WHERE ` + strings.Join(where, " AND ")

	// Payload filters cannot be pushed into portable SQL; fetch the ordered
	// match set and filter here. Histories are per-account, so the set is
	// small.
	page := limitClause(f.Limit, f.Skip)
	if f.DataKey != "" {
		page = ""
	}

	rows, err := x.db.QueryContext(ctx, x.rebind(
		`SELECT t.id, t.height, t.seq, t.type, t.type_name, t.sender, t.ok, t.error, t.data, t.timestamp `+
			base+` ORDER BY t.height DESC, t.seq DESC`+page), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query account txs: %w", err)
	}
	defer rows.Close()

	var out []TxRow
	for rows.Next() {
		var r TxRow
		var height int64
		var ok int
		if err := rows.Scan(&r.ID, &height, &r.Seq, &r.Type, &r.TypeName, &r.Sender, &ok, &r.Error, &r.Data, &r.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("scan tx row: %w", err)
		}
		r.Height = uint64(height)
		r.OK = ok == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if f.DataKey != "" {
		out = filterByData(out, f.DataKey, f.DataValue)
		total := int64(len(out))
		out = pageSlice(out, f.Limit, f.Skip)
		return out, total, nil
	}

	var total int64
	if err := x.db.QueryRowContext(ctx, x.rebind(`SELECT COUNT(*) `+base), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count account txs: %w", err)
	}
	return out, total, nil
}

func filterByData(rows []TxRow, key, value string) []TxRow {
	var kept []TxRow
	for _, r := range rows {
		var data map[string]any
		if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
			continue
		}
		v, found := data[key]
		if !found {
			continue
		}
		if value == "" || fmt.Sprint(v) == value {
			kept = append(kept, r)
		}
	}
	return kept
}

func pageSlice[T any](rows []T, limit, skip int) []T {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// Events queries the journal with the total match count before paging.
func (x *Index) Events(ctx context.Context, f EventFilter) ([]EventRow, int64, error) {
	where := []string{"1 = 1"}
	var args []any
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.Actor != "" {
		add("actor = ?", f.Actor)
	}
	if f.TxID != "" {
		add("tx_id = ?", f.TxID)
	}
	if f.PoolID != "" {
		add("pool_id = ?", f.PoolID)
	}
	if f.StartTime > 0 {
		add("timestamp >= ?", f.StartTime)
	}
	if f.EndTime > 0 {
		add("timestamp <= ?", f.EndTime)
	}
	base := `FROM events WHERE ` + strings.Join(where, " AND ")

	var total int64
	if err := x.db.QueryRowContext(ctx, x.rebind(`SELECT COUNT(*) `+base), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	order := " ORDER BY height DESC, seq DESC"
	if f.Ascending {
		order = " ORDER BY height ASC, seq ASC"
	}
	rows, err := x.db.QueryContext(ctx, x.rebind(
		`SELECT id, tx_id, height, seq, category, action, actor, pool_id, data, timestamp `+
			base+order+limitClause(f.Limit, f.Skip)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func scanEvent(rows *sql.Rows) (EventRow, error) {
	var r EventRow
	var height int64
	if err := rows.Scan(&r.ID, &r.TxID, &height, &r.Seq, &r.Category, &r.Action, &r.Actor, &r.PoolID, &r.Data, &r.Timestamp); err != nil {
		return EventRow{}, fmt.Errorf("scan event row: %w", err)
	}
	r.Height = uint64(height)
	return r, nil
}

// EventByID fetches one journal record.
func (x *Index) EventByID(ctx context.Context, id string) (EventRow, bool, error) {
	rows, err := x.db.QueryContext(ctx, x.rebind(
		`SELECT id, tx_id, height, seq, category, action, actor, pool_id, data, timestamp FROM events WHERE id = ?`), id)
	if err != nil {
		return EventRow{}, false, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return EventRow{}, false, rows.Err()
	}
	r, err := scanEvent(rows)
	if err != nil {
		return EventRow{}, false, err
	}
	return r, true, nil
}

// EventActions lists the distinct actions seen in the journal.
func (x *Index) EventActions(ctx context.Context) ([]string, error) {
	return x.distinct(ctx, `SELECT DISTINCT action FROM events ORDER BY action`)
}

// EventCategories lists the distinct categories seen in the journal.
func (x *Index) EventCategories(ctx context.Context) ([]string, error) {
	return x.distinct(ctx, `SELECT DISTINCT category FROM events ORDER BY category`)
}

func (x *Index) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventStats returns per-category counts and the journal total.
func (x *Index) EventStats(ctx context.Context) ([]CategoryCount, int64, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM events GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, 0, fmt.Errorf("query event stats: %w", err)
	}
	defer rows.Close()
	var out []CategoryCount
	var total int64
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, 0, err
		}
		total += c.Count
		out = append(out, c)
	}
	return out, total, rows.Err()
}

const orderColumns = `id, pair_id, account, side, status, price, created_at, updated_at, doc`

func scanOrder(rows *sql.Rows) (OrderRow, error) {
	var o OrderRow
	var doc string
	if err := rows.Scan(&o.ID, &o.PairID, &o.Account, &o.Side, &o.Status, &o.Price, &o.CreatedAt, &o.UpdatedAt, &doc); err != nil {
		return OrderRow{}, fmt.Errorf("scan order row: %w", err)
	}
	o.Doc = []byte(doc)
	return o, nil
}

// OrderByID fetches one order snapshot.
func (x *Index) OrderByID(ctx context.Context, id string) (OrderRow, bool, error) {
	rows, err := x.db.QueryContext(ctx, x.rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	if err != nil {
		return OrderRow{}, false, fmt.Errorf("query order: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return OrderRow{}, false, rows.Err()
	}
	o, err := scanOrder(rows)
	if err != nil {
		return OrderRow{}, false, err
	}
	return o, true, nil
}

// OrdersByPair lists a pair's orders, optionally filtered by status,
// newest first.
func (x *Index) OrdersByPair(ctx context.Context, pairID, status string, limit, skip int) ([]OrderRow, int64, error) {
	return x.orders(ctx, "pair_id = ?", pairID, status, limit, skip)
}

// OrdersByUser lists an account's orders, optionally filtered by status,
// newest first.
func (x *Index) OrdersByUser(ctx context.Context, account, status string, limit, skip int) ([]OrderRow, int64, error) {
	return x.orders(ctx, "account = ?", account, status, limit, skip)
}

func (x *Index) orders(ctx context.Context, keyClause string, keyArg any, status string, limit, skip int) ([]OrderRow, int64, error) {
	where := keyClause
	args := []any{keyArg}
	if status != "" {
		where += " AND status = ?"
		args = append(args, status)
	}

	var total int64
	if err := x.db.QueryRowContext(ctx, x.rebind(`SELECT COUNT(*) FROM orders WHERE `+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, x.rebind(
		`SELECT `+orderColumns+` FROM orders WHERE `+where+
			` ORDER BY created_at DESC, id`+limitClause(limit, skip)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

const tradeColumns = `id, pair_id, maker_order_id, taker_order_id, buyer, seller, timestamp, doc`

func scanTrade(rows *sql.Rows) (TradeRow, error) {
	var tr TradeRow
	var doc string
	if err := rows.Scan(&tr.ID, &tr.PairID, &tr.MakerOrderID, &tr.TakerOrderID, &tr.Buyer, &tr.Seller, &tr.Timestamp, &doc); err != nil {
		return TradeRow{}, fmt.Errorf("scan trade row: %w", err)
	}
	tr.Doc = []byte(doc)
	return tr, nil
}

// TradeByID fetches one fill.
func (x *Index) TradeByID(ctx context.Context, id string) (TradeRow, bool, error) {
	rows, err := x.db.QueryContext(ctx, x.rebind(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`), id)
	if err != nil {
		return TradeRow{}, false, fmt.Errorf("query trade: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return TradeRow{}, false, rows.Err()
	}
	tr, err := scanTrade(rows)
	if err != nil {
		return TradeRow{}, false, err
	}
	return tr, true, nil
}

// TradesByPair lists a pair's fills newest first, bounded by an optional
// timestamp window.
func (x *Index) TradesByPair(ctx context.Context, pairID string, fromTs, toTs int64, limit, skip int) ([]TradeRow, int64, error) {
	where := "pair_id = ?"
	args := []any{pairID}
	if fromTs > 0 {
		where += " AND timestamp >= ?"
		args = append(args, fromTs)
	}
	if toTs > 0 {
		where += " AND timestamp <= ?"
		args = append(args, toTs)
	}

	var total int64
	if err := x.db.QueryRowContext(ctx, x.rebind(`SELECT COUNT(*) FROM trades WHERE `+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trades: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, x.rebind(
		`SELECT `+tradeColumns+` FROM trades WHERE `+where+
			` ORDER BY timestamp DESC, id`+limitClause(limit, skip)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tr)
	}
	return out, total, rows.Err()
}

// TradesByOrder lists the fills an order took part in, either side.
func (x *Index) TradesByOrder(ctx context.Context, orderID string) ([]TradeRow, error) {
	rows, err := x.db.QueryContext(ctx, x.rebind(
		`SELECT `+tradeColumns+` FROM trades
		 WHERE maker_order_id = ? OR taker_order_id = ?
		 ORDER BY timestamp, id`), orderID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query trades by order: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
