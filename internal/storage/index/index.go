// Package index maintains the relational read projections behind the HTTP
// API: transaction history, journal events and order/trade snapshots. The
// block processor writes through after every applied transaction; the kv
// world state stays authoritative and the index is rebuildable from block
// replay.
//
// Two database/sql drivers are supported behind one schema: modernc.org's
// cgo-free sqlite (default, one file under the data dir) and lib/pq for
// nodes that point at PostgreSQL.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Index is a projection store over database/sql.
type Index struct {
	db     *sql.DB
	driver string
}

// Open connects, configures the pool and creates the schema. An empty
// driver selects sqlite.
func Open(ctx context.Context, driver, dsn string) (*Index, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unknown index driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if driver == DriverSQLite {
		// Single writer; sqlite returns SQLITE_BUSY under connection churn.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(4)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index: %w", err)
	}

	x := &Index{db: db, driver: driver}
	if err := x.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return x, nil
}

func (x *Index) Close() error { return x.db.Close() }

// rebind rewrites ? placeholders to $N for postgres. Queries are written
// once in sqlite's notation.
func (x *Index) rebind(query string) string {
	if x.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (x *Index) initSchema(ctx context.Context) error {
	// Portable DDL: TEXT, BIGINT and INTEGER mean the same thing to both
	// drivers; amounts are the padded strings, so TEXT comparison sorts
	// numerically.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			height     BIGINT NOT NULL,
			seq        INTEGER NOT NULL,
			type       INTEGER NOT NULL,
			type_name  TEXT NOT NULL,
			sender     TEXT NOT NULL,
			ok         INTEGER NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL DEFAULT '{}',
			timestamp  BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tx_accounts (
			tx_id    TEXT NOT NULL,
			account  TEXT NOT NULL,
			height   BIGINT NOT NULL,
			seq      INTEGER NOT NULL,
			PRIMARY KEY (tx_id, account)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			tx_id      TEXT NOT NULL,
			height     BIGINT NOT NULL,
			seq        INTEGER NOT NULL DEFAULT 0,
			category   TEXT NOT NULL,
			action     TEXT NOT NULL,
			actor      TEXT NOT NULL,
			pool_id    TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL DEFAULT '{}',
			timestamp  BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         TEXT PRIMARY KEY,
			pair_id    TEXT NOT NULL,
			account    TEXT NOT NULL,
			side       TEXT NOT NULL,
			status     TEXT NOT NULL,
			price      TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			doc        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id             TEXT PRIMARY KEY,
			pair_id        TEXT NOT NULL,
			maker_order_id TEXT NOT NULL,
			taker_order_id TEXT NOT NULL,
			buyer          TEXT NOT NULL,
			seller         TEXT NOT NULL,
			timestamp      BIGINT NOT NULL,
			doc            TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_height ON transactions(height, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_accounts_account ON tx_accounts(account, height, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_events_category ON events(category, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tx ON events(tx_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_pool ON events(pool_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_pair ON orders(pair_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_maker ON trades(maker_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_taker ON trades(taker_order_id)`,
	}
	for _, stmt := range stmts {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init index schema: %w", err)
		}
	}
	return nil
}
