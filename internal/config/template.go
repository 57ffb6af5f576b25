package config

import (
	"fmt"
	"os"
)

// defaultTOML is the file written by the init command. Values mirror
// setDefaults so an untouched file behaves exactly like no file.
const defaultTOML = `# echelond node configuration

[node]
data_dir = "data"
chain_id = "echelon"
master_account = "echelon"
native_symbol = "ECH"
native_decimals = 8
# Raw per-block native emission split across native farms by weight.
block_reward = "100000000"

[storage]
# pebble | leveldb | memory
backend = "pebble"
# kv entries kept in the read-through cache; 0 disables.
cache_size = 4096
# sqlite | postgres
index_driver = "sqlite"
# Empty selects <data_dir>/index.db; postgres needs a full DSN.
index_dsn = ""
# lz4 | none
blocklog_compression = "lz4"

[api]
enabled = true
bind = ":3000"
# Requests per second per client IP; 0 disables limiting.
rate_limit = 50.0
rate_burst = 100
read_timeout_sec = 15
write_timeout_sec = 30

[ingest]
# Block source base URL; empty runs the node API-only.
source_url = ""
poll_interval_ms = 3000
queue_size = 64
start_height = 1

[market]
# Raw integer cap on order quantity.
max_trade_amount = "1000000000000000000000"

[security]
require_signatures = false

# Peer URLs advertised on /peers.
peers = []

# Trading pairs seeded at first boot.
# [[genesis_pairs]]
# base = "ECH"
# quote = "USD"
`

// WriteDefault writes the commented default config. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}
