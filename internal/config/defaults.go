package config

import "github.com/spf13/viper"

// setDefaults installs the chain defaults; a missing config file yields a
// fully working node pointed at nothing.
func setDefaults(v *viper.Viper) {
	v.SetDefault("node.data_dir", "data")
	v.SetDefault("node.chain_id", "echelon")
	v.SetDefault("node.master_account", "echelon")
	v.SetDefault("node.native_symbol", "ECH")
	v.SetDefault("node.native_decimals", 8)
	v.SetDefault("node.block_reward", "100000000") // 1 ECH

	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.cache_size", 4096)
	v.SetDefault("storage.index_driver", "sqlite")
	v.SetDefault("storage.index_dsn", "")
	v.SetDefault("storage.blocklog_compression", "lz4")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", ":3000")
	v.SetDefault("api.rate_limit", 50)
	v.SetDefault("api.rate_burst", 100)
	v.SetDefault("api.read_timeout_sec", 15)
	v.SetDefault("api.write_timeout_sec", 30)

	v.SetDefault("ingest.source_url", "")
	v.SetDefault("ingest.poll_interval_ms", 3000) // source-chain block cadence
	v.SetDefault("ingest.queue_size", 64)
	v.SetDefault("ingest.start_height", 1)

	v.SetDefault("market.max_trade_amount", "1000000000000000000000")

	v.SetDefault("security.require_signatures", false)

	v.SetDefault("peers", []string{})
}
