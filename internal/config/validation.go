package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects configurations the node cannot run with. It checks
// shapes and enumerations, not reachability.
func Validate(c *Config) error {
	if err := validateNode(&c.Node); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := validateStorage(c); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := validateAPI(&c.API); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := validateIngest(&c.Ingest); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if !isRawAmount(c.Market.MaxTradeAmount) {
		return fmt.Errorf("market: max_trade_amount %q is not a raw integer amount", c.Market.MaxTradeAmount)
	}
	for i, p := range c.GenesisPairs {
		if p.Base == "" || p.Quote == "" {
			return fmt.Errorf("genesis_pairs[%d]: base and quote are required", i)
		}
		if p.Base == p.Quote {
			return fmt.Errorf("genesis_pairs[%d]: base and quote must differ", i)
		}
	}
	return nil
}

func validateNode(n *NodeConfig) error {
	if n.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if n.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if n.MasterAccount == "" {
		return fmt.Errorf("master_account is required")
	}
	if n.NativeSymbol == "" || n.NativeSymbol != strings.ToUpper(n.NativeSymbol) {
		return fmt.Errorf("native_symbol %q must be uppercase", n.NativeSymbol)
	}
	if n.NativeDecimals < 0 || n.NativeDecimals > 18 {
		return fmt.Errorf("native_decimals %d out of range 0..18", n.NativeDecimals)
	}
	if !isRawAmount(n.BlockReward) {
		return fmt.Errorf("block_reward %q is not a raw integer amount", n.BlockReward)
	}
	return nil
}

func validateStorage(c *Config) error {
	switch c.Storage.Backend {
	case "pebble", "leveldb", "memory":
	default:
		return fmt.Errorf("unknown backend %q (pebble, leveldb or memory)", c.Storage.Backend)
	}
	if c.Storage.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	switch c.Storage.IndexDriver {
	case "sqlite":
	case "postgres":
		if c.Storage.IndexDSN == "" {
			return fmt.Errorf("index_driver postgres requires index_dsn")
		}
	default:
		return fmt.Errorf("unknown index_driver %q (sqlite or postgres)", c.Storage.IndexDriver)
	}
	switch c.Storage.BlocklogCompression {
	case "lz4", "none":
	default:
		return fmt.Errorf("unknown blocklog_compression %q (lz4 or none)", c.Storage.BlocklogCompression)
	}
	return nil
}

func validateAPI(a *APIConfig) error {
	if !a.Enabled {
		return nil
	}
	if a.Bind == "" {
		return fmt.Errorf("bind is required when the api is enabled")
	}
	if a.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if a.RateLimit > 0 && a.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}
	if a.ReadTimeoutSec < 0 || a.WriteTimeoutSec < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func validateIngest(i *IngestConfig) error {
	if i.SourceURL != "" {
		u, err := url.Parse(i.SourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source_url %q must be an http(s) URL", i.SourceURL)
		}
	}
	if i.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if i.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive")
	}
	return nil
}

// isRawAmount accepts non-empty unsigned integer strings, the persisted
// amount form.
func isRawAmount(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
