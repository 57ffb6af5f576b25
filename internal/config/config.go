// Package config loads the node configuration from a TOML file, ECHELOND_
// environment overrides and built-in defaults, then validates the result.
package config

import (
	"path/filepath"
)

// DefaultFile is the config file looked up in the working directory when
// no --conf flag is given.
const DefaultFile = "echelond.toml"

// Config is the complete node configuration.
type Config struct {
	Node     NodeConfig     `toml:"node" mapstructure:"node"`
	Storage  StorageConfig  `toml:"storage" mapstructure:"storage"`
	API      APIConfig      `toml:"api" mapstructure:"api"`
	Ingest   IngestConfig   `toml:"ingest" mapstructure:"ingest"`
	Market   MarketConfig   `toml:"market" mapstructure:"market"`
	Security SecurityConfig `toml:"security" mapstructure:"security"`

	// Peers are advertised verbatim on /peers.
	Peers []string `toml:"peers" mapstructure:"peers"`

	// GenesisPairs are trading pairs seeded at first boot.
	GenesisPairs []GenesisPair `toml:"genesis_pairs" mapstructure:"genesis_pairs"`

	configPath string `toml:"-" mapstructure:"-"`
}

// NodeConfig identifies the chain this node follows.
type NodeConfig struct {
	DataDir        string `toml:"data_dir" mapstructure:"data_dir"`
	ChainID        string `toml:"chain_id" mapstructure:"chain_id"`
	MasterAccount  string `toml:"master_account" mapstructure:"master_account"`
	NativeSymbol   string `toml:"native_symbol" mapstructure:"native_symbol"`
	NativeDecimals int    `toml:"native_decimals" mapstructure:"native_decimals"`
	// BlockReward is the raw per-block native emission split across
	// native farms by weight.
	BlockReward string `toml:"block_reward" mapstructure:"block_reward"`
}

// StorageConfig selects the kv backend and the relational index driver.
type StorageConfig struct {
	Backend string `toml:"backend" mapstructure:"backend"`
	// CacheSize is the number of kv entries kept in the read-through
	// cache; zero disables caching.
	CacheSize   int    `toml:"cache_size" mapstructure:"cache_size"`
	IndexDriver string `toml:"index_driver" mapstructure:"index_driver"`
	// IndexDSN overrides the index location. Empty selects
	// <data_dir>/index.db for sqlite; postgres requires an explicit DSN.
	IndexDSN            string `toml:"index_dsn" mapstructure:"index_dsn"`
	BlocklogCompression string `toml:"blocklog_compression" mapstructure:"blocklog_compression"`
}

// APIConfig controls the HTTP read surface.
type APIConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Bind    string `toml:"bind" mapstructure:"bind"`
	// RateLimit is requests per second per client IP; zero disables
	// limiting.
	RateLimit       float64 `toml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst       int     `toml:"rate_burst" mapstructure:"rate_burst"`
	ReadTimeoutSec  int     `toml:"read_timeout_sec" mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int     `toml:"write_timeout_sec" mapstructure:"write_timeout_sec"`
}

// IngestConfig points the node at its block source. An empty SourceURL
// runs the node API-only, serving whatever state it already has.
type IngestConfig struct {
	SourceURL      string `toml:"source_url" mapstructure:"source_url"`
	PollIntervalMS int    `toml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	QueueSize      int    `toml:"queue_size" mapstructure:"queue_size"`
	StartHeight    uint64 `toml:"start_height" mapstructure:"start_height"`
}

// MarketConfig carries the exchange-wide order limits.
type MarketConfig struct {
	// MaxTradeAmount is a raw integer cap on order quantity.
	MaxTradeAmount string `toml:"max_trade_amount" mapstructure:"max_trade_amount"`
}

// SecurityConfig gates envelope signature verification.
type SecurityConfig struct {
	RequireSignatures bool `toml:"require_signatures" mapstructure:"require_signatures"`
}

// GenesisPair seeds one trading pair at bootstrap.
type GenesisPair struct {
	Base  string `toml:"base" mapstructure:"base"`
	Quote string `toml:"quote" mapstructure:"quote"`
}

// Path returns the file this config was loaded from, empty when running
// on defaults only.
func (c *Config) Path() string { return c.configPath }

// KVPath is the chain state directory under the data dir.
func (c *Config) KVPath() string { return filepath.Join(c.Node.DataDir, "chain") }

// ResolvedIndexDSN returns the DSN the index should open, defaulting
// sqlite to a file under the data dir.
func (c *Config) ResolvedIndexDSN() string {
	if c.Storage.IndexDSN != "" {
		return c.Storage.IndexDSN
	}
	return filepath.Join(c.Node.DataDir, "index.db")
}
