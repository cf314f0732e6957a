// Package config defines the top-level configuration for the profit harness
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HARNESS_* environment variables.
type Config struct {
	Harness       HarnessConfig  `toml:"harness"`
	Backend       string         `toml:"backend"`
	Chain         ChainConfig    `toml:"chain"`
	Wallet        WalletConfig   `toml:"wallet"`
	Venues        []VenueConfig  `toml:"venues"`
	Intermediates []string       `toml:"intermediates"`
	Memory        MemoryConfig   `toml:"memory"`
	Strategy      StrategyConfig `toml:"strategy"`
	Supabase      SupabaseConfig `toml:"supabase"`
	Redis         RedisConfig    `toml:"redis"`
	S3            S3Config       `toml:"s3"`
	Server        ServerConfig   `toml:"server"`
	Notify        NotifyConfig   `toml:"notify"`
	Mode          string         `toml:"mode"`
	LogLevel      string         `toml:"log_level"`
}

// HarnessConfig holds the execution harness parameters.
type HarnessConfig struct {
	// Account is the address whose balances are tracked. On the evm backend
	// it defaults to the wallet address.
	Account          string   `toml:"account"`
	Admin            string   `toml:"admin"`
	BaseAsset        string   `toml:"base_asset"`
	TrackedAssets    []string `toml:"tracked_assets"`
	SlippageBps      int      `toml:"slippage_bps"`
	SwapDeadline     duration `toml:"swap_deadline"`
	SettleAfterRun   bool     `toml:"settle_after_run"`
	ConcurrentQuotes bool     `toml:"concurrent_quotes"`
	LockKey          string   `toml:"lock_key"`
	LockTTL          duration `toml:"lock_ttl"`
}

// ChainConfig holds the EVM node connection parameters.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	UsePresets     bool     `toml:"use_presets"`
	GasLimit       uint64   `toml:"gas_limit"`
	ReceiptTimeout duration `toml:"receipt_timeout"`
	PollInterval   duration `toml:"poll_interval"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// VenueConfig describes one constant-product venue.
type VenueConfig struct {
	Name    string `toml:"name"`
	Router  string `toml:"router"`
	Factory string `toml:"factory"`
	FeeBps  int    `toml:"fee_bps"`
	Active  bool   `toml:"active"`
}

// MemoryConfig seeds the in-memory ledger and venues.
type MemoryConfig struct {
	GasLimit uint64          `toml:"gas_limit"`
	Tokens   []MemoryToken   `toml:"tokens"`
	Balances []MemoryBalance `toml:"balances"`
	Pools    []MemoryPool    `toml:"pools"`
}

// MemoryToken names an asset so reports can show symbols and formatted
// amounts.
type MemoryToken struct {
	Asset    string `toml:"asset"`
	Symbol   string `toml:"symbol"`
	Decimals int    `toml:"decimals"`
}

// MemoryBalance mints Amount of Asset to Account at startup. An empty
// Account means the harness account.
type MemoryBalance struct {
	Asset   string `toml:"asset"`
	Account string `toml:"account"`
	Amount  string `toml:"amount"`
}

// MemoryPool lists a pair on the named venue with the given reserves.
type MemoryPool struct {
	Venue    string `toml:"venue"`
	AssetA   string `toml:"asset_a"`
	AssetB   string `toml:"asset_b"`
	ReserveA string `toml:"reserve_a"`
	ReserveB string `toml:"reserve_b"`
}

// StrategyConfig selects the built-in strategy for run mode and the pair for
// quote mode.
type StrategyConfig struct {
	Name   string `toml:"name"`
	Token  string `toml:"token"`
	Amount string `toml:"amount"`
	Reason string `toml:"reason"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	ResultTTL    duration `toml:"result_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// HMACSecret enables signed admin requests (X-Harness-Signature).
	HMACSecret string   `toml:"hmac_secret"`
	HMACSkew   duration `toml:"hmac_skew"`
	// RateLimit is requests per RateWindow per client IP; zero disables it.
	// Needs redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Harness: HarnessConfig{
			SlippageBps:  500,
			SwapDeadline: duration{300 * time.Second},
			LockKey:      "harness:execute",
			LockTTL:      duration{10 * time.Minute},
		},
		Backend: "memory",
		Chain: ChainConfig{
			ChainID:        1,
			UsePresets:     true,
			GasLimit:       500_000,
			ReceiptTimeout: duration{2 * time.Minute},
			PollInterval:   duration{2 * time.Second},
		},
		Memory: MemoryConfig{
			GasLimit: 30_000_000,
		},
		Strategy: StrategyConfig{
			Name:   "noop",
			Reason: "strategy reverted",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			ResultTTL:    duration{24 * time.Hour},
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "harness-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			HMACSkew:    duration{30 * time.Second},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"execution_profitable", "execution_failed"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"run":   true,
	"quote": true,
}

// validBackends enumerates the accepted values for Config.Backend.
var validBackends = map[string]bool{
	"memory": true,
	"evm":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, run, quote)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validBackends[strings.ToLower(c.Backend)] {
		errs = append(errs, fmt.Sprintf("unknown backend %q (valid: memory, evm)", c.Backend))
	}

	// Harness
	if c.Harness.SlippageBps < 0 || c.Harness.SlippageBps > 10_000 {
		errs = append(errs, fmt.Sprintf("harness: slippage_bps must be 0-10000, got %d", c.Harness.SlippageBps))
	}
	if c.Harness.SwapDeadline.Duration <= 0 {
		errs = append(errs, "harness: swap_deadline must be > 0")
	}
	errs = checkAddress(errs, "harness: base_asset", c.Harness.BaseAsset, false)
	errs = checkAddress(errs, "harness: admin", c.Harness.Admin, false)
	errs = checkAddress(errs, "harness: account", c.Harness.Account, false)
	for _, a := range c.Harness.TrackedAssets {
		errs = checkAddress(errs, "harness: tracked_assets", a, false)
	}
	if c.Redis.Enabled && c.Harness.LockTTL.Duration <= 0 {
		errs = append(errs, "harness: lock_ttl must be > 0 when redis is enabled")
	}

	// Venues
	for i, v := range c.Venues {
		field := fmt.Sprintf("venues[%d]", i)
		if v.Name == "" {
			errs = append(errs, field+": name must not be empty")
		}
		errs = checkAddress(errs, field+": router", v.Router, true)
		errs = checkAddress(errs, field+": factory", v.Factory, false)
		if v.FeeBps < 0 || v.FeeBps >= 10_000 {
			errs = append(errs, fmt.Sprintf("%s: fee_bps must be 0-9999, got %d", field, v.FeeBps))
		}
	}
	if len(c.Venues) > 10 {
		errs = append(errs, fmt.Sprintf("venues: at most 10 venues, got %d", len(c.Venues)))
	}
	for _, a := range c.Intermediates {
		errs = checkAddress(errs, "intermediates", a, true)
	}

	// Backend specifics
	switch strings.ToLower(c.Backend) {
	case "evm":
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url is required for the evm backend")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for the evm backend")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	case "memory":
		if c.Harness.Account == "" {
			errs = append(errs, "harness: account is required for the memory backend")
		}
		for i, tk := range c.Memory.Tokens {
			field := fmt.Sprintf("memory.tokens[%d]", i)
			errs = checkAddress(errs, field+": asset", tk.Asset, true)
			if tk.Decimals < 0 || tk.Decimals > 77 {
				errs = append(errs, fmt.Sprintf("%s: decimals must be 0-77, got %d", field, tk.Decimals))
			}
		}
		for i, b := range c.Memory.Balances {
			field := fmt.Sprintf("memory.balances[%d]", i)
			errs = checkAddress(errs, field+": asset", b.Asset, false)
			errs = checkAddress(errs, field+": account", b.Account, false)
			errs = checkAmount(errs, field+": amount", b.Amount)
		}
		for i, p := range c.Memory.Pools {
			field := fmt.Sprintf("memory.pools[%d]", i)
			if p.Venue == "" {
				errs = append(errs, field+": venue must not be empty")
			}
			errs = checkAddress(errs, field+": asset_a", p.AssetA, true)
			errs = checkAddress(errs, field+": asset_b", p.AssetB, true)
			errs = checkAmount(errs, field+": reserve_a", p.ReserveA)
			errs = checkAmount(errs, field+": reserve_b", p.ReserveB)
		}
	}

	// Strategy
	if c.Strategy.Name == "round_trip" || c.Mode == "quote" {
		errs = checkAddress(errs, "strategy: token", c.Strategy.Token, true)
		errs = checkAmount(errs, "strategy: amount", c.Strategy.Amount)
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkAddress appends a problem when s is not a hex address. Empty values
// are only a problem when required is set.
func checkAddress(errs []string, field, s string, required bool) []string {
	if s == "" {
		if required {
			return append(errs, field+" must not be empty")
		}
		return errs
	}
	if strings.EqualFold(s, "native") {
		return errs
	}
	if !common.IsHexAddress(s) {
		return append(errs, fmt.Sprintf("%s: %q is not a hex address", field, s))
	}
	return errs
}

func checkAmount(errs []string, field, s string) []string {
	if _, err := ParseAmount(s); err != nil {
		return append(errs, fmt.Sprintf("%s: %v", field, err))
	}
	return errs
}

// ParseAmount parses a non-negative base-10 integer amount in the asset's
// smallest unit.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return v, nil
}
