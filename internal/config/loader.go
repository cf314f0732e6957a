package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HARNESS_* environment variable overrides, and
// returns the final Config. Chain presets are applied last so explicit venues
// and intermediates always win. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	ApplyPresets(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HARNESS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Harness ──
	setStr(&cfg.Harness.Account, "HARNESS_ACCOUNT")
	setStr(&cfg.Harness.Admin, "HARNESS_ADMIN")
	setStr(&cfg.Harness.BaseAsset, "HARNESS_BASE_ASSET")
	setStringSlice(&cfg.Harness.TrackedAssets, "HARNESS_TRACKED_ASSETS")
	setInt(&cfg.Harness.SlippageBps, "HARNESS_SLIPPAGE_BPS")
	setDuration(&cfg.Harness.SwapDeadline, "HARNESS_SWAP_DEADLINE")
	setBool(&cfg.Harness.SettleAfterRun, "HARNESS_SETTLE_AFTER_RUN")
	setBool(&cfg.Harness.ConcurrentQuotes, "HARNESS_CONCURRENT_QUOTES")
	setStr(&cfg.Harness.LockKey, "HARNESS_LOCK_KEY")
	setDuration(&cfg.Harness.LockTTL, "HARNESS_LOCK_TTL")

	// ── Backend / chain ──
	setStr(&cfg.Backend, "HARNESS_BACKEND")
	setStr(&cfg.Chain.RPCURL, "HARNESS_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "HARNESS_CHAIN_ID")
	setBool(&cfg.Chain.UsePresets, "HARNESS_CHAIN_USE_PRESETS")
	setUint64(&cfg.Chain.GasLimit, "HARNESS_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.ReceiptTimeout, "HARNESS_CHAIN_RECEIPT_TIMEOUT")
	setStringSlice(&cfg.Intermediates, "HARNESS_INTERMEDIATES")
	setUint64(&cfg.Memory.GasLimit, "HARNESS_MEMORY_GAS_LIMIT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "HARNESS_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "HARNESS_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "HARNESS_WALLET_KEY_PASSWORD")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "HARNESS_STRATEGY_NAME")
	setStr(&cfg.Strategy.Token, "HARNESS_STRATEGY_TOKEN")
	setStr(&cfg.Strategy.Amount, "HARNESS_STRATEGY_AMOUNT")
	setStr(&cfg.Strategy.Reason, "HARNESS_STRATEGY_REASON")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "HARNESS_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "HARNESS_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "HARNESS_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "HARNESS_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "HARNESS_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "HARNESS_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "HARNESS_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "HARNESS_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "HARNESS_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "HARNESS_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "HARNESS_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "HARNESS_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HARNESS_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HARNESS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HARNESS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HARNESS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HARNESS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HARNESS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HARNESS_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.ResultTTL, "HARNESS_REDIS_RESULT_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "HARNESS_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HARNESS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HARNESS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HARNESS_S3_REGION")
	setStr(&cfg.S3.Bucket, "HARNESS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HARNESS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HARNESS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HARNESS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HARNESS_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "HARNESS_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HARNESS_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HARNESS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.HMACSecret, "HARNESS_SERVER_HMAC_SECRET")
	setDuration(&cfg.Server.HMACSkew, "HARNESS_SERVER_HMAC_SKEW")
	setInt(&cfg.Server.RateLimit, "HARNESS_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "HARNESS_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HARNESS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HARNESS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HARNESS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HARNESS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HARNESS_MODE")
	setStr(&cfg.LogLevel, "HARNESS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
