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
// built-in defaults, applies STAKEBOARD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STAKEBOARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "STAKEBOARD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "STAKEBOARD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "STAKEBOARD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "STAKEBOARD_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WSURL, "STAKEBOARD_CHAIN_WS_URL")
	setInt64(&cfg.Chain.ChainID, "STAKEBOARD_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.StakingContract, "STAKEBOARD_CHAIN_STAKING_CONTRACT")
	setUint64(&cfg.Chain.Confirmations, "STAKEBOARD_CHAIN_CONFIRMATIONS")
	setInt64(&cfg.Chain.GasPriceCapGwei, "STAKEBOARD_CHAIN_GAS_PRICE_CAP_GWEI")
	setDuration(&cfg.Chain.ReceiptTimeout, "STAKEBOARD_CHAIN_RECEIPT_TIMEOUT")

	// ── Subgraph ──
	setStr(&cfg.Subgraph.URL, "STAKEBOARD_SUBGRAPH_URL")
	setStr(&cfg.Subgraph.APIKey, "STAKEBOARD_SUBGRAPH_API_KEY")
	setDuration(&cfg.Subgraph.RequestTimeout, "STAKEBOARD_SUBGRAPH_REQUEST_TIMEOUT")

	// ── Source ──
	setDuration(&cfg.Source.CacheTTL, "STAKEBOARD_SOURCE_CACHE_TTL")
	setDuration(&cfg.Source.FailureCooldown, "STAKEBOARD_SOURCE_FAILURE_COOLDOWN")
	setInt(&cfg.Source.Retries, "STAKEBOARD_SOURCE_RETRIES")
	setDuration(&cfg.Source.RetryBaseDelay, "STAKEBOARD_SOURCE_RETRY_BASE_DELAY")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.PendingTimeout, "STAKEBOARD_RECONCILE_PENDING_TIMEOUT")
	setDuration(&cfg.Reconcile.DisplayTick, "STAKEBOARD_RECONCILE_DISPLAY_TICK")
	setDuration(&cfg.Reconcile.PromoteTick, "STAKEBOARD_RECONCILE_PROMOTE_TICK")
	setDuration(&cfg.Reconcile.FuzzyTolerance, "STAKEBOARD_RECONCILE_FUZZY_TOLERANCE")
	setDuration(&cfg.Reconcile.DebounceWindow, "STAKEBOARD_RECONCILE_DEBOUNCE_WINDOW")

	// ── Actions ──
	setInt(&cfg.Actions.ApproveAttempts, "STAKEBOARD_ACTIONS_APPROVE_ATTEMPTS")
	setDuration(&cfg.Actions.ApproveBaseDelay, "STAKEBOARD_ACTIONS_APPROVE_BASE_DELAY")
	setDurationSlice(&cfg.Actions.RefreshBursts, "STAKEBOARD_ACTIONS_REFRESH_BURSTS")
	setDuration(&cfg.Actions.InflightTTL, "STAKEBOARD_ACTIONS_INFLIGHT_TTL")
	setInt(&cfg.Actions.RateLimit, "STAKEBOARD_ACTIONS_RATE_LIMIT")
	setDuration(&cfg.Actions.RateWindow, "STAKEBOARD_ACTIONS_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STAKEBOARD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STAKEBOARD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STAKEBOARD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STAKEBOARD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STAKEBOARD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STAKEBOARD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STAKEBOARD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STAKEBOARD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STAKEBOARD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STAKEBOARD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKEBOARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKEBOARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKEBOARD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKEBOARD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKEBOARD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKEBOARD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STAKEBOARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKEBOARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKEBOARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKEBOARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKEBOARD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKEBOARD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKEBOARD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STAKEBOARD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STAKEBOARD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKEBOARD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AuthToken, "STAKEBOARD_SERVER_AUTH_TOKEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKEBOARD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKEBOARD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKEBOARD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKEBOARD_NOTIFY_EVENTS")

	// ── Prices ──
	setBool(&cfg.Prices.Enabled, "STAKEBOARD_PRICES_ENABLED")
	setStr(&cfg.Prices.BaseURL, "STAKEBOARD_PRICES_BASE_URL")
	setStr(&cfg.Prices.APIKey, "STAKEBOARD_PRICES_API_KEY")
	setDuration(&cfg.Prices.RefreshInterval, "STAKEBOARD_PRICES_REFRESH_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "STAKEBOARD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "STAKEBOARD_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "STAKEBOARD_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKEBOARD_MODE")
	setStr(&cfg.LogLevel, "STAKEBOARD_LOG_LEVEL")
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

func setDurationSlice(dst *[]duration, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]duration, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if d, err := time.ParseDuration(p); err == nil {
				cleaned = append(cleaned, duration{d})
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
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
