// Package config defines the top-level configuration for the stakeboard
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STAKEBOARD_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Subgraph  SubgraphConfig  `toml:"subgraph"`
	Source    SourceConfig    `toml:"source"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Actions   ActionsConfig   `toml:"actions"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Prices    PricesConfig    `toml:"prices"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the operator wallet used to sign stake, claim and
// unstake transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoints and staking contract parameters.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	WSURL           string   `toml:"ws_url"`
	ChainID         int64    `toml:"chain_id"`
	StakingContract string   `toml:"staking_contract"`
	Confirmations   uint64   `toml:"confirmations"`
	GasPriceCapGwei int64    `toml:"gas_price_cap_gwei"`
	ReceiptTimeout  duration `toml:"receipt_timeout"`
}

// SubgraphConfig holds the GraphQL indexer endpoint.
type SubgraphConfig struct {
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	RequestTimeout duration `toml:"request_timeout"`
}

// SourceConfig tunes the dual-source position reads.
type SourceConfig struct {
	CacheTTL        duration `toml:"cache_ttl"`
	FailureCooldown duration `toml:"failure_cooldown"`
	Retries         int      `toml:"retries"`
	RetryBaseDelay  duration `toml:"retry_base_delay"`
	PollInterval    duration `toml:"poll_interval"` // background refresh of tracked wallets
}

// ReconcileConfig tunes the optimistic reconciliation engine.
type ReconcileConfig struct {
	PendingTimeout duration `toml:"pending_timeout"`
	DisplayTick    duration `toml:"display_tick"`
	PromoteTick    duration `toml:"promote_tick"`
	FuzzyTolerance duration `toml:"fuzzy_tolerance"`
	DebounceWindow duration `toml:"debounce_window"`
}

// ActionsConfig tunes the on-chain action orchestrator.
type ActionsConfig struct {
	ApproveAttempts  int        `toml:"approve_attempts"`
	ApproveBaseDelay duration   `toml:"approve_base_delay"`
	RefreshBursts    []duration `toml:"refresh_bursts"`
	InflightTTL      duration   `toml:"inflight_ttl"`
	RateLimit        int        `toml:"rate_limit"`
	RateWindow       duration   `toml:"rate_window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
	RateLimit   int      `toml:"rate_limit"` // requests per client IP per window
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	ExplorerURL       string   `toml:"explorer_url"` // tx link base for alert messages
}

// PricesConfig holds the token price feed parameters.
type PricesConfig struct {
	Enabled         bool              `toml:"enabled"`
	BaseURL         string            `toml:"base_url"`
	APIKey          string            `toml:"api_key"`
	RefreshInterval duration          `toml:"refresh_interval"`
	Tokens          map[string]string `toml:"tokens"` // token address -> feed id
}

// ArchiveConfig holds journal/audit cold-storage parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:          "http://localhost:8545",
			ChainID:         56,
			Confirmations:   1,
			GasPriceCapGwei: 30,
			ReceiptTimeout:  duration{3 * time.Minute},
		},
		Subgraph: SubgraphConfig{
			RequestTimeout: duration{15 * time.Second},
		},
		Source: SourceConfig{
			CacheTTL:        duration{60 * time.Second},
			FailureCooldown: duration{90 * time.Second},
			Retries:         3,
			RetryBaseDelay:  duration{500 * time.Millisecond},
			PollInterval:    duration{30 * time.Second},
		},
		Reconcile: ReconcileConfig{
			PendingTimeout: duration{120 * time.Second},
			DisplayTick:    duration{time.Second},
			PromoteTick:    duration{5 * time.Second},
			FuzzyTolerance: duration{2 * time.Hour},
			DebounceWindow: duration{800 * time.Millisecond},
		},
		Actions: ActionsConfig{
			ApproveAttempts:  3,
			ApproveBaseDelay: duration{2 * time.Second},
			RefreshBursts:    []duration{{time.Second}, {3 * time.Second}, {7 * time.Second}},
			InflightTTL:      duration{10 * time.Minute},
			RateLimit:        12,
			RateWindow:       duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "stakeboard",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stakeboard-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:      []string{"position.confirmed", "action.failed", "archive.completed"},
			ExplorerURL: "https://bscscan.com/tx/",
		},
		Prices: PricesConfig{
			Enabled:         false,
			BaseURL:         "https://api.coingecko.com/api/v3",
			RefreshInterval: duration{2 * time.Minute},
			Tokens:          map[string]string{},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"monitor": true,
	"sync":    true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, monitor, sync)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: serve mode submits transactions and needs a signer.
	if strings.ToLower(c.Mode) == "serve" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode serve")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.StakingContract == "" {
		errs = append(errs, "chain: staking_contract must not be empty")
	}
	if c.Chain.Confirmations == 0 {
		errs = append(errs, "chain: confirmations must be >= 1")
	}

	// Subgraph is optional; chain reads cover for it. When set it must be a URL.
	if c.Subgraph.URL != "" && !strings.HasPrefix(c.Subgraph.URL, "http") {
		errs = append(errs, "subgraph: url must be an http(s) endpoint")
	}

	// Source
	if c.Source.CacheTTL.Duration < 0 {
		errs = append(errs, "source: cache_ttl must not be negative")
	}
	if c.Source.Retries < 1 {
		errs = append(errs, "source: retries must be >= 1")
	}

	// Reconcile
	if c.Reconcile.PendingTimeout.Duration <= 0 {
		errs = append(errs, "reconcile: pending_timeout must be > 0")
	}
	if c.Reconcile.PromoteTick.Duration <= 0 {
		errs = append(errs, "reconcile: promote_tick must be > 0")
	}
	if c.Reconcile.FuzzyTolerance.Duration < 0 {
		errs = append(errs, "reconcile: fuzzy_tolerance must not be negative")
	}

	// Actions
	if c.Actions.ApproveAttempts < 1 {
		errs = append(errs, "actions: approve_attempts must be >= 1")
	}
	if c.Actions.RateLimit < 1 {
		errs = append(errs, "actions: rate_limit must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: only the archive path needs it.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Prices
	if c.Prices.Enabled {
		if c.Prices.BaseURL == "" {
			errs = append(errs, "prices: base_url must not be empty when enabled")
		}
		if c.Prices.RefreshInterval.Duration <= 0 {
			errs = append(errs, "prices: refresh_interval must be > 0 when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
