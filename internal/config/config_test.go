package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate in serve mode.
func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe512961708279f1d3d0c7d1c8a9f1a1"
	cfg.Chain.StakingContract = "0x1111111111111111111111111111111111111111"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Reconcile.PendingTimeout = duration{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "pending_timeout")
}

func TestValidateRequiresSignerOnlyForServe(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")

	cfg.Mode = "monitor"
	require.NoError(t, cfg.Validate())
}

func TestValidateArchiveNeedsS3(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"

[chain]
rpc_url = "https://rpc.example.org"
chain_id = 97
staking_contract = "0x2222222222222222222222222222222222222222"
receipt_timeout = "90s"

[reconcile]
pending_timeout = "45s"
fuzzy_tolerance = "30m"

[actions]
refresh_bursts = ["2s", "5s"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("STAKEBOARD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STAKEBOARD_RECONCILE_PENDING_TIMEOUT", "75s")
	t.Setenv("STAKEBOARD_ACTIONS_REFRESH_BURSTS", "1s, 4s ,9s")

	cfg, err := Load(path)
	require.NoError(t, err)

	// file over defaults
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, int64(97), cfg.Chain.ChainID)
	assert.Equal(t, 90*time.Second, cfg.Chain.ReceiptTimeout.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.FuzzyTolerance.Duration)

	// env over file
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 75*time.Second, cfg.Reconcile.PendingTimeout.Duration)
	require.Len(t, cfg.Actions.RefreshBursts, 3)
	assert.Equal(t, 4*time.Second, cfg.Actions.RefreshBursts[1].Duration)

	// untouched defaults survive
	assert.Equal(t, 800*time.Millisecond, cfg.Reconcile.DebounceWindow.Duration)
	assert.Equal(t, 3, cfg.Actions.ApproveAttempts)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.KeyPassword = "hunter2"
	cfg.Subgraph.APIKey = "sg-key"
	cfg.Postgres.DSN = "postgres://app:supersecret@db:5432/stakeboard"
	cfg.Postgres.Password = "pg-pass"
	cfg.S3.AccessKey = "AKIAEXAMPLE"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.AuthToken = "bearer-token"
	cfg.Notify.TelegramToken = "123456:telegram"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"
	cfg.Prices.APIKey = "cg-key"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Wallet.KeyPassword)
	assert.Equal(t, "***", out.Subgraph.APIKey)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.AccessKey)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.AuthToken)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Equal(t, "***", out.Prices.APIKey)

	// empty secrets stay empty
	assert.Empty(t, out.Redis.Password)

	// non-secrets pass through
	assert.Equal(t, cfg.Chain.RPCURL, out.Chain.RPCURL)
	assert.Equal(t, cfg.Server.Port, out.Server.Port)
	assert.Equal(t, cfg.Postgres.Host, out.Postgres.Host)

	// the source config is untouched
	assert.Equal(t, "hunter2", cfg.Wallet.KeyPassword)
	assert.NotEqual(t, "***", cfg.Wallet.PrivateKey)
}

func TestRedactedConfigCopiesSlicesAndMaps(t *testing.T) {
	cfg := validConfig()
	cfg.Prices.Tokens = map[string]string{"0xabc": "binancecoin"}

	out := RedactedConfig(&cfg)
	out.Notify.Events[0] = "mutated"
	out.Server.CORSOrigins[0] = "mutated"
	out.Actions.RefreshBursts[0] = duration{time.Hour}
	out.Prices.Tokens["0xabc"] = "mutated"

	assert.Equal(t, "position.confirmed", cfg.Notify.Events[0])
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
	assert.Equal(t, time.Second, cfg.Actions.RefreshBursts[0].Duration)
	assert.Equal(t, "binancecoin", cfg.Prices.Tokens["0xabc"])
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)

	var back duration
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d.Duration, back.Duration)

	assert.Error(t, back.UnmarshalText([]byte("not-a-duration")))
}
