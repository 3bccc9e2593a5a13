package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/starstake/stakeboard/internal/blob/s3"
	"github.com/starstake/stakeboard/internal/bus"
	"github.com/starstake/stakeboard/internal/cache/redis"
	"github.com/starstake/stakeboard/internal/config"
	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/notify"
	"github.com/starstake/stakeboard/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	ActionStore  domain.ActionStore
	AuditStore   domain.AuditStore
	ProfileStore domain.ProfileStore

	// Caches
	PositionCache domain.PositionCache
	PackageCache  domain.PackageCache
	PriceCache    domain.PriceCache
	AnchorStore   domain.AnchorStore
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// In-process event fan-out. Services publish here; the websocket hub,
	// the promoter, the notifier and the Redis mirror all subscribe.
	Bus *bus.Bus

	// Blob storage (only when archiving is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Bus: bus.New(logger),
	}

	// --- PostgreSQL ---
	// Every mode needs it: serve and monitor journal actions and read
	// profiles, sync archives journal and audit rows.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.ActionStore = postgres.NewActionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.ProfileStore = postgres.NewProfileStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PositionCache = redis.NewPositionCache(redisClient)
	deps.PackageCache = redis.NewPackageCache(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.AnchorStore = redis.NewAnchorStore(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when the archive path is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.ActionStore,
			deps.AuditStore,
			deps.AuditStore,
			deps.Bus,
			logger,
		).WithVerifier(deps.BlobReader)
	}

	// --- Notifications ---
	if notifyConfigured(cfg) {
		var senders []notify.Sender
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(
				cfg.Notify.TelegramToken,
				cfg.Notify.TelegramChatID,
			))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
		}
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// notifyConfigured reports whether at least one notification channel has
// credentials. The dispatcher goroutine is pointless without one.
func notifyConfigured(cfg *config.Config) bool {
	return (cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "") ||
		strings.TrimSpace(cfg.Notify.DiscordWebhookURL) != ""
}

// explorerBase returns the tx link base for notifications, defaulting per
// chain when unset.
func explorerBase(cfg *config.Config) string {
	if cfg.Notify.ExplorerURL != "" {
		return cfg.Notify.ExplorerURL
	}
	return "https://bscscan.com/tx/"
}
