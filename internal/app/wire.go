package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/adjust481/PolySniper/internal/blob/s3"
	"github.com/adjust481/PolySniper/internal/cache/redis"
	"github.com/adjust481/PolySniper/internal/config"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/notify"
	"github.com/adjust481/PolySniper/internal/platform/polygon"
	"github.com/adjust481/PolySniper/internal/server/handler"
	"github.com/adjust481/PolySniper/internal/service"
	"github.com/adjust481/PolySniper/internal/store/clickhouse"
	"github.com/adjust481/PolySniper/internal/store/postgres"
)

// Dependencies bundles the optional backends. Members stay nil when their
// backend is disabled.
type Dependencies struct {
	// Stores
	RunStore     domain.RunStore
	PriceHistory domain.PriceHistoryStore

	// Redis
	SignalBus   domain.SignalBus
	Progress    domain.ProgressCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage
	Replays  service.ReplayOpener
	Archiver service.Archiver

	Wallet   *polygon.Wallet
	Notifier *notify.Notifier

	// Checks probes every connected backend for /api/health.
	Checks map[string]handler.Checker
}

// RunDeps adapts d to the run service's collaborators.
func (d *Dependencies) RunDeps() service.Deps {
	deps := service.Deps{
		Runs:     d.RunStore,
		Prices:   d.PriceHistory,
		Bus:      d.SignalBus,
		Progress: d.Progress,
		Locks:    d.LockManager,
		Archiver: d.Archiver,
		Replays:  d.Replays,
		Notifier: d.Notifier,
	}
	if d.Wallet != nil {
		deps.Wallet = d.Wallet
	}
	return deps
}

// needsStores reports whether the mode persists runs.
func needsStores(mode string) bool {
	return mode != "wallet"
}

// needsS3 reports whether object storage must be connected.
func needsS3(cfg *config.Config) bool {
	if strings.ToLower(cfg.Mode) == "wallet" {
		return false
	}
	return cfg.S3.Enabled || strings.HasPrefix(cfg.Backtest.ReplayPath, "s3://")
}

// needsWallet reports whether the Polygon RPC must be dialled.
func needsWallet(cfg *config.Config) bool {
	return strings.ToLower(cfg.Mode) == "wallet" || cfg.Wallet.CapitalProfile != ""
}

// Wire constructs every enabled backend and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Checker)}
	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL run store ---
	if cfg.Postgres.Enabled && needsStores(mode) {
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
		deps.RunStore = postgres.NewRunStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Health
	}

	// --- ClickHouse price history ---
	if cfg.ClickHouse.Enabled && needsStores(mode) {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })

		store := clickhouse.NewPriceHistoryStore(conn, cfg.ClickHouse.BatchSize)
		if err := store.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse schema: %w", err)
		}
		deps.PriceHistory = store
		deps.Checks["clickhouse"] = conn.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled && needsStores(mode) {
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

		maxLen := cfg.Redis.StreamMaxLen
		if maxLen <= 0 {
			maxLen = redis.DefaultStreamMaxLen
		}
		deps.SignalBus = redis.NewSignalBus(redisClient, maxLen)
		deps.Progress = redis.NewProgressCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
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
		deps.Replays = s3blob.NewReader(s3Client)
		if cfg.Output.Archive {
			deps.Archiver = s3blob.NewRunArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
		}
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Polygon wallet ---
	if needsWallet(cfg) {
		wallet, err := polygon.Dial(ctx, polygon.Config{
			RPCURL:       cfg.Wallet.RPCURL,
			Address:      cfg.Wallet.Address,
			USDCContract: cfg.Wallet.USDCContract,
			ChainID:      cfg.Wallet.ChainID,
			Timeout:      cfg.Wallet.Timeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		closers = append(closers, wallet.Close)
		deps.Wallet = wallet
	}

	// --- Notifications ---
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

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("postgres", deps.RunStore != nil),
		slog.Bool("clickhouse", deps.PriceHistory != nil),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("s3", deps.Replays != nil),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Bool("wallet", deps.Wallet != nil),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)
	return deps, cleanup, nil
}
