package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/nexuswallet/p2pcore/internal/blob/s3"
	"github.com/nexuswallet/p2pcore/internal/cache/redis"
	"github.com/nexuswallet/p2pcore/internal/config"
	"github.com/nexuswallet/p2pcore/internal/custody"
	"github.com/nexuswallet/p2pcore/internal/domain"
	"github.com/nexuswallet/p2pcore/internal/notify"
	"github.com/nexuswallet/p2pcore/internal/store/postgres"
	"github.com/nexuswallet/p2pcore/internal/trading"
)

// Dependencies bundles everything the running application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence and coordination
	Store       domain.Store
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// External services
	Wallets  domain.WalletDirectory
	Notifier *notify.Notifier

	// Trading engine
	Service *trading.Service
	Sweeper *trading.Sweeper

	// Archiver is nil when archival is disabled in configuration.
	Archiver *s3blob.Archiver
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

	deps := &Dependencies{}

	// --- PostgreSQL ledger ---
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

	deps.Store = postgres.NewStore(pgClient.Pool())

	// --- Redis coordination ---
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

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Custody wallet directory ---
	deps.Wallets = custody.NewHTTPDirectory(
		cfg.Custody.BaseURL,
		cfg.Custody.APIKey,
		cfg.Custody.Timeout.Duration,
	)

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

	// --- Trading engine ---
	book := trading.NewOrderBook(deps.Store, logger)
	escrow := trading.NewEscrowManager(deps.Store, logger)
	rep := trading.NewReputationTracker(deps.Store, logger)
	chat := trading.NewChatLog(deps.Store, logger)
	engine := trading.NewTradeEngine(deps.Store, book, escrow, rep, chat, deps.Wallets, logger)

	deps.Service = trading.NewService(
		book,
		engine,
		chat,
		rep,
		deps.RateLimiter,
		deps.SignalBus,
		deps.Notifier,
		trading.ServiceConfig{
			TradeLimit:  cfg.Trading.TradeLimit,
			TradeWindow: cfg.Trading.TradeWindow.Duration,
		},
		logger,
	)
	deps.Sweeper = trading.NewSweeper(
		deps.Service,
		deps.LockManager,
		cfg.Trading.SweepInterval.Duration,
		logger,
	)

	// --- S3 audit archival (optional) ---
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

		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Store,
			retention,
			cfg.Archive.Interval.Duration,
			logger,
		)
	}

	return deps, cleanup, nil
}
