package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	s3blob "github.com/alanyoungcy/launchpad/internal/blob/s3"
	"github.com/alanyoungcy/launchpad/internal/cache/redis"
	"github.com/alanyoungcy/launchpad/internal/config"
	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/metrics"
	"github.com/alanyoungcy/launchpad/internal/notify"
	"github.com/alanyoungcy/launchpad/internal/server/handler"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
	"github.com/alanyoungcy/launchpad/internal/store/postgres"
)

// Dependencies bundles every component the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function. Fields
// for optional backends stay nil when the backend is disabled, except the
// bus and rate limiter which fall back to in-process versions.
type Dependencies struct {
	Ledger domain.Ledger
	Events domain.EventArchiveStore
	Audit  domain.AuditStore

	MarketCache domain.MarketCache
	Prices      domain.PriceHistory
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier       *notify.Notifier
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	Health map[string]handler.HealthCheckFunc
}

// Wire constructs the concrete implementations selected by cfg and returns
// them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: make(map[string]handler.HealthCheckFunc)}

	// --- Ledger ---
	switch cfg.Store.Backend {
	case "postgres":
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

		l := postgres.NewLedger(pgClient.Pool())
		deps.Ledger = l
		deps.Events = l
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())
		deps.Health["postgres"] = pgClient.Ping
	default:
		l := memory.NewLedger()
		deps.Ledger = l
		deps.Events = l
		logger.WarnContext(ctx, "using in-memory ledger; state is lost on restart")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
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

		cache := redis.NewMarketCache(redisClient)
		if ttl := cfg.Redis.MarketTTL.Duration; ttl > 0 {
			cache.WithTTL(ttl)
		}
		deps.MarketCache = cache
		deps.Prices = redis.NewPriceHistory(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient.Ping
	} else {
		deps.RateLimiter = memory.NewRateLimiter()
		deps.Bus = memory.NewBus()
	}

	// --- S3 ---
	if cfg.S3.Enabled {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.Health["s3"] = s3Client.Health
		if deps.Audit != nil {
			deps.Archiver = s3blob.NewArchiver(deps.Events, deps.BlobWriter, deps.Audit).WithReader(reader)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		m, h, err := metrics.Setup(cfg.Metrics.ServiceName)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: metrics: %w", err)
		}
		deps.Metrics = m
		deps.MetricsHandler = h
	}

	return deps, cleanup, nil
}
