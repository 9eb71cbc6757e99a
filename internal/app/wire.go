package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/settled/internal/blob/s3"
	"github.com/alanyoungcy/settled/internal/broker"
	"github.com/alanyoungcy/settled/internal/cache/redis"
	"github.com/alanyoungcy/settled/internal/clock"
	"github.com/alanyoungcy/settled/internal/config"
	"github.com/alanyoungcy/settled/internal/crypto"
	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/journal"
	"github.com/alanyoungcy/settled/internal/ledger"
	"github.com/alanyoungcy/settled/internal/metrics"
	"github.com/alanyoungcy/settled/internal/notify"
	"github.com/alanyoungcy/settled/internal/outbox"
	"github.com/alanyoungcy/settled/internal/server/handler"
	"github.com/alanyoungcy/settled/internal/store/postgres"
)

// publisher is a broker producer that owns a connection.
type publisher interface {
	domain.EventPublisher
	Close() error
}

// Dependencies bundles everything the settlement service and its servers
// are built from. Optional backends are nil when disabled.
type Dependencies struct {
	Clock   *clock.Handoff
	Ledger  domain.Ledger
	Metrics *metrics.Metrics

	// Stores
	MarketStore domain.MarketStore
	AuditStore  domain.AuditStore

	// Redis
	LockManager domain.LockManager
	MarketCache domain.MarketCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Durability and delivery
	Archiver  domain.SettlementArchiver
	Journal   *journal.Journal
	Outbox    *outbox.Outbox
	Publisher publisher

	Notifier *notify.Notifier
	Signer   *crypto.Signer

	// Pingers feeds /api/health.
	Pingers map[string]handler.Pinger
}

// Wire constructs every enabled backend from cfg and returns them with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Clock:   clock.NewHandoff(),
		Pingers: make(map[string]handler.Pinger),
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = handler.PingFunc(pool.Ping)
	} else {
		deps.Ledger = ledger.NewMemory()
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
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient, cfg.Redis.LockWait.Duration)
		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.SummaryTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient
	}

	// --- S3 settlement archive ---
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
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewBucket(s3Client), deps.AuditStore)
		deps.Pingers["s3"] = handler.PingFunc(s3Client.Health)
	}

	// --- Command journal ---
	if cfg.Journal.Enabled {
		j, err := journal.Open(journal.Config{
			Dir:         cfg.Journal.Dir,
			SegmentSize: cfg.Journal.SegmentSize,
			Sync:        cfg.Journal.Sync,
		})
		if err != nil {
			return fail("journal", err)
		}
		closers = append(closers, func() {
			if err := j.Close(); err != nil {
				logger.Warn("journal close failed", slog.String("error", err.Error()))
			}
		})
		deps.Journal = j
	}

	// --- Event outbox and broker ---
	if cfg.Outbox.Enabled {
		ob, err := outbox.Open(cfg.Outbox.Dir)
		if err != nil {
			return fail("outbox", err)
		}
		closers = append(closers, func() { _ = ob.Close() })
		deps.Outbox = ob
	}
	if cfg.Broker.Enabled {
		var pub publisher
		switch cfg.Broker.Driver {
		case "kafka-go":
			pub = broker.NewKafkaGoPublisher(cfg.Broker.Brokers, cfg.Broker.Topic)
		default:
			p, err := broker.NewSaramaPublisher(cfg.Broker.Brokers, cfg.Broker.Topic, cfg.Broker.ClientID)
			if err != nil {
				return fail("broker", err)
			}
			pub = p
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Publisher = pub
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Operator key for claim receipts ---
	if cfg.Identity.OperatorKey != "" || cfg.Identity.EncryptedKeyPath != "" {
		raw, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Identity.OperatorKey,
			EncryptedKeyPath: cfg.Identity.EncryptedKeyPath,
			KeyPassword:      cfg.Identity.KeyPassword,
		})
		if err != nil {
			return fail("operator key", err)
		}
		signer, err := crypto.NewSigner(raw)
		if err != nil {
			return fail("operator key", err)
		}
		deps.Signer = signer
	}

	return deps, cleanup, nil
}
