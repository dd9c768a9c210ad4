package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/parimarket/internal/blob/s3"
	"github.com/alanyoungcy/parimarket/internal/cache/redis"
	"github.com/alanyoungcy/parimarket/internal/config"
	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/events"
	"github.com/alanyoungcy/parimarket/internal/identity"
	"github.com/alanyoungcy/parimarket/internal/ledger"
	"github.com/alanyoungcy/parimarket/internal/notify"
	"github.com/alanyoungcy/parimarket/internal/platform/otel"
	"github.com/alanyoungcy/parimarket/internal/projection"
	"github.com/alanyoungcy/parimarket/internal/server/handler"
	"github.com/alanyoungcy/parimarket/internal/service"
	"github.com/alanyoungcy/parimarket/internal/store/memory"
	"github.com/alanyoungcy/parimarket/internal/store/postgres"
	"github.com/alanyoungcy/parimarket/internal/store/sqlite"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Backend string

	// Ledger
	Store  domain.LedgerStore
	Ledger *service.LedgerService
	Views  *projection.Projector

	// Events
	Bus domain.EventBus

	// Optional infrastructure; nil when not configured.
	RateLimiter domain.RateLimiter
	Archiver    domain.Archiver
	Tokens      *identity.Tokens
	Notifier    *notify.Notifier

	HealthChecks []handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{Backend: strings.ToLower(cfg.Ledger.Backend)}

	// --- Tracing ---
	shutdownTracing, err := otel.Setup(ctx, otel.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fail("wire: telemetry: %w", err)
	}
	closers = append(closers, func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	})

	// --- Ledger store ---
	switch deps.Backend {
	case config.BackendMemory:
		deps.Store = memory.New()

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail("wire: sqlite data dir: %w", err)
			}
		}
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.Store = st
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{
			Name:  "sqlite",
			Check: func(ctx context.Context) error { return pingStore(ctx, st) },
		})

	case config.BackendPostgres:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			ApplicationName: cfg.Postgres.ApplicationName,
		})
		if err != nil {
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = pgClient.Ledger()
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "postgres", Check: pgClient.Health})

	default:
		return fail("wire: %w", fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend))
	}

	// --- Redis (optional) ---
	var (
		viewCache domain.MarketViewCache
		svcOpts   []service.LedgerServiceOption
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		viewCache = redis.NewMarketViewCache(redisClient, cfg.Redis.MarketTTL.Duration)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		if cfg.Redis.WriterLock {
			svcOpts = append(svcOpts, service.WithWriterLock(redis.NewLockManager(redisClient), cfg.Redis.WriterLockTTL.Duration))
		}
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "redis", Check: redisClient.Health})
	} else {
		deps.Bus = events.NewLocalBus()
	}

	// --- Ledger engine and read side ---
	var projOpts []projection.Option
	if viewCache != nil {
		projOpts = append(projOpts, projection.WithCache(viewCache))
	}
	deps.Views = projection.New(deps.Store, logger, projOpts...)

	engine := ledger.NewEngine(deps.Store, logger,
		ledger.WithPublisher(events.NewBusPublisher(deps.Bus, logger)),
	)
	deps.Ledger = service.NewLedgerService(engine, deps.Views, logger, svcOpts...)

	// --- S3 snapshots (optional) ---
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
			return fail("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSnapshotArchiver(deps.Ledger, s3blob.NewBlobs(s3Client), s3blob.ArchiverConfig{
			Prefix: cfg.S3.Prefix,
			Retain: cfg.Archive.Retain,
		}, logger)
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "s3", Check: s3Client.Health})
	}

	if cfg.Ledger.RestoreFromSnapshot {
		if err := restoreLatest(ctx, deps, logger); err != nil {
			return fail("wire: restore snapshot: %w", err)
		}
	}

	// --- Identity ---
	if strings.ToLower(cfg.Identity.Mode) == config.IdentityToken {
		key, err := identity.DeriveKey(cfg.Identity.TokenSecret)
		if err != nil {
			return fail("wire: identity: %w", err)
		}
		deps.Tokens, err = identity.NewTokens(identity.TokenConfig{
			Key:    key,
			Issuer: cfg.Identity.TokenIssuer,
			TTL:    cfg.Identity.TokenTTL.Duration,
		})
		if err != nil {
			return fail("wire: identity: %w", err)
		}
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
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// restoreLatest seeds a restorable store from the newest snapshot. A bucket
// without snapshots leaves the store empty.
func restoreLatest(ctx context.Context, deps *Dependencies, logger *slog.Logger) error {
	restorer, ok := deps.Store.(domain.SnapshotRestorer)
	if !ok {
		return fmt.Errorf("backend %q cannot be restored from a snapshot", deps.Backend)
	}
	if deps.Archiver == nil {
		return fmt.Errorf("s3 is not configured")
	}
	snap, err := deps.Archiver.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "no snapshot to restore, starting empty")
			return nil
		}
		return err
	}
	if err := restorer.Restore(ctx, snap); err != nil {
		return err
	}
	logger.InfoContext(ctx, "ledger restored from snapshot",
		slog.Int("markets", len(snap.Markets)),
		slog.Int("bets", len(snap.Bets)),
		slog.Time("taken_at", snap.TakenAt),
	)
	return nil
}

func pingStore(ctx context.Context, st domain.LedgerStore) error {
	return st.View(ctx, func(v domain.LedgerView) error {
		_, err := v.NextMarketID(ctx)
		return err
	})
}
