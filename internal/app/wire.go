package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/courtsidelabs/parlayengine/internal/blob/s3"
	"github.com/courtsidelabs/parlayengine/internal/cache/redis"
	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/crypto"
	"github.com/courtsidelabs/parlayengine/internal/domain"
	"github.com/courtsidelabs/parlayengine/internal/engine"
	"github.com/courtsidelabs/parlayengine/internal/notify"
	"github.com/courtsidelabs/parlayengine/internal/platform/openweather"
	"github.com/courtsidelabs/parlayengine/internal/platform/sportsdata"
	"github.com/courtsidelabs/parlayengine/internal/safety"
	"github.com/courtsidelabs/parlayengine/internal/settlement"
	"github.com/courtsidelabs/parlayengine/internal/signals"
	"github.com/courtsidelabs/parlayengine/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	GameStore   domain.GameStore
	TicketStore domain.TicketStore
	AuditStore  domain.AuditStore

	// Shared pipeline state
	Telemetry domain.TelemetryStore
	Locks     domain.LockManager

	// Blob storage (nil unless the settlement archive is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Upstream providers
	Feed    domain.GameFeed
	Sources signals.Sources

	// Core
	Gate     *safety.Gate
	Settler  *settlement.Settler
	Engine   *engine.Engine
	Notifier *notify.Notifier
}

// needsS3 reports whether the configured mode archives settled tickets
// to object storage. Advise mode never touches S3.
func needsS3(cfg *config.Config) bool {
	if !cfg.Settle.ArchiveEnabled {
		return false
	}
	switch cfg.Mode {
	case "settle", "full":
		return true
	default:
		return false
	}
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

	// --- PostgreSQL: every mode reads the game book or settles tickets. ---
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
	deps.GameStore = postgres.NewGameStore(pool)
	deps.TicketStore = postgres.NewTicketStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis: shared health telemetry and settlement locks. ---
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

	deps.Telemetry = redis.NewTelemetryStore(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)

	// --- S3: settled-ticket cold storage. ---
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
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(writer, reader, deps.TicketStore, deps.AuditStore, logger)
	}

	// --- Upstream providers. ---
	// API keys come from config, or from the encrypted credentials file
	// when one is configured. A bad vault fails wiring outright rather
	// than running with keys the operator thought were overridden.
	sportsKey := cfg.Providers.ApiKey
	weatherKey := cfg.Weather.ApiKey
	if cfg.Providers.EncryptedCredentialsPath != "" {
		creds, err := crypto.LoadCredentials(cfg.Providers.EncryptedCredentialsPath, cfg.Providers.CredentialsPassword)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: provider credentials: %w", err)
		}
		if k := creds["sportsdata"]; k != "" {
			sportsKey = k
		}
		if k := creds["openweather"]; k != "" {
			weatherKey = k
		}
	}

	sports := sportsdata.New(sportsdata.ClientConfig{
		BaseURL:           cfg.Providers.BaseURL,
		APIKey:            sportsKey,
		RequestsPerSecond: cfg.Providers.RequestsPerSecond,
		Burst:             cfg.Providers.Burst,
	}, deps.Telemetry, logger)
	deps.Feed = sports

	if cfg.Signals.Enabled {
		deps.Sources = signals.Sources{Stats: sports, Form: sports, Injuries: sports}
		if weatherKey != "" {
			deps.Sources.Weather = openweather.New(openweather.ClientConfig{
				BaseURL: cfg.Weather.BaseURL,
				APIKey:  weatherKey,
			}, deps.Telemetry, logger)
		}
	}

	// --- Notifications. ---
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

	// --- Safety gate and decision engine. ---
	gate := safety.NewGate(deps.Telemetry, cfg.Safety, logger)
	notifier := deps.Notifier
	audit := deps.AuditStore
	gate.OnTransition(func(ctx context.Context, tr domain.Transition) {
		if err := notifier.HealthChanged(ctx, tr); err != nil {
			logger.WarnContext(ctx, "health transition alert failed", slog.String("error", err.Error()))
		}
	})
	gate.OnTransition(func(ctx context.Context, tr domain.Transition) {
		detail := map[string]any{
			"from":    string(tr.From),
			"to":      string(tr.To),
			"reasons": tr.Reasons,
		}
		if err := audit.Log(ctx, "safety.transition", detail); err != nil {
			logger.WarnContext(ctx, "health transition audit failed", slog.String("error", err.Error()))
		}
	})
	deps.Gate = gate

	deps.Settler = settlement.NewSettler(deps.GameStore, deps.TicketStore, logger)
	deps.Engine = engine.New(gate, deps.Settler, deps.Sources, cfg.Signals, logger)

	return deps, cleanup, nil
}
