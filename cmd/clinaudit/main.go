package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/clinaudit/internal/actor"
	v1 "github.com/gosuda/clinaudit/internal/api/v1"
	"github.com/gosuda/clinaudit/internal/api/ws"
	"github.com/gosuda/clinaudit/internal/archive"
	"github.com/gosuda/clinaudit/internal/audit"
	"github.com/gosuda/clinaudit/internal/config"
	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/notify"
	"github.com/gosuda/clinaudit/internal/server"
	"github.com/gosuda/clinaudit/internal/store/memory"
	mongostore "github.com/gosuda/clinaudit/internal/store/mongo"
	"github.com/gosuda/clinaudit/internal/store/postgres"
	redisstore "github.com/gosuda/clinaudit/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

// auditStore is what every storage driver provides.
type auditStore interface {
	Events() domain.AuditEventRepository
	Outbox() domain.AuditOutboxRepository
	Users() domain.UserRepository
	Ping(ctx context.Context) error
}

func run() error {
	// Initialize structured logging from environment.
	level, parseErr := zerolog.ParseLevel(os.Getenv("CLINAUDIT_LOG_LEVEL"))
	if parseErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("CLINAUDIT_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis is optional: it carries the live stream, the snapshot cache and
	// the alert channel.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Enabled() {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()
	}

	notifier := notify.New(buildSinks(cfg, pubsub))

	recorderOpts := []audit.RecorderOption{audit.WithNotifier(notifier)}
	if cfg.Audit.SerializeWrites {
		recorderOpts = append(recorderOpts, audit.WithTenantSerialization())
	}
	if pubsub != nil {
		lookup := actor.NewLookup(store.Users(), pubsub.SnapshotCache(cfg.Audit.SnapshotCacheTTL))
		recorderOpts = append(recorderOpts, audit.WithActorLookup(lookup), audit.WithPublisher(pubsub))
	} else {
		recorderOpts = append(recorderOpts, audit.WithActorLookup(actor.NewLookup(store.Users(), nil)))
	}
	recorder := audit.NewRecorder(store.Events(), store.Outbox(), recorderOpts...)

	var exporterOpts []audit.ExporterOption
	if cfg.Archive.Bucket != "" {
		archiver, archErr := archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if archErr != nil {
			return archErr
		}
		exporterOpts = append(exporterOpts, audit.WithArchiver(archiver))
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("export archiving enabled")
	}

	deps := server.Deps{
		Audit: v1.AuditServices{
			Query:    audit.NewQueryEngine(store.Events()),
			Exporter: audit.NewExporter(store.Events(), exporterOpts...),
			Verifier: audit.NewVerifier(store.Events()),
			Recorder: recorder,
		},
		Outbox: store.Outbox(),
		Store:  store,
	}
	if pubsub != nil {
		deps.Hub = ws.NewHub(pubsub)
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps)

	// Start server in background goroutine.
	go func() {
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// openStore connects the configured driver and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config) (auditStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return nil, nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.Migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, nil, err
			}
		}
		return store, store.Close, nil

	case config.DriverMongo:
		store, err := mongostore.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Warn().Err(err).Msg("mongo close")
			}
		}
		return store, closeFn, nil

	case config.DriverMemory:
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// buildSinks registers every configured alert destination. With none, alerts
// are only logged.
func buildSinks(cfg *config.Config, pubsub *redisstore.PubSub) *notify.Registry {
	sinks := notify.NewRegistry()
	if pubsub != nil {
		sinks.Register("redis", notify.NewChannelSink(pubsub, redisstore.AlertChannel))
	}
	if cfg.Slack.Enabled() {
		sinks.Register("slack", notify.NewSlackSink(slacklib.New(cfg.Slack.BotToken), cfg.Slack.AlertChannel))
		log.Info().Str("channel", cfg.Slack.AlertChannel).Msg("slack alerts enabled")
	}
	return sinks
}
