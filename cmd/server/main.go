package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"haven/internal/audit/codec"
	audithandler "haven/internal/audit/handler"
	"haven/internal/audit/integrity"
	"haven/internal/audit/keys"
	auditmetrics "haven/internal/audit/metrics"
	"haven/internal/audit/notify"
	auditservice "haven/internal/audit/service"
	auditmemory "haven/internal/audit/store/memory"
	auditpostgres "haven/internal/audit/store/postgres"
	chathandler "haven/internal/chat/handler"
	chatservice "haven/internal/chat/service"
	chatmemory "haven/internal/chat/store/memory"
	"haven/internal/identity"
	"haven/internal/moderation"
	modmetrics "haven/internal/moderation/metrics"
	"haven/internal/platform/config"
	"haven/internal/platform/httpserver"
	"haven/internal/platform/kafka"
	"haven/internal/platform/logger"
	httpmetrics "haven/internal/platform/metrics"
	"haven/internal/platform/postgres"
	platformredis "haven/internal/platform/redis"
	ratelimitconfig "haven/internal/ratelimit/config"
	ratelimithandler "haven/internal/ratelimit/handler"
	ratelimitmetrics "haven/internal/ratelimit/metrics"
	ratelimitmw "haven/internal/ratelimit/middleware"
	"haven/internal/ratelimit/ports"
	ratelimitservice "haven/internal/ratelimit/service"
	"haven/internal/ratelimit/store/fallback"
	ratelimitmemory "haven/internal/ratelimit/store/memory"
	ratelimitredis "haven/internal/ratelimit/store/redis"
	httptransport "haven/internal/transport/http"
)

const (
	shutdownTimeout = 30 * time.Second
	// Long enough to cover the duplicate window and the slowest room.
	chatHistoryRetention = 5 * time.Minute
	chatPruneInterval    = time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// closers run in reverse registration order at shutdown.
type closers []func(context.Context)

func (c *closers) add(fn func(context.Context)) { *c = append(*c, fn) }

func (c closers) run(ctx context.Context) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i](ctx)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var cleanup closers
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		cleanup.run(shutdownCtx)
	}()

	keySet, err := keys.FromEnvValue(cfg.Audit.MasterKey)
	if err != nil {
		return err
	}
	recordCodec, err := codec.New(keySet.Encryption)
	if err != nil {
		return fmt.Errorf("build record codec: %w", err)
	}
	signer, err := integrity.NewSigner(keySet.Signing)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}

	var db *sql.DB
	var auditStore auditservice.Store
	switch {
	case cfg.Database.URL != "":
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		cleanup.add(func(context.Context) { _ = db.Close() })
		if err := postgres.Migrate(db, log); err != nil {
			return err
		}
		auditStore = auditpostgres.New(db)
	case cfg.Server.IsProduction():
		return errors.New("DATABASE_URL is required in production")
	default:
		log.Warn("DATABASE_URL not set, audit log kept in memory")
		auditStore = auditmemory.NewInMemoryStore()
	}

	dispatcher, err := newDispatcher(ctx, cfg, log, &cleanup)
	if err != nil {
		return err
	}
	dispatcher.Start()
	cleanup.add(func(ctx context.Context) {
		if err := dispatcher.Close(ctx); err != nil {
			log.ErrorContext(ctx, "alert dispatcher close failed", "error", err)
		}
	})

	auditSvc, err := auditservice.New(auditStore, recordCodec, signer,
		auditservice.WithLogger(log),
		auditservice.WithNotifier(dispatcher),
		auditservice.WithMetrics(auditmetrics.New()),
		auditservice.WithFlushInterval(cfg.Audit.FlushInterval),
		auditservice.WithBatchSize(cfg.Audit.BatchSize),
		auditservice.WithStoreTimeout(cfg.Audit.StoreTimeout),
		auditservice.WithRetention(cfg.Audit.RetentionDays, cfg.Audit.SecurityRetentionDays),
		auditservice.WithThresholds(auditservice.Thresholds{
			FailedLoginsPerHour:  cfg.Audit.FailedLoginsPerHour,
			PHIAccessPerUserHour: cfg.Audit.PHIAccessPerUserHour,
			SuspiciousScore:      cfg.Audit.SuspiciousScoreAlertAt,
		}),
	)
	if err != nil {
		return fmt.Errorf("build audit service: %w", err)
	}
	auditSvc.Start()
	// Registered after the dispatcher so it drains first and its alerts still go out.
	cleanup.add(func(ctx context.Context) {
		if err := auditSvc.Shutdown(ctx); err != nil {
			log.ErrorContext(ctx, "audit log shutdown incomplete", "error", err)
		}
	})

	limitStore, redisClient, err := newWindowStore(ctx, cfg, log, &cleanup)
	if err != nil {
		return err
	}
	limits, err := ratelimitconfig.Load(cfg.RateLimit.ActionsFile)
	if err != nil {
		return fmt.Errorf("load rate limits: %w", err)
	}
	limiter, err := ratelimitservice.New(limitStore,
		ratelimitservice.WithConfig(limits),
		ratelimitservice.WithAuditor(auditSvc),
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(ratelimitmetrics.New()),
		ratelimitservice.WithSweepInterval(cfg.RateLimit.SweepInterval),
	)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}
	limiter.Start()
	cleanup.add(func(context.Context) { limiter.Close() })

	mwOpts := []ratelimitmw.Option{}
	if reporter, ok := limitStore.(ratelimitmw.DegradedReporter); ok {
		mwOpts = append(mwOpts, ratelimitmw.WithDegradedReporter(reporter))
	}

	moderator := moderation.NewModerator()
	validator := moderation.NewValidator(moderation.WithProfanityFilter(moderator.Profanity()))
	rooms := chatmemory.NewInMemoryStore(chatmemory.DefaultRooms()...)
	chat, err := chatservice.New(rooms, rooms,
		chatservice.WithLimiter(limiter),
		chatservice.WithAuditor(auditSvc),
		chatservice.WithValidator(validator),
		chatservice.WithLogger(log),
		chatservice.WithMetrics(modmetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("build chat service: %w", err)
	}

	idp, err := identity.NewValidator(cfg.Identity.JWTSecret, cfg.Identity.Issuer, cfg.Identity.Audience)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Identity:       idp,
		Metrics:        httpmetrics.New(),
		RateLimit:      ratelimitmw.New(limiter, log, mwOpts...),
		Audit:          audithandler.New(auditSvc, log),
		Chat:           chathandler.New(chat, log),
		RateLimitAdmin: ratelimithandler.New(limiter, log),
		Ready: func(r *http.Request) error {
			if db != nil {
				if err := db.PingContext(r.Context()); err != nil {
					return fmt.Errorf("postgres: %w", err)
				}
			}
			if redisClient != nil {
				if err := redisClient.Health(r.Context()); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting haven", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(chatPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := validator.Prune(chatHistoryRetention); n > 0 {
					log.Debug("pruned chat history", "entries", n)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// newDispatcher publishes alerts to Kafka when brokers are configured and to
// the log otherwise.
func newDispatcher(ctx context.Context, cfg config.Config, log *slog.Logger, cleanup *closers) (*notify.Dispatcher, error) {
	logSink := notify.NewLogSink(log)
	opts := []notify.Option{
		notify.WithLogger(log),
		notify.WithMetrics(notify.NewMetrics()),
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return notify.NewDispatcher(logSink, opts...)
	}

	client, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	cleanup.add(func(context.Context) { client.Close() })
	if err := kafka.EnsureTopics(ctx, client, log, 3, cfg.Kafka.AlertTopic); err != nil {
		log.WarnContext(ctx, "could not ensure alert topic", "error", err, "topic", cfg.Kafka.AlertTopic)
	}
	sink, err := notify.NewKafkaSink(client, cfg.Kafka.AlertTopic)
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(sink, append(opts, notify.WithFallback(logSink))...)
}

// newWindowStore uses Redis when configured, falling back to in-process
// counters while it is unreachable.
func newWindowStore(ctx context.Context, cfg config.Config, log *slog.Logger, cleanup *closers) (ports.WindowStore, *platformredis.Client, error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("REDIS_URL not set, rate limits are per instance")
		return ratelimitmemory.NewInMemoryWindowStore(), nil, nil
	}
	cleanup.add(func(context.Context) { _ = client.Close() })
	return fallback.New(ratelimitredis.New(client.Client), fallback.WithLogger(log)), client, nil
}
