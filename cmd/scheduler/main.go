package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairdesk_backend/internal/email"
	"repairdesk_backend/internal/events"
	"repairdesk_backend/internal/notification"
	"repairdesk_backend/internal/notification/outbox"
	"repairdesk_backend/internal/notification/relay"
	"repairdesk_backend/internal/requests"
	"repairdesk_backend/internal/scheduler"
	"repairdesk_backend/platform/config"
	"repairdesk_backend/platform/db"
	"repairdesk_backend/platform/logger"
	"repairdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// The worker delivers outbox mail and raises stale-assignment alerts.
	// Realtime pushes go through the relay so API replicas reach the clients.
	notificationModule := notification.New(pool, email.NewSender(cfg), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	redisClient, err := relay.NewClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()
	notificationModule.SetPusher(relay.New(redisClient, cfg.GetNotificationChannel(), notificationModule.Stream(), log))

	requestsModule := requests.NewModule(pool, eventBus, validator.New(), log)

	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = queue.Close() }()

	dispatcher := scheduler.NewNotificationOutboxDispatcher(outbox.New(pool), queue, log)
	go dispatcher.Run(ctx)

	sweep := scheduler.NewStaleAssignmentSweep(queue, cfg.GetStaleAssignmentSchedule(), cfg.GetStaleAssignmentAfter(), log)
	if err := sweep.Start(ctx); err != nil {
		log.Error("failed to start stale assignment sweep", "error", err)
		panic("failed to start stale assignment sweep: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, requestsModule.Service, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
