package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairdesk_backend/internal/adapters/storage"
	"repairdesk_backend/internal/email"
	"repairdesk_backend/internal/events"
	apphttp "repairdesk_backend/internal/http"
	"repairdesk_backend/internal/http/router"
	"repairdesk_backend/internal/notification"
	"repairdesk_backend/internal/notification/relay"
	"repairdesk_backend/internal/requests"
	"repairdesk_backend/internal/uploads"
	"repairdesk_backend/migrations"
	"repairdesk_backend/platform/config"
	"repairdesk_backend/platform/db"
	"repairdesk_backend/platform/logger"
	"repairdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.StorageService, name, bucket string) {
	if err := withRetry(ctx, log, "ensure "+name+" bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	notificationModule := notification.New(pool, email.NewSender(cfg), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	g, gctx := errgroup.WithContext(ctx)

	// With Redis configured every replica relays pushes through pub/sub so a
	// client sees events no matter which replica holds its stream.
	if cfg.GetRedisURL() != "" {
		redisClient, err := relay.NewClient(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()

		pushRelay := relay.New(redisClient, cfg.GetNotificationChannel(), notificationModule.Stream(), log)
		notificationModule.SetPusher(pushRelay)
		g.Go(func() error {
			if err := pushRelay.Run(gctx); err != nil {
				log.Error("sse relay stopped", "error", err)
			}
			return nil
		})
	} else {
		log.Warn("REDIS_URL not configured; realtime pushes stay on this instance")
	}

	requestsModule := requests.NewModule(pool, eventBus, val, log)

	modules := []apphttp.Module{requestsModule, notificationModule}

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		buckets := uploads.Buckets{
			RequestImages: cfg.GetMinioBucketRequestImages(),
			PaymentProofs: cfg.GetMinioBucketPaymentProofs(),
		}
		ensureBucket(ctx, log, storageSvc, "request-images", buckets.RequestImages)
		ensureBucket(ctx, log, storageSvc, "payment-proofs", buckets.PaymentProofs)
		log.Info("storage service initialized", "requestImagesBucket", buckets.RequestImages, "paymentProofsBucket", buckets.PaymentProofs)

		modules = append(modules, uploads.NewModule(storageSvc, buckets, val))
	} else {
		log.Warn("MINIO_ENDPOINT not configured; presigned uploads disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules:  modules,
	}

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		notificationModule.Stream().Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
