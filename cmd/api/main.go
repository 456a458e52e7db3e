package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/adapters/storage"
	"github.com/SubscriberSync/portal-sub000/internal/aliases"
	auditrepo "github.com/SubscriberSync/portal-sub000/internal/audit/repository"
	"github.com/SubscriberSync/portal-sub000/internal/billing"
	"github.com/SubscriberSync/portal-sub000/internal/catalog"
	cataloghandler "github.com/SubscriberSync/portal-sub000/internal/catalog/handler"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	apphttp "github.com/SubscriberSync/portal-sub000/internal/http"
	"github.com/SubscriberSync/portal-sub000/internal/http/router"
	"github.com/SubscriberSync/portal-sub000/internal/migration"
	migrationservice "github.com/SubscriberSync/portal-sub000/internal/migration/service"
	"github.com/SubscriberSync/portal-sub000/internal/notification"
	"github.com/SubscriberSync/portal-sub000/internal/reports"
	"github.com/SubscriberSync/portal-sub000/internal/resolution"
	"github.com/SubscriberSync/portal-sub000/internal/scheduler"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers"
	subscribershandler "github.com/SubscriberSync/portal-sub000/internal/subscribers/handler"
	"github.com/SubscriberSync/portal-sub000/migrations"
	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/db"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

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

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, log)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Background work is handed to the scheduler process over asynq. Without
	// Redis the queue-backed endpoints answer with a precondition error.
	var (
		scanQueue   cataloghandler.ScanQueue
		importQueue subscribershandler.ImportQueue
		runQueue    migrationservice.RunQueue
	)
	if client := initSchedulerClient(cfg, log); client != nil {
		defer func() { _ = client.Close() }()
		scanQueue, importQueue, runQueue = client, client, client
	}

	var billingAdapter billing.Adapter
	if cfg.IsBillingEnabled() {
		billingAdapter = billing.NewClient(cfg, log)
	} else {
		log.Warn("BILLING_API_URL not configured; subscriber import and charge sync disabled")
	}

	reportStore := initReportStorage(ctx, cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	notification.New(notification.NewMailer(cfg, log), cfg.GetOpsNotifyEmail(), log).RegisterHandlers(eventBus)

	aliasesModule := aliases.NewModule(pool, eventBus, val, log)
	catalogModule := catalog.NewModule(pool, scanQueue, eventBus, val, cfg, log)
	subscribersModule := subscribers.NewModule(pool, billingAdapter, aliasesModule.Service(), importQueue, eventBus, val,
		cfg.GetPhoneDefaultRegion(), log)
	migrationModule := migration.NewModule(pool, migration.Deps{
		Aliases:     aliasesModule.Service(),
		Subscribers: subscribersModule.Repository(),
		Queue:       runQueue,
	}, eventBus, val, cfg, log)
	resolutionModule := resolution.NewModule(pool, eventBus, val, log)
	reportsModule := reports.NewModule(migrationModule.Repository(), auditrepo.New(pool), reportStore,
		cfg.GetMinioBucketAuditReports(), log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			aliasesModule,
			catalogModule,
			subscribersModule,
			migrationModule,
			resolutionModule,
			reportsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initSchedulerClient(cfg config.SchedulerConfig, log *logger.Logger) *scheduler.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; imports, catalog scans and migration runs disabled")
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil
	}
	return client
}

// initReportStorage returns nil when MinIO is not configured; the report
// endpoint then answers with a precondition error.
func initReportStorage(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) storage.ObjectStore {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; audit reports disabled")
		return nil
	}

	svc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	bucket := cfg.GetMinioBucketAuditReports()
	if err := withRetry(ctx, log, "ensure audit report bucket", 5, 2*time.Second, func() error {
		return svc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("storage service initialized", "auditReportsBucket", bucket)
	return svc
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
