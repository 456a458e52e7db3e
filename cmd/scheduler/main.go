package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases"
	"github.com/SubscriberSync/portal-sub000/internal/billing"
	"github.com/SubscriberSync/portal-sub000/internal/catalog"
	catalogservice "github.com/SubscriberSync/portal-sub000/internal/catalog/service"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/internal/migration"
	"github.com/SubscriberSync/portal-sub000/internal/migration/runlock"
	"github.com/SubscriberSync/portal-sub000/internal/notification"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	"github.com/SubscriberSync/portal-sub000/internal/scheduler"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers"
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
	log.Info("starting scheduler", "env", cfg.Env)

	if !cfg.IsSchedulerEnabled() {
		log.Error("REDIS_URL is required for the scheduler")
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
	defer eventBus.Wait()
	notification.New(notification.NewMailer(cfg, log), cfg.GetOpsNotifyEmail(), log).RegisterHandlers(eventBus)

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	// Without an upstream the matching tasks fail as preconditions and are
	// archived instead of retried.
	var billingAdapter billing.Adapter
	if cfg.IsBillingEnabled() {
		billingAdapter = billing.NewClient(cfg, log)
	} else {
		log.Warn("BILLING_API_URL not configured; subscriber imports will be rejected")
	}
	var orderProvider orders.Provider
	if cfg.IsOrdersEnabled() {
		orderProvider = orders.NewClient(cfg, log)
	} else {
		log.Warn("ORDERS_API_URL not configured; migration runs and catalog scans will be rejected")
	}

	val := validator.New()

	// Worker-side wiring (no HTTP handlers required).
	aliasesModule := aliases.NewModule(pool, eventBus, val, log)
	catalogModule := catalog.NewModule(pool, client, eventBus, val, cfg, log)
	subscribersModule := subscribers.NewModule(pool, billingAdapter, aliasesModule.Service(), client, eventBus, val,
		cfg.GetPhoneDefaultRegion(), log)
	migrationModule := migration.NewModule(pool, migration.Deps{
		Aliases:     aliasesModule.Service(),
		Subscribers: subscribersModule.Repository(),
		Orders:      orderProvider,
		Queue:       client,
		Locker:      runlock.New(rdb, cfg.GetMigrationLockTTL()),
	}, eventBus, val, cfg, log)

	scanner := catalogservice.NewScanner(catalogModule.Service(), subscribersModule.Repository(), orderProvider,
		aliasesModule.Service(), log)

	go scheduler.NewRunRecovery(migrationModule.Repository(), client, log).Run(ctx)
	go scheduler.NewImportRefresher(subscribersModule.Repository(), client, log, cfg.GetImportInterval()).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, scheduler.Handlers{
		Runs:    migrationModule.Service(),
		Imports: subscribersModule.Service(),
		Scans:   scanner,
	}, log)
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
