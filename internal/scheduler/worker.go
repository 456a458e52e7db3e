package scheduler

import (
	"context"
	"fmt"
	"os"

	cattransport "github.com/SubscriberSync/portal-sub000/internal/catalog/transport"
	subtransport "github.com/SubscriberSync/portal-sub000/internal/subscribers/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// RunExecutor executes a migration run to completion.
type RunExecutor interface {
	Execute(ctx context.Context, merchantID, runID uuid.UUID) error
}

// SubscriberImporter pulls a merchant's subscribers from the billing platform.
type SubscriberImporter interface {
	Import(ctx context.Context, merchantID uuid.UUID) (subtransport.ImportResponse, error)
}

// CatalogScanner records product variations from order history.
type CatalogScanner interface {
	Scan(ctx context.Context, merchantID uuid.UUID) (cattransport.ScanResponse, error)
}

// Handlers are the services the worker dispatches to. A nil handler leaves
// its task type unregistered.
type Handlers struct {
	Runs    RunExecutor
	Imports SubscriberImporter
	Scans   CatalogScanner
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	handlers Handlers
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, handlers Handlers, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		Logger: asynqLogger{log: log},
	})

	w := &Worker{server: server, handlers: handlers, log: log}
	w.mux = w.routes()
	return w, nil
}

func (w *Worker) routes() *asynq.ServeMux {
	h := w.handlers
	mux := asynq.NewServeMux()
	if h.Runs != nil {
		mux.HandleFunc(TaskMigrationRun, w.handleMigrationRun)
	}
	if h.Imports != nil {
		mux.HandleFunc(TaskSubscriberImport, w.handleSubscriberImport)
	}
	if h.Scans != nil {
		mux.HandleFunc(TaskCatalogScan, w.handleCatalogScan)
	}
	return mux
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleMigrationRun(ctx context.Context, task *asynq.Task) error {
	merchantID, runID, err := ParseMigrationRunPayload(task)
	if err != nil {
		return skipRetry(err)
	}
	return retryable(w.handlers.Runs.Execute(ctx, merchantID, runID))
}

func (w *Worker) handleSubscriberImport(ctx context.Context, task *asynq.Task) error {
	merchantID, err := ParseMerchantPayload(task)
	if err != nil {
		return skipRetry(err)
	}
	result, err := w.handlers.Imports.Import(ctx, merchantID)
	if err != nil {
		return retryable(err)
	}
	w.log.Info("subscriber import task done", "merchantId", merchantID, "customers", result.Customers,
		"subscriptions", result.Subscriptions)
	return nil
}

func (w *Worker) handleCatalogScan(ctx context.Context, task *asynq.Task) error {
	merchantID, err := ParseMerchantPayload(task)
	if err != nil {
		return skipRetry(err)
	}
	result, err := w.handlers.Scans.Scan(ctx, merchantID)
	if err != nil {
		return retryable(err)
	}
	w.log.Info("catalog scan task done", "merchantId", merchantID, "variations", result.Variations,
		"unknownSkus", result.UnknownSKUs)
	return nil
}

// retryable marks errors that another attempt cannot fix, such as missing
// configuration or a deleted record, so asynq archives the task instead.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.GetKind(err) {
	case apperr.KindPrecondition, apperr.KindNotFound, apperr.KindValidation:
		return skipRetry(err)
	}
	return err
}

func skipRetry(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// asynqLogger routes asynq's internal logging through the service logger.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
