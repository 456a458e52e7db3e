package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// runTaskTimeout bounds a single attempt at a migration run. A retry
	// resumes from the last stored batch.
	runTaskTimeout = 6 * time.Hour
	mergeWindow    = 10 * time.Minute
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return newClient(opt, cfg.GetAsynqQueueName()), nil
}

func newClient(opt asynq.RedisConnOpt, queue string) *Client {
	if queue == "" {
		queue = "default"
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueMigrationRun queues execution of a started run. The task ID is the
// run ID, so enqueueing the same run twice is a no-op.
func (c *Client) EnqueueMigrationRun(ctx context.Context, merchantID, runID uuid.UUID) error {
	task, err := NewMigrationRunTask(merchantID, runID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID("migration-run:"+runID.String()),
		asynq.MaxRetry(5),
		asynq.Timeout(runTaskTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueSubscriberImport queues a bulk import. Requests within the merge
// window collapse into one task.
func (c *Client) EnqueueSubscriberImport(ctx context.Context, merchantID uuid.UUID) error {
	return c.enqueueMerchantTask(ctx, TaskSubscriberImport, merchantID)
}

// EnqueueCatalogScan queues a catalog scan with the same merge window.
func (c *Client) EnqueueCatalogScan(ctx context.Context, merchantID uuid.UUID) error {
	return c.enqueueMerchantTask(ctx, TaskCatalogScan, merchantID)
}

func (c *Client) enqueueMerchantTask(ctx context.Context, taskType string, merchantID uuid.UUID) error {
	task, err := NewMerchantTask(taskType, merchantID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.Unique(mergeWindow),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Hour),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// NewRedisClient opens a plain Redis client on the scheduler's Redis, used
// for the per-merchant run lock.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redisOptions(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

func redisOptions(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opt, nil
}
