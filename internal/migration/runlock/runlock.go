// Package runlock keeps at most one migration run executing per merchant,
// across every scheduler process sharing the Redis instance.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
)

const (
	keyPrefix  = "migration-run:"
	defaultTTL = 10 * time.Minute
)

// Locker obtains per-merchant run leases.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// New creates a locker over a Redis client. ttl bounds how long a crashed
// worker can block its merchant; held leases are refreshed at half the ttl.
func New(client redislock.RedisClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: redislock.New(client), ttl: ttl}
}

// Lease is a held merchant lock.
type Lease struct {
	lock *redislock.Lock
	ttl  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Acquire obtains the merchant's lease without waiting. A lease held by
// another worker yields a Conflict.
func (l *Locker) Acquire(ctx context.Context, merchantID uuid.UUID) (*Lease, error) {
	lock, err := l.client.Obtain(ctx, Key(merchantID), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperr.Conflict("a migration run is already executing for this merchant")
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}

	lease := &Lease{lock: lock, ttl: l.ttl, stop: make(chan struct{}), done: make(chan struct{})}
	go lease.keepAlive()
	return lease, nil
}

// Key is the Redis key guarding a merchant's runs.
func Key(merchantID uuid.UUID) string {
	return keyPrefix + merchantID.String()
}

func (l *Lease) keepAlive() {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := l.lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if errors.Is(err, redislock.ErrNotObtained) {
				return
			}
		}
	}
}

// Release stops refreshing and frees the lease. Releasing twice is harmless.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	err := l.lock.Release(ctx)
	if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
