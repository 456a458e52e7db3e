package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl), mr
}

func TestAcquireIsExclusivePerMerchant(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()
	merchant := uuid.New()

	lease, err := locker.Acquire(ctx, merchant)
	require.NoError(t, err)
	assert.True(t, mr.Exists(Key(merchant)))

	_, err = locker.Acquire(ctx, merchant)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	other, err := locker.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(Key(merchant)))
	require.NoError(t, lease.Release(ctx))

	again, err := locker.Acquire(ctx, merchant)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLeaseExpiresWhenWorkerDies(t *testing.T) {
	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()
	merchant := uuid.New()

	lease, err := locker.Acquire(ctx, merchant)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lease.Release(ctx) })

	mr.FastForward(2 * time.Minute)

	next, err := locker.Acquire(ctx, merchant)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}
