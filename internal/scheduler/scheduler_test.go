package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	cattransport "github.com/SubscriberSync/portal-sub000/internal/catalog/transport"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	subtransport "github.com/SubscriberSync/portal-sub000/internal/subscribers/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executeCall struct{ merchantID, runID uuid.UUID }

type fakeRuns struct {
	calls []executeCall
	err   error
}

func (f *fakeRuns) Execute(_ context.Context, merchantID, runID uuid.UUID) error {
	f.calls = append(f.calls, executeCall{merchantID, runID})
	return f.err
}

type fakeImports struct{ err error }

func (f fakeImports) Import(context.Context, uuid.UUID) (subtransport.ImportResponse, error) {
	return subtransport.ImportResponse{Customers: 2}, f.err
}

type fakeScans struct{ merchants []uuid.UUID }

func (f *fakeScans) Scan(_ context.Context, merchantID uuid.UUID) (cattransport.ScanResponse, error) {
	f.merchants = append(f.merchants, merchantID)
	return cattransport.ScanResponse{}, nil
}

func TestClientEnqueueMigrationRunOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := newClient(opt, "")
	defer func() { _ = client.Close() }()

	merchantID, runID := uuid.New(), uuid.New()
	ctx := context.Background()
	require.NoError(t, client.EnqueueMigrationRun(ctx, merchantID, runID))
	require.NoError(t, client.EnqueueMigrationRun(ctx, merchantID, runID))

	inspector := asynq.NewInspector(opt)
	defer func() { _ = inspector.Close() }()
	tasks, err := inspector.ListPendingTasks("default")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskMigrationRun, tasks[0].Type)

	gotMerchant, gotRun, err := ParseMigrationRunPayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, merchantID, gotMerchant)
	assert.Equal(t, runID, gotRun)
}

func TestWorkerDispatchesTasks(t *testing.T) {
	runs := &fakeRuns{}
	scans := &fakeScans{}
	w := &Worker{handlers: Handlers{Runs: runs, Imports: fakeImports{}, Scans: scans}, log: logger.Discard()}
	mux := w.routes()
	ctx := context.Background()

	merchantID, runID := uuid.New(), uuid.New()
	runTask, err := NewMigrationRunTask(merchantID, runID)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, runTask))
	assert.Equal(t, []executeCall{{merchantID, runID}}, runs.calls)

	scanTask, err := NewMerchantTask(TaskCatalogScan, merchantID)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, scanTask))
	assert.Equal(t, []uuid.UUID{merchantID}, scans.merchants)

	importTask, err := NewMerchantTask(TaskSubscriberImport, merchantID)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, importTask))
}

func TestWorkerSkipsRetryForPermanentFailures(t *testing.T) {
	w := &Worker{handlers: Handlers{
		Runs:    &fakeRuns{err: errors.New("redis timeout")},
		Imports: fakeImports{err: apperr.Precondition("billing platform is not configured")},
	}, log: logger.Discard()}
	mux := w.routes()
	ctx := context.Background()

	importTask, err := NewMerchantTask(TaskSubscriberImport, uuid.New())
	require.NoError(t, err)
	err = mux.ProcessTask(ctx, importTask)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))

	runTask, err := NewMigrationRunTask(uuid.New(), uuid.New())
	require.NoError(t, err)
	err = mux.ProcessTask(ctx, runTask)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	bad := asynq.NewTask(TaskMigrationRun, []byte(`{"runId":"nope"}`))
	assert.ErrorIs(t, mux.ProcessTask(ctx, bad), asynq.SkipRetry)
}

type fakeEnqueuer struct {
	runs    []uuid.UUID
	imports []uuid.UUID
	failFor uuid.UUID
}

func (f *fakeEnqueuer) EnqueueMigrationRun(_ context.Context, _, runID uuid.UUID) error {
	if runID == f.failFor {
		return errors.New("redis down")
	}
	f.runs = append(f.runs, runID)
	return nil
}

func (f *fakeEnqueuer) EnqueueSubscriberImport(_ context.Context, merchantID uuid.UUID) error {
	f.imports = append(f.imports, merchantID)
	return nil
}

type fakeStale struct {
	runs   []domain.Run
	cutoff time.Time
}

func (f *fakeStale) ListStalePending(_ context.Context, cutoff time.Time, _ int) ([]domain.Run, error) {
	f.cutoff = cutoff
	return f.runs, nil
}

func TestRunRecoveryRequeuesStalePendingRuns(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	first, second, broken := uuid.New(), uuid.New(), uuid.New()
	stale := &fakeStale{runs: []domain.Run{
		{ID: first, MerchantID: uuid.New()},
		{ID: broken, MerchantID: uuid.New()},
		{ID: second, MerchantID: uuid.New()},
	}}
	queue := &fakeEnqueuer{failFor: broken}

	r := NewRunRecovery(stale, queue, logger.Discard())
	r.now = func() time.Time { return now }

	assert.Equal(t, 2, r.requeue(context.Background()))
	assert.Equal(t, []uuid.UUID{first, second}, queue.runs)
	assert.Equal(t, now.Add(-recoveryStaleAfter), stale.cutoff)
}

type fakeMerchants []uuid.UUID

func (f fakeMerchants) ListMerchantIDs(context.Context) ([]uuid.UUID, error) { return f, nil }

func TestImportRefresherQueuesEveryMerchant(t *testing.T) {
	merchants := fakeMerchants{uuid.New(), uuid.New()}
	queue := &fakeEnqueuer{}

	r := NewImportRefresher(merchants, queue, logger.Discard(), 0)
	assert.Equal(t, defaultImportInterval, r.interval)
	assert.Equal(t, 2, r.refresh(context.Background()))
	assert.Equal(t, []uuid.UUID(merchants), queue.imports)
}
