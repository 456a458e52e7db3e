package reports

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/adapters/storage"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

type fakeRuns struct {
	run domain.Run
	key string
}

func (f *fakeRuns) Get(_ context.Context, merchantID, id uuid.UUID) (domain.Run, error) {
	if f.run.ID != id || f.run.MerchantID != merchantID {
		return domain.Run{}, apperr.NotFound("migration run not found")
	}
	return f.run, nil
}

func (f *fakeRuns) SetReportKey(_ context.Context, _, _ uuid.UUID, key string) error {
	f.key = key
	return nil
}

type fakeEntries struct{ items []audit.Entry }

func (f fakeEntries) ListByRun(context.Context, uuid.UUID, uuid.UUID) ([]audit.Entry, error) {
	return f.items, nil
}

type memObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) EnsureBucketExists(_ context.Context, bucket string) error {
	m.buckets[bucket] = true
	return nil
}

func (m *memObjects) PutObject(_ context.Context, bucket, fileKey, contentType string, reader io.Reader, _ int64) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+fileKey] = data
	m.types[bucket+"/"+fileKey] = contentType
	return nil
}

func (m *memObjects) GenerateDownloadURL(_ context.Context, bucket, fileKey string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{
		URL:       "https://storage.local/" + bucket + "/" + fileKey + "?sig=x",
		FileKey:   fileKey,
		ExpiresAt: time.Now().Add(storage.PresignedURLTTL),
	}, nil
}

func TestGenerateUploadsWorkbook(t *testing.T) {
	merchantID, runID := uuid.New(), uuid.New()
	runs := &fakeRuns{run: domain.Run{ID: runID, MerchantID: merchantID, Status: domain.StatusCompleted}}
	objects := newMemObjects()
	svc := NewService(runs, fakeEntries{items: sampleEntries(merchantID, runID)}, objects, "audit-reports", logger.Discard())

	resp, err := svc.Generate(context.Background(), merchantID, runID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	key := ObjectKey(merchantID, runID)
	if resp.FileKey != key || resp.Entries != 2 || resp.URL == "" {
		t.Fatalf("response = %+v", resp)
	}
	if !objects.buckets["audit-reports"] {
		t.Fatal("bucket was not ensured")
	}
	if len(objects.objects["audit-reports/"+key]) == 0 {
		t.Fatal("workbook was not uploaded")
	}
	if objects.types["audit-reports/"+key] != contentTypeXLSX {
		t.Fatalf("content type = %q", objects.types["audit-reports/"+key])
	}
	if runs.key != key {
		t.Fatalf("report key = %q, want %q", runs.key, key)
	}
}

func TestGenerateRefusesActiveRun(t *testing.T) {
	merchantID, runID := uuid.New(), uuid.New()
	runs := &fakeRuns{run: domain.Run{ID: runID, MerchantID: merchantID, Status: domain.StatusRunning}}
	svc := NewService(runs, fakeEntries{}, newMemObjects(), "audit-reports", logger.Discard())

	_, err := svc.Generate(context.Background(), merchantID, runID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGenerateWithoutStorage(t *testing.T) {
	svc := NewService(&fakeRuns{}, fakeEntries{}, nil, "audit-reports", logger.Discard())
	_, err := svc.Generate(context.Background(), uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}
