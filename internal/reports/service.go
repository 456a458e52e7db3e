// Package reports exports a migration run's audit entries as a spreadsheet
// stored in object storage.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/adapters/storage"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

// RunStore reads runs and remembers where their report lives.
type RunStore interface {
	Get(ctx context.Context, merchantID, id uuid.UUID) (domain.Run, error)
	SetReportKey(ctx context.Context, merchantID, id uuid.UUID, key string) error
}

// EntryLister returns every audit entry of a run.
type EntryLister interface {
	ListByRun(ctx context.Context, merchantID, runID uuid.UUID) ([]audit.Entry, error)
}

// ReportResponse points at a freshly generated workbook.
type ReportResponse struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
	Entries   int       `json:"entries"`
}

type Service struct {
	runs    RunStore
	entries EntryLister
	store   storage.ObjectStore
	bucket  string
	log     *logger.Logger
}

// NewService creates a report service. store may be nil when object storage
// is not configured; generation then fails with a precondition error.
func NewService(runs RunStore, entries EntryLister, store storage.ObjectStore, bucket string, log *logger.Logger) *Service {
	return &Service{runs: runs, entries: entries, store: store, bucket: bucket, log: log}
}

// Generate renders the run's current audit entries, so resolutions made after
// the run finished are included.
func (s *Service) Generate(ctx context.Context, merchantID, runID uuid.UUID) (ReportResponse, error) {
	if s.store == nil {
		return ReportResponse{}, apperr.Precondition("report storage is not configured")
	}

	run, err := s.runs.Get(ctx, merchantID, runID)
	if err != nil {
		return ReportResponse{}, err
	}
	if domain.IsActive(run.Status) {
		return ReportResponse{}, apperr.Conflict("migration run has not finished").
			WithDetails(map[string]string{"status": string(run.Status)})
	}

	entries, err := s.entries.ListByRun(ctx, merchantID, runID)
	if err != nil {
		return ReportResponse{}, err
	}
	buf, err := BuildWorkbook(run, entries)
	if err != nil {
		return ReportResponse{}, err
	}

	key := ObjectKey(merchantID, runID)
	if err := s.store.EnsureBucketExists(ctx, s.bucket); err != nil {
		return ReportResponse{}, err
	}
	if err := s.store.PutObject(ctx, s.bucket, key, contentTypeXLSX, buf, int64(buf.Len())); err != nil {
		return ReportResponse{}, err
	}
	if err := s.runs.SetReportKey(ctx, merchantID, runID, key); err != nil {
		return ReportResponse{}, err
	}

	url, err := s.store.GenerateDownloadURL(ctx, s.bucket, key)
	if err != nil {
		return ReportResponse{}, err
	}

	s.log.Info("audit report generated", "merchantId", merchantID, "runId", runID, "entries", len(entries))
	return ReportResponse{URL: url.URL, FileKey: url.FileKey, ExpiresAt: url.ExpiresAt, Entries: len(entries)}, nil
}

// ObjectKey is the storage key of a run's report. Regenerating replaces it.
func ObjectKey(merchantID, runID uuid.UUID) string {
	return fmt.Sprintf("%s/%s.xlsx", merchantID, runID)
}
