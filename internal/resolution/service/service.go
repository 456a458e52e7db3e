// Package service implements the resolution workflow: the review queue of
// flagged audit entries and the two ways to close one.
package service

import (
	"context"
	"strings"
	"time"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	auditrepo "github.com/SubscriberSync/portal-sub000/internal/audit/repository"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/internal/resolution/repository"
	"github.com/SubscriberSync/portal-sub000/internal/resolution/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/sanitize"

	"github.com/google/uuid"
)

// Store reads and closes audit entries.
type Store interface {
	GetByID(ctx context.Context, merchantID, id uuid.UUID) (audit.Entry, error)
	List(ctx context.Context, params auditrepo.ListParams) (auditrepo.ListResult, error)
	CountByStatus(ctx context.Context, merchantID uuid.UUID) (map[audit.Status]int, error)
	Close(ctx context.Context, merchantID, entryID uuid.UUID, decide repository.Decide, reason string) (audit.Entry, int, error)
}

// SeriesLookup finds a series of the merchant.
type SeriesLookup interface {
	GetSeries(ctx context.Context, merchantID, id uuid.UUID) (aliasrepo.Series, error)
}

// Service provides the review queue operations.
type Service struct {
	store    Store
	series   SeriesLookup
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new resolution service.
func New(store Store, series SeriesLookup, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, series: series, eventBus: eventBus, log: log, now: time.Now}
}

// Queue lists entries by status, flagged by default. Skipped entries stay
// listable for re-review.
func (s *Service) Queue(ctx context.Context, merchantID uuid.UUID, req transport.ListEntriesRequest) (transport.EntryListResponse, error) {
	status := audit.StatusFlagged
	if req.Status != "" {
		parsed, ok := audit.ParseStatus(req.Status)
		if !ok {
			return transport.EntryListResponse{}, apperr.Validation("unknown status")
		}
		status = parsed
	}

	params := auditrepo.ListParams{MerchantID: merchantID, Status: &status, Page: req.Page, PageSize: req.PageSize}
	if req.RunID != "" {
		runID, err := uuid.Parse(req.RunID)
		if err != nil {
			return transport.EntryListResponse{}, apperr.Validation("invalid run id")
		}
		params.RunID = &runID
	}
	if req.Flag != "" {
		flag, ok := anomaly.ParseFlag(strings.TrimSpace(req.Flag))
		if !ok {
			return transport.EntryListResponse{}, apperr.Validation("unknown flag")
		}
		params.Flag = &flag
	}

	result, err := s.store.List(ctx, params)
	if err != nil {
		return transport.EntryListResponse{}, err
	}
	items := make([]transport.EntryResponse, 0, len(result.Items))
	for _, e := range result.Items {
		items = append(items, ToEntryResponse(e))
	}
	return transport.EntryListResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

func (s *Service) Summary(ctx context.Context, merchantID uuid.UUID) (transport.QueueSummaryResponse, error) {
	counts, err := s.store.CountByStatus(ctx, merchantID)
	if err != nil {
		return transport.QueueSummaryResponse{}, err
	}
	return transport.QueueSummaryResponse{
		Clean:    counts[audit.StatusClean],
		Flagged:  counts[audit.StatusFlagged],
		Resolved: counts[audit.StatusResolved],
		Skipped:  counts[audit.StatusSkipped],
	}, nil
}

func (s *Service) Get(ctx context.Context, merchantID, entryID uuid.UUID) (transport.EntryResponse, error) {
	e, err := s.store.GetByID(ctx, merchantID, entryID)
	if err != nil {
		return transport.EntryResponse{}, err
	}
	return ToEntryResponse(e), nil
}

// Resolve commits the reviewer's sequence as the subscriber's authoritative
// position and closes the entry. This is the only way a flagged subscriber's
// position changes.
func (s *Service) Resolve(ctx context.Context, merchantID, actorID, entryID uuid.UUID, req transport.ResolveRequest) (transport.EntryResponse, error) {
	if req.Sequence == nil {
		return transport.EntryResponse{}, apperr.Validation("sequence is required")
	}
	if req.SeriesID != nil {
		if _, err := s.series.GetSeries(ctx, merchantID, *req.SeriesID); err != nil {
			return transport.EntryResponse{}, err
		}
	}
	now := s.now()
	reason := "resolved in review"
	if note := sanitize.Text(req.Note); note != "" {
		reason = note
	}

	closed, from, err := s.store.Close(ctx, merchantID, entryID, func(e audit.Entry) (audit.Entry, error) {
		return e.Resolve(*req.Sequence, req.SeriesID, actorID, now)
	}, reason)
	if err != nil {
		return transport.EntryResponse{}, err
	}

	s.log.Info("audit entry resolved", "merchantId", merchantID, "entryId", entryID, "subscriberId", closed.SubscriberID,
		"from", from, "to", *closed.ResolvedSequence, "actorId", actorID)
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.AuditEntryResolved{
			BaseEvent:    events.NewBaseEvent(),
			EntryID:      closed.ID,
			MerchantID:   merchantID,
			SubscriberID: closed.SubscriberID,
			Sequence:     *closed.ResolvedSequence,
			ActorID:      actorID,
		})
		s.eventBus.Publish(ctx, events.SequencePositionChanged{
			BaseEvent:    events.NewBaseEvent(),
			MerchantID:   merchantID,
			SubscriberID: closed.SubscriberID,
			SeriesID:     *closed.SeriesID,
			From:         from,
			To:           *closed.ResolvedSequence,
			Writer:       "manual",
			ActorID:      &actorID,
		})
	}
	return ToEntryResponse(closed), nil
}

// Skip defers an entry. The subscriber's position is left as it is.
func (s *Service) Skip(ctx context.Context, merchantID, actorID, entryID uuid.UUID, req transport.SkipRequest) (transport.EntryResponse, error) {
	reason := sanitize.Text(req.Reason)
	if reason == "" {
		return transport.EntryResponse{}, apperr.Validation("reason is required")
	}
	now := s.now()
	closed, _, err := s.store.Close(ctx, merchantID, entryID, func(e audit.Entry) (audit.Entry, error) {
		return e.Skip(reason, actorID, now)
	}, reason)
	if err != nil {
		return transport.EntryResponse{}, err
	}

	s.log.Info("audit entry skipped", "merchantId", merchantID, "entryId", entryID, "actorId", actorID)
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.AuditEntrySkipped{
			BaseEvent:    events.NewBaseEvent(),
			EntryID:      closed.ID,
			MerchantID:   merchantID,
			SubscriberID: closed.SubscriberID,
			Reason:       *closed.SkipReason,
			ActorID:      actorID,
		})
	}
	return ToEntryResponse(closed), nil
}

// ToEntryResponse maps an entry to its API shape.
func ToEntryResponse(e audit.Entry) transport.EntryResponse {
	flags := make([]string, 0, len(e.Flags))
	for _, f := range e.Flags {
		flags = append(flags, string(f))
	}
	return transport.EntryResponse{
		ID:               e.ID,
		RunID:            e.RunID,
		SubscriberID:     e.SubscriberID,
		SeriesID:         e.SeriesID,
		Status:           string(e.Status),
		SequenceDates:    e.Events,
		Observed:         e.Observed,
		Missing:          e.Missing,
		Flags:            flags,
		PrimaryFlag:      string(e.PrimaryFlag()),
		ProposedNext:     e.ProposedNext,
		Notes:            e.Notes,
		ResolvedSequence: e.ResolvedSequence,
		SkipReason:       e.SkipReason,
		ClosedBy:         e.ClosedBy,
		ClosedAt:         e.ClosedAt,
		CreatedAt:        e.CreatedAt,
	}
}
