package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Store is the persistence contract for recording engagement. RecordOpen and
// RecordClick commit the counter increment and the event row together, so the
// counters never drift from the event log; the increment itself must be atomic
// read-modify-write so concurrent bursts never lose updates.
type Store interface {
	RecordOpen(ctx context.Context, recordID string, event *domain.EmailEvent) error
	RecordClick(ctx context.Context, recordID string, event *domain.EmailEvent) error
	AppendEvent(ctx context.Context, event *domain.EmailEvent) error
	UnsubscribeByDelivery(ctx context.Context, recordID string, at time.Time) error
}

// Service records opens, clicks and unsubscribes. Recording failures are
// logged and swallowed: tracking must never block the recipient's request.
type Service struct {
	store   Store
	tok     *Tokenizer
	baseURL string
	now     func() time.Time
}

// NewService creates a tracking service.
func NewService(store Store, signingKey, baseURL string) *Service {
	return &Service{
		store:   store,
		tok:     NewTokenizer(signingKey),
		baseURL: baseURL,
		now:     time.Now,
	}
}

// TagForTracking returns the signed token for a delivery record.
func (s *Service) TagForTracking(recordID string) string {
	return s.tok.TagForTracking(recordID)
}

// ResolveToken verifies and decodes a token.
func (s *Service) ResolveToken(token string) (string, error) {
	return s.tok.ResolveToken(token)
}

// AddTrackingToEmail rewrites links through the click endpoint and injects
// the open pixel for the given delivery record.
func (s *Service) AddTrackingToEmail(html, recordID string) string {
	token := s.tok.TagForTracking(recordID)
	html = rewriteLinks(html, s.baseURL, token)
	return injectPixel(html, s.baseURL, token)
}

// RecordOpen resolves the token and records an open. Invalid tokens and
// store failures are logged no-ops.
func (s *Service) RecordOpen(ctx context.Context, token string, metadata map[string]any) {
	recordID, err := s.tok.ResolveToken(token)
	if err != nil {
		logger.Warn("open token rejected", "error", err)
		return
	}

	ev := s.newEvent(recordID, domain.EventOpened, metadata)
	if err := s.store.RecordOpen(ctx, recordID, ev); err != nil {
		logger.Error("record open failed", "record_id", recordID, "error", err)
	}
}

// RecordClick resolves the token and records a click on url.
func (s *Service) RecordClick(ctx context.Context, token, url string, metadata map[string]any) {
	recordID, err := s.tok.ResolveToken(token)
	if err != nil {
		logger.Warn("click token rejected", "error", err)
		return
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["url"] = url
	ev := s.newEvent(recordID, domain.EventClicked, metadata)
	if err := s.store.RecordClick(ctx, recordID, ev); err != nil {
		logger.Error("record click failed", "record_id", recordID, "error", err)
	}
}

// RecordUnsubscribe resolves the token, unsubscribes the contact behind the
// delivery record and logs the event. Returns false for invalid tokens.
func (s *Service) RecordUnsubscribe(ctx context.Context, token string) bool {
	recordID, err := s.tok.ResolveToken(token)
	if err != nil {
		logger.Warn("unsubscribe token rejected", "error", err)
		return false
	}

	if err := s.store.UnsubscribeByDelivery(ctx, recordID, s.now()); err != nil {
		logger.Error("unsubscribe failed", "record_id", recordID, "error", err)
		return false
	}
	ev := s.newEvent(recordID, domain.EventUnsubscribed, nil)
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		logger.Error("append event failed", "record_id", recordID, "type", ev.Type, "error", err)
	}
	return true
}

func (s *Service) newEvent(recordID string, typ domain.EventType, metadata map[string]any) *domain.EmailEvent {
	return &domain.EmailEvent{
		ID:               uuid.New().String(),
		DeliveryRecordID: recordID,
		Type:             typ,
		Metadata:         metadata,
		CreatedAt:        s.now(),
	}
}
