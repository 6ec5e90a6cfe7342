package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// ErrRecordNotFound is returned by Store lookups that match nothing.
var ErrRecordNotFound = errors.New("delivery record not found")

// Store is the persistence contract for notification ingestion.
type Store interface {
	// DeliveryByMessageID looks a record up by the provider message id
	// assigned at send time.
	DeliveryByMessageID(ctx context.Context, messageID string) (*domain.DeliveryRecord, error)

	// LatestDeliveryByEmail returns the contact's most recent record, used
	// when the notification carries no usable message id.
	LatestDeliveryByEmail(ctx context.Context, email string) (*domain.DeliveryRecord, error)

	// UpdateDeliveryStatus moves a record to status, stamping DeliveredAt
	// for delivered.
	UpdateDeliveryStatus(ctx context.Context, recordID string, status domain.DeliveryStatus, at time.Time) error

	// UpdateContactStatusByEmail flips a contact's subscription status.
	UpdateContactStatusByEmail(ctx context.Context, email string, status domain.ContactStatus) error

	// AppendEvent writes one event log row.
	AppendEvent(ctx context.Context, ev *domain.EmailEvent) error
}

// Service folds provider notifications into the delivery state.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an ingest service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Process decodes one notification payload and applies it. Unknown kinds
// are ignored.
func (s *Service) Process(ctx context.Context, payload []byte) error {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}

	switch n.Kind() {
	case kindBounce:
		return s.HandleBounce(ctx, &n)
	case kindComplaint:
		return s.HandleComplaint(ctx, &n)
	case kindDelivery:
		return s.HandleDelivery(ctx, &n)
	default:
		logger.Debug("ignoring notification", "kind", n.Kind())
		return nil
	}
}

// HandleBounce marks bounced recipients and suppresses the contacts from
// future sends. A bounce of any type means the mailbox rejected us; the
// bounce type is kept in event metadata for later triage.
func (s *Service) HandleBounce(ctx context.Context, n *Notification) error {
	if n.Bounce == nil {
		return errors.New("bounce notification without bounce payload")
	}

	for _, rcpt := range n.Bounce.BouncedRecipients {
		if err := s.store.UpdateContactStatusByEmail(ctx, rcpt.EmailAddress, domain.ContactBounced); err != nil {
			logger.Warn("contact suppression failed", "email", rcpt.EmailAddress, "error", err)
		}

		meta := map[string]any{
			"bounce_type":     n.Bounce.BounceType,
			"bounce_sub_type": n.Bounce.BounceSubType,
		}
		if rcpt.DiagnosticCode != "" {
			meta["diagnostic_code"] = rcpt.DiagnosticCode
		}
		s.applyToRecord(ctx, n.Mail.MessageID, rcpt.EmailAddress, domain.DeliveryBounced, domain.EventBounced, meta)
	}
	return nil
}

// HandleComplaint marks complained recipients and suppresses the contacts.
func (s *Service) HandleComplaint(ctx context.Context, n *Notification) error {
	if n.Complaint == nil {
		return errors.New("complaint notification without complaint payload")
	}

	for _, rcpt := range n.Complaint.ComplainedRecipients {
		if err := s.store.UpdateContactStatusByEmail(ctx, rcpt.EmailAddress, domain.ContactComplained); err != nil {
			logger.Warn("contact suppression failed", "email", rcpt.EmailAddress, "error", err)
		}

		meta := map[string]any{}
		if n.Complaint.ComplaintFeedbackType != "" {
			meta["feedback_type"] = n.Complaint.ComplaintFeedbackType
		}
		s.applyToRecord(ctx, n.Mail.MessageID, rcpt.EmailAddress, domain.DeliveryComplained, domain.EventComplained, meta)
	}
	return nil
}

// HandleDelivery confirms successful handoff for each recipient.
func (s *Service) HandleDelivery(ctx context.Context, n *Notification) error {
	if n.Delivery == nil {
		return errors.New("delivery notification without delivery payload")
	}

	for _, email := range n.Delivery.Recipients {
		s.applyToRecord(ctx, n.Mail.MessageID, email, domain.DeliveryDelivered, domain.EventDelivered, nil)
	}
	return nil
}

// applyToRecord finds the delivery record for one recipient and advances it.
// A missing record or a backwards transition is logged and dropped, never
// surfaced: webhooks are retried by the provider and a permanent error here
// would retry forever.
func (s *Service) applyToRecord(ctx context.Context, messageID, email string, status domain.DeliveryStatus, event domain.EventType, meta map[string]any) {
	rec, err := s.lookupRecord(ctx, messageID, email)
	if err != nil {
		logger.Warn("no delivery record for notification",
			"message_id", messageID, "email", email, "error", err)
		return
	}

	if rec.Status == status {
		// Provider redelivery of a notification we already applied.
		return
	}
	if !rec.Status.CanTransitionTo(status) {
		logger.Debug("skipping stale notification",
			"record_id", rec.ID, "current", rec.Status, "incoming", status)
		return
	}

	if err := s.store.UpdateDeliveryStatus(ctx, rec.ID, status, s.now()); err != nil {
		logger.Error("delivery status update failed", "record_id", rec.ID, "error", err)
		return
	}

	ev := &domain.EmailEvent{
		ID:               uuid.New().String(),
		DeliveryRecordID: rec.ID,
		Type:             event,
		Metadata:         meta,
		CreatedAt:        s.now(),
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		logger.Error("event append failed", "record_id", rec.ID, "error", err)
	}
}

// lookupRecord resolves by message id first, then by the recipient's most
// recent record. Bounce notifications for messages that never got a
// provider id (for example suppression-list rejections) only match by
// email.
func (s *Service) lookupRecord(ctx context.Context, messageID, email string) (*domain.DeliveryRecord, error) {
	if messageID != "" {
		rec, err := s.store.DeliveryByMessageID(ctx, messageID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
	}
	return s.store.LatestDeliveryByEmail(ctx, email)
}
