package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/ingest"
)

const deliveryColumns = `id, campaign_id, contact_id, status, sent_at, delivered_at,
	open_count, click_count, last_opened_at, last_clicked_at,
	COALESCE(message_id, ''), COALESCE(error, ''), created_at, updated_at`

// CreateDeliveryRecord implements campaign.Repository. The unique index on
// (campaign_id, contact_id) rejects duplicate records for a pair.
func (s *Store) CreateDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_records (id, campaign_id, contact_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		rec.ID, rec.CampaignID, rec.ContactID, rec.Status, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create delivery record: %w", err)
	}
	return nil
}

// FailedDeliveries implements campaign.Repository.
func (s *Store) FailedDeliveries(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		WHERE campaign_id = $1 AND status = $2
		ORDER BY created_at`, campaignID, domain.DeliveryFailed)
	if err != nil {
		return nil, fmt.Errorf("failed deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeliveryByContact implements campaign.Repository.
func (s *Store) DeliveryByContact(ctx context.Context, campaignID, contactID string) (*domain.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		WHERE campaign_id = $1 AND contact_id = $2`, campaignID, contactID)

	rec, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delivery by contact: %w", err)
	}
	return rec, nil
}

// ResetDelivery implements campaign.Repository.
func (s *Store) ResetDelivery(ctx context.Context, recordID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = $2, error = NULL, updated_at = now()
		WHERE id = $1`, recordID, domain.DeliveryPending)
	if err != nil {
		return fmt.Errorf("reset delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// MarkDeliveryFailed implements campaign.Repository.
func (s *Store) MarkDeliveryFailed(ctx context.Context, recordID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`, recordID, domain.DeliveryFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

// DeliveryByMessageID implements ingest.Store.
func (s *Store) DeliveryByMessageID(ctx context.Context, messageID string) (*domain.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		WHERE message_id = $1`, messageID)

	rec, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ingest.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delivery by message id: %w", err)
	}
	return rec, nil
}

// LatestDeliveryByEmail implements ingest.Store.
func (s *Store) LatestDeliveryByEmail(ctx context.Context, email string) (*domain.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dr.id, dr.campaign_id, dr.contact_id, dr.status, dr.sent_at, dr.delivered_at,
			dr.open_count, dr.click_count, dr.last_opened_at, dr.last_clicked_at,
			COALESCE(dr.message_id, ''), COALESCE(dr.error, ''), dr.created_at, dr.updated_at
		FROM delivery_records dr
		JOIN contacts c ON c.id = dr.contact_id
		WHERE c.email = $1
		ORDER BY dr.created_at DESC
		LIMIT 1`, email)

	rec, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ingest.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest delivery by email: %w", err)
	}
	return rec, nil
}

// UpdateDeliveryStatus implements ingest.Store.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, recordID string, status domain.DeliveryStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = $2,
		    delivered_at = CASE WHEN $2 = 'delivered' THEN $3 ELSE delivered_at END,
		    updated_at = now()
		WHERE id = $1`, recordID, status, at)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

// RecordOpen implements tracking.Store. The counter increment and the event
// row commit in one transaction so open_count never runs ahead of the event
// log; the increment itself stays atomic at the statement level.
func (s *Store) RecordOpen(ctx context.Context, recordID string, ev *domain.EmailEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE delivery_records
			SET open_count = open_count + 1, last_opened_at = $2, updated_at = now()
			WHERE id = $1`, recordID, ev.CreatedAt); err != nil {
			return fmt.Errorf("increment open: %w", err)
		}
		return s.appendEventDB(ctx, tx, ev)
	})
}

// RecordClick implements tracking.Store.
func (s *Store) RecordClick(ctx context.Context, recordID string, ev *domain.EmailEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE delivery_records
			SET click_count = click_count + 1, last_clicked_at = $2, updated_at = now()
			WHERE id = $1`, recordID, ev.CreatedAt); err != nil {
			return fmt.Errorf("increment click: %w", err)
		}
		return s.appendEventDB(ctx, tx, ev)
	})
}

// UnsubscribeByDelivery implements tracking.Store: the contact behind the
// delivery record is unsubscribed.
func (s *Store) UnsubscribeByDelivery(ctx context.Context, recordID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts c
		SET status = $2, unsubscribed_at = $3, updated_at = now()
		FROM delivery_records dr
		WHERE dr.id = $1 AND c.id = dr.contact_id`,
		recordID, domain.ContactUnsubscribed, at)
	if err != nil {
		return fmt.Errorf("unsubscribe by delivery: %w", err)
	}
	return nil
}

// AppendEvent implements tracking.Store and ingest.Store.
func (s *Store) AppendEvent(ctx context.Context, ev *domain.EmailEvent) error {
	return s.appendEventDB(ctx, s.db, ev)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) appendEventDB(ctx context.Context, db execer, ev *domain.EmailEvent) error {
	var meta []byte
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		meta = b
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO email_events (id, delivery_record_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.DeliveryRecordID, ev.Type, meta, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func scanDelivery(row rowScanner) (*domain.DeliveryRecord, error) {
	var (
		rec           domain.DeliveryRecord
		sentAt        sql.NullTime
		deliveredAt   sql.NullTime
		lastOpenedAt  sql.NullTime
		lastClickedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Status,
		&sentAt, &deliveredAt, &rec.OpenCount, &rec.ClickCount,
		&lastOpenedAt, &lastClickedAt, &rec.MessageID, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.SentAt = nullableTime(sentAt)
	rec.DeliveredAt = nullableTime(deliveredAt)
	rec.LastOpenedAt = nullableTime(lastOpenedAt)
	rec.LastClickedAt = nullableTime(lastClickedAt)
	return &rec, nil
}
