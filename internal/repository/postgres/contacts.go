package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/domain"
)

const contactColumns = `c.id, c.workspace_id, c.email, COALESCE(c.first_name, ''),
	COALESCE(c.last_name, ''), c.custom_fields, c.tags, c.status, c.source,
	c.subscribed_at, c.unsubscribed_at, c.created_at, c.updated_at`

// AudienceContacts implements campaign.Repository. Only subscribed members
// are returned; suppressed contacts never re-enter a send.
func (s *Store) AudienceContacts(ctx context.Context, workspaceID, audienceID string) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		JOIN audience_contacts ac ON ac.contact_id = c.id
		WHERE ac.audience_id = $1 AND c.workspace_id = $2 AND c.status = $3
		ORDER BY c.created_at`, audienceID, workspaceID, domain.ContactSubscribed)
	if err != nil {
		return nil, fmt.Errorf("audience contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetContact implements campaign.Repository.
func (s *Store) GetContact(ctx context.Context, workspaceID, id string) (*domain.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		WHERE c.id = $1 AND c.workspace_id = $2`, id, workspaceID)

	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// UpdateContactStatusByEmail implements ingest.Store. Unsubscribes and
// complaints stamp unsubscribed_at; other statuses leave it alone.
func (s *Store) UpdateContactStatusByEmail(ctx context.Context, email string, status domain.ContactStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $2,
		    unsubscribed_at = CASE WHEN $2 IN ('unsubscribed', 'complained') THEN now() ELSE unsubscribed_at END,
		    updated_at = now()
		WHERE email = $1`, email, status)
	if err != nil {
		return fmt.Errorf("update contact status: %w", err)
	}
	return nil
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var (
		c              domain.Contact
		customFields   []byte
		subscribedAt   sql.NullTime
		unsubscribedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.Email, &c.FirstName, &c.LastName,
		&customFields, pq.Array(&c.Tags), &c.Status, &c.Source,
		&subscribedAt, &unsubscribedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &c.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields: %w", err)
		}
	}
	c.SubscribedAt = nullableTime(subscribedAt)
	c.UnsubscribedAt = nullableTime(unsubscribedAt)
	return &c, nil
}
