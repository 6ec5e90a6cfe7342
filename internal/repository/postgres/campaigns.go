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
)

const campaignColumns = `id, workspace_id, name, subject, COALESCE(preview_text, ''),
	COALESCE(from_name, ''), from_email, COALESCE(reply_to, ''), content,
	audience_id, segment_id, status, scheduled_at, sent_at, created_at, updated_at`

// GetCampaign implements campaign.Repository.
func (s *Store) GetCampaign(ctx context.Context, workspaceID, id string) (*domain.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID)

	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// UpdateCampaignStatus implements campaign.Repository.
func (s *Store) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, sent_at = COALESCE($3, sent_at), updated_at = now()
		WHERE id = $1`, id, status, sentAt)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// BeginSending implements campaign.Repository. The status guard lives in the
// WHERE clause so two racing dispatches resolve at the database, not in
// application memory.
func (s *Store) BeginSending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ($3, $4)`,
		id, domain.CampaignSending, domain.CampaignSending, domain.CampaignSent)
	if err != nil {
		return fmt.Errorf("begin sending: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrAlreadySending
	}
	return nil
}

// ScheduleCampaign implements campaign.Repository.
func (s *Store) ScheduleCampaign(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, scheduled_at = $3, updated_at = now()
		WHERE id = $1`, id, domain.CampaignScheduled, at)
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// DeleteCampaign implements campaign.Repository. Delivery records and
// events cascade at the schema level.
func (s *Store) DeleteCampaign(ctx context.Context, workspaceID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM campaigns WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// GetSegment implements campaign.Repository.
func (s *Store) GetSegment(ctx context.Context, workspaceID, id string) (*domain.Segment, error) {
	var (
		seg        domain.Segment
		audienceID sql.NullString
		rules      []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, audience_id, name, filter_rules, created_at, updated_at
		FROM segments
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID).
		Scan(&seg.ID, &seg.WorkspaceID, &audienceID, &seg.Name, &rules, &seg.CreatedAt, &seg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	seg.AudienceID = nullableString(audienceID)
	seg.FilterRules = json.RawMessage(rules)
	return &seg, nil
}

// CampaignStats implements campaign.Repository. Opens and clicks count
// distinct recipients, not raw events.
func (s *Store) CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error) {
	var st domain.CampaignStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE e.event_type = 'sent'),
			COUNT(*) FILTER (WHERE e.event_type = 'delivered'),
			COUNT(DISTINCT e.delivery_record_id) FILTER (WHERE e.event_type = 'opened'),
			COUNT(DISTINCT e.delivery_record_id) FILTER (WHERE e.event_type = 'clicked'),
			COUNT(*) FILTER (WHERE e.event_type = 'bounced'),
			COUNT(*) FILTER (WHERE e.event_type = 'complained')
		FROM email_events e
		JOIN delivery_records dr ON dr.id = e.delivery_record_id
		WHERE dr.campaign_id = $1`, campaignID).
		Scan(&st.Sent, &st.Delivered, &st.Opened, &st.Clicked, &st.Bounced, &st.Complained)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}

	if st.Delivered > 0 {
		st.OpenRate = float64(st.Opened) / float64(st.Delivered)
		st.ClickRate = float64(st.Clicked) / float64(st.Delivered)
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c           domain.Campaign
		content     []byte
		audienceID  sql.NullString
		segmentID   sql.NullString
		scheduledAt sql.NullTime
		sentAt      sql.NullTime
	)
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Subject, &c.PreviewText,
		&c.FromName, &c.FromEmail, &c.ReplyTo, &content,
		&audienceID, &segmentID, &c.Status, &scheduledAt, &sentAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Content = domain.NewCampaignContent(content)
	c.AudienceID = nullableString(audienceID)
	c.SegmentID = nullableString(segmentID)
	c.ScheduledAt = nullableTime(scheduledAt)
	c.SentAt = nullableTime(sentAt)
	return &c, nil
}
