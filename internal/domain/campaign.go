package domain

import (
	"encoding/json"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
)

// Campaign represents an email campaign with its content and targeting.
// Exactly one of AudienceID or SegmentID must be set before sending.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	WorkspaceID string         `json:"workspace_id" db:"workspace_id"`
	Name        string         `json:"name" db:"name"`
	Subject     string         `json:"subject" db:"subject"`
	PreviewText string         `json:"preview_text,omitempty" db:"preview_text"`
	FromName    string         `json:"from_name" db:"from_name"`
	FromEmail   string         `json:"from_email" db:"from_email"`
	ReplyTo     string         `json:"reply_to" db:"reply_to"`
	Content     CampaignContent `json:"content" db:"content"`
	AudienceID  *string        `json:"audience_id,omitempty" db:"audience_id"`
	SegmentID   *string        `json:"segment_id,omitempty" db:"segment_id"`
	Status      CampaignStatus `json:"status" db:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty" db:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign has finished sending.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent
}

// HasValidTargeting reports whether exactly one of audience/segment is set.
func (c *Campaign) HasValidTargeting() bool {
	return (c.AudienceID != nil) != (c.SegmentID != nil)
}

// CampaignContent holds the campaign body. It is stored as JSONB and may be
// either a raw HTML string or a structured document from the editor.
type CampaignContent struct {
	raw json.RawMessage
}

// NewCampaignContent wraps a raw content payload.
func NewCampaignContent(raw json.RawMessage) CampaignContent {
	return CampaignContent{raw: raw}
}

// HTMLContent builds content from a plain HTML string.
func HTMLContent(html string) CampaignContent {
	b, _ := json.Marshal(html)
	return CampaignContent{raw: b}
}

// String returns the content as a renderable string. A JSON string payload is
// unquoted; any other document is returned in its serialized form.
func (cc CampaignContent) String() string {
	if len(cc.raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(cc.raw, &s); err == nil {
		return s
	}
	return string(cc.raw)
}

// MarshalJSON implements json.Marshaler.
func (cc CampaignContent) MarshalJSON() ([]byte, error) {
	if len(cc.raw) == 0 {
		return []byte("null"), nil
	}
	return cc.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (cc *CampaignContent) UnmarshalJSON(b []byte) error {
	cc.raw = append(cc.raw[:0], b...)
	return nil
}
