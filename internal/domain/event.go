package domain

import "time"

// EventType enumerates delivery/engagement events.
type EventType string

const (
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
)

// EmailEvent is one row of the append-only engagement log. Events are
// immutable once written and are the source of truth for analytics; the
// counters on DeliveryRecord are caches derived from this log.
type EmailEvent struct {
	ID               string         `json:"id" db:"id"`
	DeliveryRecordID string         `json:"delivery_record_id" db:"delivery_record_id"`
	Type             EventType      `json:"event_type" db:"event_type"`
	Metadata         map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// CampaignStats is the aggregated read model over a campaign's event log.
type CampaignStats struct {
	Sent       int     `json:"sent"`
	Delivered  int     `json:"delivered"`
	Opened     int     `json:"opened"`
	Clicked    int     `json:"clicked"`
	Bounced    int     `json:"bounced"`
	Complained int     `json:"complained"`
	OpenRate   float64 `json:"open_rate"`
	ClickRate  float64 `json:"click_rate"`
}
