package domain

import "time"

// DeliveryStatus enumerates the lifecycle of a single campaign email.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliverySending    DeliveryStatus = "sending"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryBounced    DeliveryStatus = "bounced"
	DeliveryComplained DeliveryStatus = "complained"
)

// deliveryRank orders statuses for monotonic transitions. Webhook redelivery
// and out-of-order notifications must never regress a record to an earlier
// state, and bounce/complaint outrank delivery confirmation.
var deliveryRank = map[DeliveryStatus]int{
	DeliveryPending:    0,
	DeliverySending:    1,
	DeliverySent:       2,
	DeliveryFailed:     3,
	DeliveryDelivered:  4,
	DeliveryBounced:    5,
	DeliveryComplained: 6,
}

// CanTransitionTo reports whether moving from s to next is a forward
// transition. Equal-rank transitions are allowed (idempotent redelivery).
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	return deliveryRank[next] >= deliveryRank[s]
}

// DeliveryRecord tracks one (campaign, contact) send and its lifecycle.
// Exactly one record exists per pair; retries reuse the same record.
// OpenCount and ClickCount are denormalized caches of the EmailEvent log.
type DeliveryRecord struct {
	ID            string         `json:"id" db:"id"`
	CampaignID    string         `json:"campaign_id" db:"campaign_id"`
	ContactID     string         `json:"contact_id" db:"contact_id"`
	Status        DeliveryStatus `json:"status" db:"status"`
	SentAt        *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenCount     int            `json:"open_count" db:"open_count"`
	ClickCount    int            `json:"click_count" db:"click_count"`
	LastOpenedAt  *time.Time     `json:"last_opened_at,omitempty" db:"last_opened_at"`
	LastClickedAt *time.Time     `json:"last_clicked_at,omitempty" db:"last_clicked_at"`
	MessageID     string         `json:"message_id,omitempty" db:"message_id"`
	Error         string         `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}
