// Package esp holds the outbound mail transport. The engine depends on the
// Sender interface; SES is the production implementation.
package esp

import "context"

// Message is one fully rendered outbound email.
type Message struct {
	To       string `json:"to"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`

	// Correlation ids carried as provider message tags
	CampaignID       string `json:"campaign_id"`
	DeliveryRecordID string `json:"delivery_record_id"`
}

// Sender delivers one message and returns the provider message id. A non-nil
// error is treated as transient and triggers the delivery queue's retry
// policy.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}
