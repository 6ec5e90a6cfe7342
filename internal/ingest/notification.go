package ingest

import "time"

// Notification kinds reported by SES. Classic notifications use
// notificationType; event publishing uses eventType.
const (
	kindBounce    = "Bounce"
	kindComplaint = "Complaint"
	kindDelivery  = "Delivery"
)

// Notification is the SES delivery notification payload.
type Notification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`

	Mail      Mail       `json:"mail"`
	Bounce    *Bounce    `json:"bounce,omitempty"`
	Complaint *Complaint `json:"complaint,omitempty"`
	Delivery  *Delivery  `json:"delivery,omitempty"`
}

// Kind normalizes the two notification schemas to one discriminator.
func (n *Notification) Kind() string {
	if n.NotificationType != "" {
		return n.NotificationType
	}
	return n.EventType
}

// Mail describes the original outbound message.
type Mail struct {
	MessageID   string    `json:"messageId"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Destination []string  `json:"destination"`
}

// Bounce carries bounce details. BounceType is "Permanent", "Transient" or
// "Undetermined".
type Bounce struct {
	BounceType        string             `json:"bounceType"`
	BounceSubType     string             `json:"bounceSubType"`
	Timestamp         time.Time          `json:"timestamp"`
	BouncedRecipients []BouncedRecipient `json:"bouncedRecipients"`
}

type BouncedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

// Complaint carries spam complaint details.
type Complaint struct {
	ComplaintFeedbackType string                 `json:"complaintFeedbackType,omitempty"`
	Timestamp             time.Time              `json:"timestamp"`
	ComplainedRecipients  []ComplainedRecipient  `json:"complainedRecipients"`
}

type ComplainedRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

// Delivery confirms successful handoff to the recipient's mail server.
type Delivery struct {
	Timestamp  time.Time `json:"timestamp"`
	Recipients []string  `json:"recipients"`
}
