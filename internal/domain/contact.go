package domain

import (
	"strings"
	"time"
)

// ContactStatus enumerates the subscription states of a contact.
type ContactStatus string

const (
	ContactSubscribed   ContactStatus = "subscribed"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
)

// ContactSource records how a contact entered the platform.
type ContactSource string

const (
	SourceImport ContactSource = "import"
	SourceForm   ContactSource = "form"
	SourceAPI    ContactSource = "api"
	SourceManual ContactSource = "manual"
)

// Contact is a workspace-scoped recipient identity. Email is unique per
// workspace. Contacts referenced by delivery records are never hard-deleted.
type Contact struct {
	ID             string            `json:"id" db:"id"`
	WorkspaceID    string            `json:"workspace_id" db:"workspace_id"`
	Email          string            `json:"email" db:"email"`
	FirstName      string            `json:"first_name,omitempty" db:"first_name"`
	LastName       string            `json:"last_name,omitempty" db:"last_name"`
	CustomFields   map[string]string `json:"custom_fields,omitempty" db:"custom_fields"`
	Tags           []string          `json:"tags,omitempty" db:"tags"`
	Status         ContactStatus     `json:"status" db:"status"`
	Source         ContactSource     `json:"source" db:"source"`
	SubscribedAt   *time.Time        `json:"subscribed_at,omitempty" db:"subscribed_at"`
	UnsubscribedAt *time.Time        `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// FullName returns the trimmed concatenation of first and last name.
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// IsSendable reports whether this contact may receive campaign mail.
func (c *Contact) IsSendable() bool {
	return c.Status == ContactSubscribed
}

// Audience is a named static set of contacts, managed independently of
// campaigns. Membership lives in a join table.
type Audience struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
