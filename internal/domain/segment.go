package domain

import (
	"encoding/json"
	"time"
)

// Segment is a dynamically evaluated set of contacts defined by filter
// rules, optionally scoped to an audience. Rules are stored opaque here;
// the segmentation package owns their shape and evaluation. Segments are
// evaluated lazily at send time and on demand for preview, never
// materialized or cached.
type Segment struct {
	ID          string          `json:"id" db:"id"`
	WorkspaceID string          `json:"workspace_id" db:"workspace_id"`
	AudienceID  *string         `json:"audience_id,omitempty" db:"audience_id"`
	Name        string          `json:"name" db:"name"`
	FilterRules json.RawMessage `json:"filter_rules" db:"filter_rules"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
