package segmentation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Engine binds compiled filter queries to the live contact store. Evaluation
// is side-effect-free and never cached: repeat calls see the live store.
type Engine struct {
	db *sql.DB
}

// NewEngine creates a segmentation engine over the given database.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// TestResult is the preview payload for the segment test endpoint.
type TestResult struct {
	Count   int              `json:"count"`
	Preview []domain.Contact `json:"preview"`
}

// Evaluate returns all contacts in the workspace matching the rules. If
// audienceID is non-empty the result is restricted to audience members.
func (e *Engine) Evaluate(ctx context.Context, workspaceID string, rules FilterRules, audienceID string) ([]domain.Contact, error) {
	qb := NewQueryBuilder().SetWorkspaceID(workspaceID)
	if audienceID != "" {
		qb.SetAudienceID(audienceID)
	}

	query, args, err := qb.BuildSelect(rules)
	if err != nil {
		return nil, fmt.Errorf("build segment query: %w", err)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate segment: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// Count returns the number of matching contacts without fetching them.
func (e *Engine) Count(ctx context.Context, workspaceID string, rules FilterRules, audienceID string) (int, error) {
	qb := NewQueryBuilder().SetWorkspaceID(workspaceID)
	if audienceID != "" {
		qb.SetAudienceID(audienceID)
	}

	query, args, err := qb.BuildCount(rules)
	if err != nil {
		return 0, fmt.Errorf("build segment count: %w", err)
	}

	var count int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count segment: %w", err)
	}
	return count, nil
}

// Test evaluates rules for the UI preview: total count plus the first ten
// matching contacts. Nothing is persisted.
func (e *Engine) Test(ctx context.Context, workspaceID string, rules FilterRules, audienceID string) (*TestResult, error) {
	count, err := e.Count(ctx, workspaceID, rules, audienceID)
	if err != nil {
		return nil, err
	}

	contacts, err := e.Evaluate(ctx, workspaceID, rules, audienceID)
	if err != nil {
		return nil, err
	}
	if len(contacts) > 10 {
		contacts = contacts[:10]
	}

	return &TestResult{Count: count, Preview: contacts}, nil
}

// scanContacts reads contact rows in the contactColumns order.
func scanContacts(rows *sql.Rows) ([]domain.Contact, error) {
	var contacts []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func scanContact(rows *sql.Rows) (*domain.Contact, error) {
	var (
		c            domain.Contact
		firstName    sql.NullString
		lastName     sql.NullString
		customFields []byte
		subscribedAt sql.NullTime
		unsubAt      sql.NullTime
	)

	err := rows.Scan(
		&c.ID, &c.WorkspaceID, &c.Email, &firstName, &lastName,
		&customFields, pq.Array(&c.Tags), &c.Status, &c.Source,
		&subscribedAt, &unsubAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	c.FirstName = firstName.String
	c.LastName = lastName.String
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &c.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields for %s: %w", c.ID, err)
		}
	}
	c.SubscribedAt = nullTime(subscribedAt)
	c.UnsubscribedAt = nullTime(unsubAt)
	return &c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
