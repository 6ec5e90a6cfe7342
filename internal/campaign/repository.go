package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/segmentation"
)

// Repository defines the data access contract for campaign dispatch.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetCampaign returns a campaign scoped to the workspace. Returns
	// ErrNotFound if absent or owned by another workspace.
	GetCampaign(ctx context.Context, workspaceID, id string) (*domain.Campaign, error)

	// UpdateCampaignStatus transitions a campaign's status, stamping SentAt
	// when non-nil.
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error

	// BeginSending atomically moves a campaign to sending unless it is
	// already sending or sent, in which case ErrAlreadySending is returned.
	// Two concurrent dispatches of the same campaign race on this call and
	// exactly one wins.
	BeginSending(ctx context.Context, id string) error

	// ScheduleCampaign sets status to scheduled with the given time.
	ScheduleCampaign(ctx context.Context, id string, at time.Time) error

	// DeleteCampaign removes a campaign.
	DeleteCampaign(ctx context.Context, workspaceID, id string) error

	// GetSegment returns a workspace-scoped segment, ErrNotFound if absent.
	GetSegment(ctx context.Context, workspaceID, id string) (*domain.Segment, error)

	// AudienceContacts returns the subscribed members of an audience.
	AudienceContacts(ctx context.Context, workspaceID, audienceID string) ([]domain.Contact, error)

	// GetContact returns a workspace-scoped contact, ErrContactNotFound if
	// absent.
	GetContact(ctx context.Context, workspaceID, id string) (*domain.Contact, error)

	// CreateDeliveryRecord inserts a new record. At most one record exists
	// per (campaign, contact); a second insert for the pair is an error.
	CreateDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error

	// FailedDeliveries returns the campaign's records currently in failed
	// state.
	FailedDeliveries(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error)

	// DeliveryByContact returns the campaign's record for one contact.
	DeliveryByContact(ctx context.Context, campaignID, contactID string) (*domain.DeliveryRecord, error)

	// ResetDelivery returns a record to pending and clears its error. The
	// record id is stable across retries.
	ResetDelivery(ctx context.Context, recordID string) error

	// MarkDeliveryFailed records a per-recipient failure.
	MarkDeliveryFailed(ctx context.Context, recordID, errMsg string) error

	// CampaignStats aggregates the campaign's event log.
	CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error)
}

// Evaluator resolves segment rules to contacts. Satisfied by
// segmentation.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, workspaceID string, rules segmentation.FilterRules, audienceID string) ([]domain.Contact, error)
}
