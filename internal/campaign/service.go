package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/esp"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/render"
	"github.com/ignite/campaign-engine/internal/segmentation"
)

// Tracker injects the open pixel and rewrites links for one delivery
// record. Satisfied by tracking.Service.
type Tracker interface {
	AddTrackingToEmail(html, recordID string) string
}

// Enqueuer hands a rendered message to the delivery queue. Satisfied by
// queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, recordID string, msg esp.Message, policy queue.RetryPolicy) error
}

// Service implements campaign dispatch. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo      Repository
	engine    Evaluator
	tracker   Tracker
	enq       Enqueuer
	templates *render.TemplateService
	policy    queue.RetryPolicy
	now       func() time.Time
}

// NewService creates a campaign service.
func NewService(repo Repository, engine Evaluator, tracker Tracker, enq Enqueuer, policy queue.RetryPolicy) *Service {
	return &Service{
		repo:      repo,
		engine:    engine,
		tracker:   tracker,
		enq:       enq,
		templates: render.NewTemplateService(),
		policy:    policy,
		now:       time.Now,
	}
}

// SendResult summarizes a dispatch.
type SendResult struct {
	Campaign   *domain.Campaign `json:"campaign"`
	Recipients int              `json:"recipients"`
	Enqueued   int              `json:"enqueued"`
	Failed     int              `json:"failed"`
}

// Send dispatches a campaign: transitions it to sending, resolves the
// recipient set, creates one pending delivery record per recipient, renders
// and tracks content, and enqueues a send job per recipient. Per-recipient
// failures never abort the batch; they are recorded on the individual
// record. The campaign only reaches sent if at least one recipient was
// enqueued, or the recipient set resolved cleanly to zero.
func (s *Service) Send(ctx context.Context, campaignID, workspaceID string) (*SendResult, error) {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.HasValidTargeting() {
		return nil, ErrInvalidTargeting
	}
	if c.IsTerminal() || c.Status == domain.CampaignSending {
		return nil, ErrAlreadySending
	}

	// Compare-and-set: of two concurrent dispatches exactly one claims the
	// campaign, the other observes ErrAlreadySending here.
	priorStatus := c.Status
	if err := s.repo.BeginSending(ctx, c.ID); err != nil {
		return nil, err
	}
	c.Status = domain.CampaignSending

	recipients, err := s.resolveRecipients(ctx, c)
	if err != nil {
		s.rollback(ctx, c, priorStatus)
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	result := &SendResult{Campaign: c, Recipients: len(recipients)}
	for i := range recipients {
		contact := &recipients[i]
		// Defense against data-integrity drift: skip silently, never abort
		if contact.WorkspaceID != workspaceID || !contact.IsSendable() {
			result.Recipients--
			continue
		}

		if err := s.dispatchOne(ctx, c, contact); err != nil {
			logger.Warn("recipient dispatch failed",
				"campaign_id", c.ID, "contact_id", contact.ID, "error", err)
			result.Failed++
			continue
		}
		result.Enqueued++
	}

	if result.Enqueued == 0 && result.Failed > 0 {
		// Wholesale enqueue-layer outage: do not falsely report sent
		s.rollback(ctx, c, priorStatus)
		return nil, ErrEnqueueFailed
	}

	sentAt := s.now()
	if err := s.repo.UpdateCampaignStatus(ctx, c.ID, domain.CampaignSent, &sentAt); err != nil {
		return nil, fmt.Errorf("transition to sent: %w", err)
	}
	c.Status = domain.CampaignSent
	c.SentAt = &sentAt

	logger.Info("campaign dispatched", "campaign_id", c.ID,
		"recipients", result.Recipients, "enqueued", result.Enqueued, "failed", result.Failed)
	return result, nil
}

// resolveRecipients returns the campaign's target contacts. Audience
// targeting filters to subscribed members; segment targeting evaluates the
// stored rules, scoped to the segment's audience when it has one.
func (s *Service) resolveRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Contact, error) {
	if c.AudienceID != nil {
		return s.repo.AudienceContacts(ctx, c.WorkspaceID, *c.AudienceID)
	}

	seg, err := s.repo.GetSegment(ctx, c.WorkspaceID, *c.SegmentID)
	if err != nil {
		return nil, err
	}
	var rules segmentation.FilterRules
	if err := json.Unmarshal(seg.FilterRules, &rules); err != nil {
		return nil, fmt.Errorf("decode segment rules: %w", err)
	}
	audienceID := ""
	if seg.AudienceID != nil {
		audienceID = *seg.AudienceID
	}
	return s.engine.Evaluate(ctx, c.WorkspaceID, rules, audienceID)
}

// dispatchOne creates the delivery record and enqueues the rendered message
// for one recipient.
func (s *Service) dispatchOne(ctx context.Context, c *domain.Campaign, contact *domain.Contact) error {
	rec := &domain.DeliveryRecord{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		ContactID:  contact.ID,
		Status:     domain.DeliveryPending,
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateDeliveryRecord(ctx, rec); err != nil {
		return fmt.Errorf("create delivery record: %w", err)
	}

	msg := s.renderMessage(c, contact, rec.ID)
	if err := s.enq.Enqueue(ctx, rec.ID, msg, s.policy); err != nil {
		if ferr := s.repo.MarkDeliveryFailed(ctx, rec.ID, err.Error()); ferr != nil {
			logger.Error("mark delivery failed errored", "record_id", rec.ID, "error", ferr)
		}
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// renderMessage personalizes subject and body, injects the preview text and
// applies tracking for the given record. Template documents using Liquid
// features run through the template engine first; the merge-tag pass then
// fills whatever plain tags remain.
func (s *Service) renderMessage(c *domain.Campaign, contact *domain.Contact, recordID string) esp.Message {
	subject := render.RenderMergeTags(c.Subject, contact)

	html := c.Content.String()
	if render.HasLiquidSyntax(html) {
		rendered, err := s.templates.Render(html, render.ContactBindings(contact))
		if err != nil {
			logger.Warn("liquid render failed, falling back to merge tags",
				"campaign_id", c.ID, "error", err)
		} else {
			html = rendered
		}
	}
	html = render.RenderMergeTags(html, contact)
	html = render.InjectPreviewText(html, c.PreviewText)
	html = s.tracker.AddTrackingToEmail(html, recordID)

	return esp.Message{
		To:               contact.Email,
		From:             c.FromEmail,
		FromName:         c.FromName,
		ReplyTo:          c.ReplyTo,
		Subject:          subject,
		HTML:             html,
		CampaignID:       c.ID,
		DeliveryRecordID: recordID,
	}
}

func (s *Service) rollback(ctx context.Context, c *domain.Campaign, prior domain.CampaignStatus) {
	if err := s.repo.UpdateCampaignStatus(ctx, c.ID, prior, nil); err != nil {
		logger.Error("status rollback failed", "campaign_id", c.ID, "error", err)
		return
	}
	c.Status = prior
}

// RetryResult summarizes a bulk retry.
type RetryResult struct {
	Retried int `json:"retried"`
	Total   int `json:"total"`
}

// RetryFailed re-enqueues every failed delivery record of the campaign:
// each is reset to pending with its error cleared, content is re-rendered
// and re-tracked, and a fresh job is enqueued. Records whose contact no
// longer belongs to the workspace are skipped.
func (s *Service) RetryFailed(ctx context.Context, campaignID, workspaceID string) (*RetryResult, error) {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}

	failed, err := s.repo.FailedDeliveries(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list failed deliveries: %w", err)
	}

	result := &RetryResult{Total: len(failed)}
	for i := range failed {
		if err := s.retryRecord(ctx, c, &failed[i]); err != nil {
			logger.Warn("retry skipped", "record_id", failed[i].ID, "error", err)
			continue
		}
		result.Retried++
	}
	return result, nil
}

// RetryRecipient retries the failed delivery record of a single contact.
// The contact is returned alongside the record so callers can confirm who
// was retried.
func (s *Service) RetryRecipient(ctx context.Context, campaignID, contactID, workspaceID string) (*domain.DeliveryRecord, *domain.Contact, error) {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, nil, err
	}
	contact, err := s.repo.GetContact(ctx, workspaceID, contactID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.repo.DeliveryByContact(ctx, c.ID, contact.ID)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != domain.DeliveryFailed {
		return nil, nil, ErrNotFailed
	}

	if err := s.retryRecord(ctx, c, rec); err != nil {
		return nil, nil, err
	}
	rec.Status = domain.DeliveryPending
	rec.Error = ""
	return rec, contact, nil
}

// retryRecord resets one failed record and re-enqueues it. Workspace
// ownership of the contact is re-verified before anything mutates.
func (s *Service) retryRecord(ctx context.Context, c *domain.Campaign, rec *domain.DeliveryRecord) error {
	contact, err := s.repo.GetContact(ctx, c.WorkspaceID, rec.ContactID)
	if err != nil {
		return err
	}

	if err := s.repo.ResetDelivery(ctx, rec.ID); err != nil {
		return fmt.Errorf("reset delivery: %w", err)
	}

	msg := s.renderMessage(c, contact, rec.ID)
	if err := s.enq.Enqueue(ctx, rec.ID, msg, s.policy); err != nil {
		if ferr := s.repo.MarkDeliveryFailed(ctx, rec.ID, err.Error()); ferr != nil {
			logger.Error("mark delivery failed errored", "record_id", rec.ID, "error", ferr)
		}
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Schedule moves a draft campaign to scheduled for a future time.
func (s *Service) Schedule(ctx context.Context, campaignID, workspaceID string, at time.Time) (*domain.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, ErrNotDraft
	}
	if !at.After(s.now()) {
		return nil, ErrPastSchedule
	}

	if err := s.repo.ScheduleCampaign(ctx, c.ID, at); err != nil {
		return nil, fmt.Errorf("schedule campaign: %w", err)
	}
	c.Status = domain.CampaignScheduled
	c.ScheduledAt = &at
	return c, nil
}

// Pause suspends a scheduled campaign. Already-enqueued jobs are not
// retracted; only future dispatch checks status.
func (s *Service) Pause(ctx context.Context, campaignID, workspaceID string) (*domain.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignScheduled {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateCampaignStatus(ctx, c.ID, domain.CampaignPaused, nil); err != nil {
		return nil, fmt.Errorf("pause campaign: %w", err)
	}
	c.Status = domain.CampaignPaused
	return c, nil
}

// Delete removes a campaign. Only drafts may be deleted.
func (s *Service) Delete(ctx context.Context, campaignID, workspaceID string) error {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return ErrNotDraft
	}
	return s.repo.DeleteCampaign(ctx, workspaceID, c.ID)
}

// Stats returns the campaign's aggregated engagement numbers.
func (s *Service) Stats(ctx context.Context, campaignID, workspaceID string) (*domain.CampaignStats, error) {
	c, err := s.repo.GetCampaign(ctx, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	return s.repo.CampaignStats(ctx, c.ID)
}
