package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
)

func (h *Handler) sendCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := h.campaigns.Send(r.Context(), chi.URLParam(r, "campaignID"), workspaceID(r))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, res)
}

func (h *Handler) retryFailed(w http.ResponseWriter, r *http.Request) {
	res, err := h.campaigns.RetryFailed(r.Context(), chi.URLParam(r, "campaignID"), workspaceID(r))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"message": "retry queued",
		"retried": res.Retried,
		"total":   res.Total,
	})
}

func (h *Handler) retryRecipient(w http.ResponseWriter, r *http.Request) {
	rec, contact, err := h.campaigns.RetryRecipient(r.Context(),
		chi.URLParam(r, "campaignID"), chi.URLParam(r, "contactID"), workspaceID(r))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"message":            "retry queued",
		"delivery_record_id": rec.ID,
		"contact":            contact,
	})
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *Handler) scheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ScheduledAt.IsZero() {
		httputil.BadRequest(w, "scheduled_at is required")
		return
	}

	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "campaignID"), workspaceID(r), req.ScheduledAt)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handler) pauseCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Pause(r.Context(), chi.URLParam(r, "campaignID"), workspaceID(r))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handler) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "campaignID"), workspaceID(r)); err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) campaignStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.campaigns.Stats(r.Context(), chi.URLParam(r, "campaignID"), workspaceID(r))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, st)
}

// writeCampaignError maps service sentinels to HTTP statuses.
func writeCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, campaign.ErrContactNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidTargeting),
		errors.Is(err, campaign.ErrPastSchedule),
		errors.Is(err, campaign.ErrNotFailed):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, campaign.ErrAlreadySending),
		errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrNotDraft):
		httputil.Forbidden(w, err.Error())
	case errors.Is(err, campaign.ErrEnqueueFailed):
		httputil.Error(w, http.StatusBadGateway, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
