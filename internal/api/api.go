// Package api exposes the campaign management HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/segmentation"
)

// CampaignService is the dispatch surface the API exposes. Satisfied by
// campaign.Service.
type CampaignService interface {
	Send(ctx context.Context, campaignID, workspaceID string) (*campaign.SendResult, error)
	RetryFailed(ctx context.Context, campaignID, workspaceID string) (*campaign.RetryResult, error)
	RetryRecipient(ctx context.Context, campaignID, contactID, workspaceID string) (*domain.DeliveryRecord, *domain.Contact, error)
	Schedule(ctx context.Context, campaignID, workspaceID string, at time.Time) (*domain.Campaign, error)
	Pause(ctx context.Context, campaignID, workspaceID string) (*domain.Campaign, error)
	Delete(ctx context.Context, campaignID, workspaceID string) error
	Stats(ctx context.Context, campaignID, workspaceID string) (*domain.CampaignStats, error)
}

// SegmentTester previews segment rules. Satisfied by segmentation.Engine.
type SegmentTester interface {
	Test(ctx context.Context, workspaceID string, rules segmentation.FilterRules, audienceID string) (*segmentation.TestResult, error)
}

// Handler serves the management API.
type Handler struct {
	campaigns CampaignService
	segments  SegmentTester
}

// NewHandler creates the API handler.
func NewHandler(campaigns CampaignService, segments SegmentTester) *Handler {
	return &Handler{campaigns: campaigns, segments: segments}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Workspace-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(requireWorkspace)

		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Post("/send", h.sendCampaign)
			r.Post("/retry-failed", h.retryFailed)
			r.Post("/recipients/{contactID}/retry", h.retryRecipient)
			r.Post("/schedule", h.scheduleCampaign)
			r.Post("/pause", h.pauseCampaign)
			r.Delete("/", h.deleteCampaign)
			r.Get("/stats", h.campaignStats)
		})

		r.Post("/segments/test", h.testSegment)
	})
	return r
}

type ctxKey int

const workspaceKey ctxKey = iota

// requireWorkspace extracts the workspace from the X-Workspace-ID header.
// Upstream auth terminates at the gateway; the header is trusted here.
func requireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := r.Header.Get("X-Workspace-ID")
		if ws == "" {
			httputil.BadRequest(w, "missing X-Workspace-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), workspaceKey, ws)))
	})
}

func workspaceID(r *http.Request) string {
	ws, _ := r.Context().Value(workspaceKey).(string)
	return ws
}
