package ingest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// maxWebhookBody caps notification payload size.
const maxWebhookBody = 1 << 20

// Handler exposes the provider webhook endpoint.
type Handler struct {
	svc    *Service
	client *http.Client
}

// NewHandler creates a webhook handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:    svc,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Routes returns the webhook routes, meant to be mounted under /webhooks.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/ses", h.handleSES)
	return r
}

// handleSES accepts SNS-wrapped SES notifications. It always answers 200
// once the body is read: SNS retries non-2xx responses and a poison
// message would otherwise be redelivered indefinitely.
func (h *Handler) handleSES(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	payload, subscribeURL, err := unwrapSNS(body)
	if err != nil {
		logger.Warn("unparseable webhook body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if subscribeURL != "" {
		if err := confirmSubscription(h.client, subscribeURL); err != nil {
			logger.Error("subscription confirmation failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logger.Info("sns subscription confirmed")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Detach from the request context so provider-side timeouts cannot
	// abort a half-applied notification.
	ctx := context.WithoutCancel(r.Context())
	if err := h.svc.Process(ctx, payload); err != nil {
		logger.Warn("notification processing failed", "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
