package tracking

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/pkg/httputil"
)

// transparentGIF is a 1x1 transparent GIF, served for every open request.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler exposes the tracking HTTP endpoints. The pixel and redirect
// responses succeed regardless of token validity or store health: the
// recipient's experience is never blocked by the tracking pipeline.
type Handler struct {
	svc *Service
}

// NewHandler creates the tracking handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the tracking endpoints on a router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/track/open/{token}", h.handleOpen)
	r.Get("/track/click/{token}", h.handleClick)
	r.Get("/track/unsubscribe/{token}", h.handleUnsubscribe)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	h.svc.RecordOpen(r.Context(), token, requestMetadata(r))

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(transparentGIF)
}

func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	target := r.URL.Query().Get("url")
	if target == "" {
		httputil.BadRequest(w, "missing url parameter")
		return
	}

	h.svc.RecordClick(r.Context(), token, target, requestMetadata(r))

	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if !h.svc.RecordUnsubscribe(r.Context(), token) {
		httputil.BadRequest(w, "invalid unsubscribe link")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<html><body><h1>You have been unsubscribed.</h1></body></html>"))
}

func requestMetadata(r *http.Request) map[string]any {
	return map[string]any{
		"user_agent": r.UserAgent(),
		"ip":         r.RemoteAddr,
	}
}
