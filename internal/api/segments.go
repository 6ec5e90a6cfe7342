package api

import (
	"net/http"

	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/segmentation"
)

type testSegmentRequest struct {
	Rules      segmentation.FilterRules `json:"rules"`
	AudienceID string                   `json:"audience_id,omitempty"`
}

// testSegment previews a rule set without saving a segment: matching count
// plus the first few contacts.
func (h *Handler) testSegment(w http.ResponseWriter, r *http.Request) {
	var req testSegmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := req.Rules.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := h.segments.Test(r.Context(), workspaceID(r), req.Rules, req.AudienceID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}
