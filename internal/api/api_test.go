package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/segmentation"
)

// fakeCampaigns scripts per-method results.
type fakeCampaigns struct {
	sendResult *campaign.SendResult
	sendErr    error
	retryRes   *campaign.RetryResult
	recipRec   *domain.DeliveryRecord
	recipCt    *domain.Contact
	recipErr   error
	schedErr   error
	deleteErr  error
	stats      *domain.CampaignStats

	lastWorkspace string
}

func (f *fakeCampaigns) Send(_ context.Context, _, ws string) (*campaign.SendResult, error) {
	f.lastWorkspace = ws
	return f.sendResult, f.sendErr
}

func (f *fakeCampaigns) RetryFailed(_ context.Context, _, _ string) (*campaign.RetryResult, error) {
	return f.retryRes, nil
}

func (f *fakeCampaigns) RetryRecipient(_ context.Context, _, _, _ string) (*domain.DeliveryRecord, *domain.Contact, error) {
	return f.recipRec, f.recipCt, f.recipErr
}

func (f *fakeCampaigns) Schedule(_ context.Context, id, _ string, at time.Time) (*domain.Campaign, error) {
	if f.schedErr != nil {
		return nil, f.schedErr
	}
	return &domain.Campaign{ID: id, Status: domain.CampaignScheduled, ScheduledAt: &at}, nil
}

func (f *fakeCampaigns) Pause(_ context.Context, id, _ string) (*domain.Campaign, error) {
	return &domain.Campaign{ID: id, Status: domain.CampaignPaused}, nil
}

func (f *fakeCampaigns) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeCampaigns) Stats(_ context.Context, _, _ string) (*domain.CampaignStats, error) {
	return f.stats, nil
}

type fakeSegments struct {
	result *segmentation.TestResult
	err    error
}

func (f *fakeSegments) Test(_ context.Context, _ string, _ segmentation.FilterRules, _ string) (*segmentation.TestResult, error) {
	return f.result, f.err
}

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Workspace-ID", "ws-1")
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func TestSendEndpoint(t *testing.T) {
	fc := &fakeCampaigns{sendResult: &campaign.SendResult{
		Campaign:   &domain.Campaign{ID: "camp-1", Status: domain.CampaignSent},
		Recipients: 3, Enqueued: 3,
	}}
	h := NewHandler(fc, &fakeSegments{})

	rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/send", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ws-1", fc.lastWorkspace)

	var res campaign.SendResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Enqueued)
}

func TestSendMissingWorkspaceHeader(t *testing.T) {
	h := NewHandler(&fakeCampaigns{}, &fakeSegments{})

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp-1/send", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", campaign.ErrNotFound, http.StatusNotFound},
		{"invalid targeting", campaign.ErrInvalidTargeting, http.StatusBadRequest},
		{"already sending", campaign.ErrAlreadySending, http.StatusConflict},
		{"enqueue failed", campaign.ErrEnqueueFailed, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeCampaigns{sendErr: tc.err}, &fakeSegments{})
			rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/send", "")
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestRetryFailedEndpoint(t *testing.T) {
	h := NewHandler(&fakeCampaigns{retryRes: &campaign.RetryResult{Retried: 2, Total: 3}}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/retry-failed", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["retried"])
	assert.EqualValues(t, 3, body["total"])
}

func TestRetryRecipientEndpoint(t *testing.T) {
	h := NewHandler(&fakeCampaigns{
		recipRec: &domain.DeliveryRecord{ID: "r1", ContactID: "c1"},
		recipCt:  &domain.Contact{ID: "c1", Email: "jane@example.com"},
	}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/recipients/c1/retry", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Message          string         `json:"message"`
		DeliveryRecordID string         `json:"delivery_record_id"`
		Contact          domain.Contact `json:"contact"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "r1", body.DeliveryRecordID)
	assert.Equal(t, "jane@example.com", body.Contact.Email)
}

func TestRetryRecipientNotFailed(t *testing.T) {
	h := NewHandler(&fakeCampaigns{recipErr: campaign.ErrNotFailed}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/recipients/c1/retry", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestScheduleEndpoint(t *testing.T) {
	h := NewHandler(&fakeCampaigns{}, &fakeSegments{})

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/schedule",
		`{"scheduled_at": "`+at+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestScheduleMissingTime(t *testing.T) {
	h := NewHandler(&fakeCampaigns{}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodPost, "/api/campaigns/camp-1/schedule", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	h := NewHandler(&fakeCampaigns{}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodDelete, "/api/campaigns/camp-1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestDeleteNonDraft(t *testing.T) {
	h := NewHandler(&fakeCampaigns{deleteErr: campaign.ErrNotDraft}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodDelete, "/api/campaigns/camp-1", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStatsEndpoint(t *testing.T) {
	h := NewHandler(&fakeCampaigns{stats: &domain.CampaignStats{Sent: 10, Opened: 4}}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodGet, "/api/campaigns/camp-1/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var st domain.CampaignStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, 10, st.Sent)
}

func TestSegmentTestEndpoint(t *testing.T) {
	h := NewHandler(&fakeCampaigns{}, &fakeSegments{result: &segmentation.TestResult{
		Count:   42,
		Preview: []domain.Contact{{ID: "c1", Email: "jane@example.com"}},
	}})

	rr := doRequest(t, h, http.MethodPost, "/api/segments/test", `{
		"rules": {
			"operator": "AND",
			"conditions": [{"field": "status", "operator": "equals", "value": "subscribed"}]
		}
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var res segmentation.TestResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 42, res.Count)
	require.Len(t, res.Preview, 1)
}

func TestSegmentTestInvalidRules(t *testing.T) {
	h := NewHandler(&fakeCampaigns{}, &fakeSegments{})

	rr := doRequest(t, h, http.MethodPost, "/api/segments/test", `{
		"rules": {"operator": "XOR", "conditions": []}
	}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
