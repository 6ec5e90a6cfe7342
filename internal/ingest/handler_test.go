package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

func TestUnwrapSNSEnvelope(t *testing.T) {
	payload, subURL, err := unwrapSNS([]byte(`{
		"Type": "Notification",
		"MessageId": "abc",
		"Message": "{\"notificationType\":\"Delivery\"}"
	}`))
	require.NoError(t, err)
	assert.Empty(t, subURL)
	assert.JSONEq(t, `{"notificationType":"Delivery"}`, string(payload))
}

func TestUnwrapSNSRawDelivery(t *testing.T) {
	raw := []byte(`{"notificationType":"Bounce","mail":{}}`)
	payload, subURL, err := unwrapSNS(raw)
	require.NoError(t, err)
	assert.Empty(t, subURL)
	assert.Equal(t, raw, payload)
}

func TestUnwrapSNSSubscriptionConfirmation(t *testing.T) {
	payload, subURL, err := unwrapSNS([]byte(`{
		"Type": "SubscriptionConfirmation",
		"SubscribeURL": "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription"
	}`))
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription", subURL)
}

func TestWebhookDeliveryNotification(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "jane@example.com", domain.DeliverySent)
	h := NewHandler(NewService(store))

	inner, _ := json.Marshal(map[string]any{
		"notificationType": "Delivery",
		"mail":             map[string]any{"messageId": "msg-1"},
		"delivery":         map[string]any{"recipients": []string{"jane@example.com"}},
	})
	envelope, _ := json.Marshal(map[string]any{
		"Type":    "Notification",
		"Message": string(inner),
	})

	req := httptest.NewRequest(http.MethodPost, "/ses", strings.NewReader(string(envelope)))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.DeliveryDelivered, store.records["r1"].Status)
}

func TestWebhookSubscriptionConfirmation(t *testing.T) {
	var confirmed atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confirmed.Store(true)
	}))
	defer upstream.Close()

	h := NewHandler(NewService(newMemStore()))

	envelope, _ := json.Marshal(map[string]any{
		"Type":         "SubscriptionConfirmation",
		"SubscribeURL": upstream.URL + "/?Action=ConfirmSubscription",
	})
	req := httptest.NewRequest(http.MethodPost, "/ses", strings.NewReader(string(envelope)))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, confirmed.Load())
}

func TestWebhookGarbageStillAccepted(t *testing.T) {
	h := NewHandler(NewService(newMemStore()))

	req := httptest.NewRequest(http.MethodPost, "/ses", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
