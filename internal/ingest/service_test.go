package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

// memStore is an in-memory Store for ingest tests.
type memStore struct {
	mu       sync.Mutex
	records  map[string]*domain.DeliveryRecord // by id
	byMsgID  map[string]string                 // messageID -> record id
	byEmail  map[string]string                 // email -> record id (latest)
	contacts map[string]domain.ContactStatus   // email -> status
	events   []*domain.EmailEvent
}

func newMemStore() *memStore {
	return &memStore{
		records:  make(map[string]*domain.DeliveryRecord),
		byMsgID:  make(map[string]string),
		byEmail:  make(map[string]string),
		contacts: make(map[string]domain.ContactStatus),
	}
}

func (m *memStore) addRecord(id, messageID, email string, status domain.DeliveryStatus) {
	m.records[id] = &domain.DeliveryRecord{ID: id, Status: status, MessageID: messageID}
	if messageID != "" {
		m.byMsgID[messageID] = id
	}
	m.byEmail[email] = id
	m.contacts[email] = domain.ContactSubscribed
}

func (m *memStore) DeliveryByMessageID(_ context.Context, messageID string) (*domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byMsgID[messageID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *m.records[id]
	return &cp, nil
}

func (m *memStore) LatestDeliveryByEmail(_ context.Context, email string) (*domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *m.records[id]
	return &cp, nil
}

func (m *memStore) UpdateDeliveryStatus(_ context.Context, recordID string, status domain.DeliveryStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Status = status
	if status == domain.DeliveryDelivered {
		rec.DeliveredAt = &at
	}
	return nil
}

func (m *memStore) UpdateContactStatusByEmail(_ context.Context, email string, status domain.ContactStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[email] = status
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, ev *domain.EmailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) eventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestHandleDelivery(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "jane@example.com", domain.DeliverySent)
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"notificationType": "Delivery",
		"mail": {"messageId": "msg-1"},
		"delivery": {"recipients": ["jane@example.com"]}
	}`))
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryDelivered, store.records["r1"].Status)
	require.NotNil(t, store.records["r1"].DeliveredAt)
	assert.Equal(t, []domain.EventType{domain.EventDelivered}, store.eventTypes())
	assert.Equal(t, domain.ContactSubscribed, store.contacts["jane@example.com"])
}

func TestHandlePermanentBounce(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "gone@example.com", domain.DeliverySent)
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"notificationType": "Bounce",
		"mail": {"messageId": "msg-1"},
		"bounce": {
			"bounceType": "Permanent",
			"bounceSubType": "General",
			"bouncedRecipients": [
				{"emailAddress": "gone@example.com", "diagnosticCode": "smtp; 550 5.1.1 user unknown"}
			]
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryBounced, store.records["r1"].Status)
	assert.Equal(t, domain.ContactBounced, store.contacts["gone@example.com"])

	require.Len(t, store.events, 1)
	ev := store.events[0]
	assert.Equal(t, domain.EventBounced, ev.Type)
	assert.Equal(t, "Permanent", ev.Metadata["bounce_type"])
	assert.Equal(t, "smtp; 550 5.1.1 user unknown", ev.Metadata["diagnostic_code"])
}

func TestHandleTransientBounceSuppressesContact(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "full@example.com", domain.DeliverySent)
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"notificationType": "Bounce",
		"mail": {"messageId": "msg-1"},
		"bounce": {
			"bounceType": "Transient",
			"bounceSubType": "MailboxFull",
			"bouncedRecipients": [{"emailAddress": "full@example.com"}]
		}
	}`))
	require.NoError(t, err)

	// Every bounce suppresses the contact; the type survives in metadata.
	assert.Equal(t, domain.DeliveryBounced, store.records["r1"].Status)
	assert.Equal(t, domain.ContactBounced, store.contacts["full@example.com"])
	require.Len(t, store.events, 1)
	assert.Equal(t, "Transient", store.events[0].Metadata["bounce_type"])
}

func TestHandleComplaint(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "angry@example.com", domain.DeliveryDelivered)
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"eventType": "Complaint",
		"mail": {"messageId": "msg-1"},
		"complaint": {
			"complaintFeedbackType": "abuse",
			"complainedRecipients": [{"emailAddress": "angry@example.com"}]
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryComplained, store.records["r1"].Status)
	assert.Equal(t, domain.ContactComplained, store.contacts["angry@example.com"])
	require.Len(t, store.events, 1)
	assert.Equal(t, "abuse", store.events[0].Metadata["feedback_type"])
}

func TestStaleDeliveryAfterBounceIgnored(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "gone@example.com", domain.DeliveryBounced)
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"notificationType": "Delivery",
		"mail": {"messageId": "msg-1"},
		"delivery": {"recipients": ["gone@example.com"]}
	}`))
	require.NoError(t, err)

	// Out-of-order delivery confirmation must not regress the bounce.
	assert.Equal(t, domain.DeliveryBounced, store.records["r1"].Status)
	assert.Empty(t, store.events)
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "msg-1", "jane@example.com", domain.DeliverySent)
	svc := NewService(store)

	payload := []byte(`{
		"notificationType": "Delivery",
		"mail": {"messageId": "msg-1"},
		"delivery": {"recipients": ["jane@example.com"]}
	}`)
	require.NoError(t, svc.Process(context.Background(), payload))
	require.NoError(t, svc.Process(context.Background(), payload))

	assert.Equal(t, domain.DeliveryDelivered, store.records["r1"].Status)
	assert.Len(t, store.events, 1)
}

func TestFallbackLookupByEmail(t *testing.T) {
	store := newMemStore()
	store.addRecord("r1", "", "jane@example.com", domain.DeliverySent)
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"notificationType": "Delivery",
		"mail": {"messageId": "unknown-msg"},
		"delivery": {"recipients": ["jane@example.com"]}
	}`))
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryDelivered, store.records["r1"].Status)
}

func TestUnknownRecipientDropped(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	err := svc.Process(context.Background(), []byte(`{
		"notificationType": "Delivery",
		"mail": {"messageId": "msg-x"},
		"delivery": {"recipients": ["stranger@example.com"]}
	}`))
	require.NoError(t, err)
	assert.Empty(t, store.events)
}

func TestUnknownKindIgnored(t *testing.T) {
	svc := NewService(newMemStore())
	err := svc.Process(context.Background(), []byte(`{"eventType": "Rendering Failure", "mail": {}}`))
	assert.NoError(t, err)
}
