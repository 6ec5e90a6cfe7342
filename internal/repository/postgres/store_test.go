package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/esp"
	"github.com/ignite/campaign-engine/internal/ingest"
	"github.com/ignite/campaign-engine/internal/queue"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

var campaignCols = []string{
	"id", "workspace_id", "name", "subject", "preview_text",
	"from_name", "from_email", "reply_to", "content",
	"audience_id", "segment_id", "status", "scheduled_at", "sent_at",
	"created_at", "updated_at",
}

func TestGetCampaign(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs("camp-1", "ws-1").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			"camp-1", "ws-1", "Launch", "Big news", "", "Acme", "news@acme.test", "",
			[]byte(`"<p>hello</p>"`), "aud-1", nil, "draft", nil, nil, now, now))

	c, err := store.GetCampaign(context.Background(), "ws-1", "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "Launch", c.Name)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	require.NotNil(t, c.AudienceID)
	assert.Equal(t, "aud-1", *c.AudienceID)
	assert.Nil(t, c.SegmentID)
	assert.Equal(t, "<p>hello</p>", c.Content.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCampaignNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs("missing", "ws-1").
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err := store.GetCampaign(context.Background(), "ws-1", "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestUpdateCampaignStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateCampaignStatus(context.Background(), "missing", domain.CampaignSending, nil)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestBeginSending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE campaigns").
		WithArgs("camp-1", string(domain.CampaignSending),
			string(domain.CampaignSending), string(domain.CampaignSent)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.BeginSending(context.Background(), "camp-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginSendingAlreadyClaimed(t *testing.T) {
	store, mock := newMockStore(t)

	// A concurrent dispatch already flipped the status; zero rows match.
	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.BeginSending(context.Background(), "camp-1")
	assert.ErrorIs(t, err, campaign.ErrAlreadySending)
}

func TestCampaignStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM email_events").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"sent", "delivered", "opened", "clicked", "bounced", "complained"}).
			AddRow(100, 80, 40, 10, 5, 1))

	st, err := store.CampaignStats(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 100, st.Sent)
	assert.Equal(t, 80, st.Delivered)
	assert.InDelta(t, 0.5, st.OpenRate, 1e-9)
	assert.InDelta(t, 0.125, st.ClickRate, 1e-9)
}

func TestAudienceContacts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{
		"id", "workspace_id", "email", "first_name", "last_name",
		"custom_fields", "tags", "status", "source",
		"subscribed_at", "unsubscribed_at", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM contacts").
		WithArgs("aud-1", "ws-1", string(domain.ContactSubscribed)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "ws-1", "jane@example.com", "Jane", "Doe",
				[]byte(`{"company":"Acme"}`), "{vip,beta}", "subscribed", "import",
				now, nil, now, now))

	contacts, err := store.AudienceContacts(context.Background(), "ws-1", "aud-1")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "jane@example.com", contacts[0].Email)
	assert.Equal(t, "Acme", contacts[0].CustomFields["company"])
	assert.Equal(t, []string{"vip", "beta"}, contacts[0].Tags)
}

func TestDeliveryByMessageIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM delivery_records").
		WithArgs("msg-x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.DeliveryByMessageID(context.Background(), "msg-x")
	assert.ErrorIs(t, err, ingest.ErrRecordNotFound)
}

func TestRecordOpenTransactional(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now()
	ev := &domain.EmailEvent{
		ID:               "ev-1",
		DeliveryRecordID: "r1",
		Type:             domain.EventOpened,
		CreatedAt:        at,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE delivery_records").
		WithArgs("r1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.RecordOpen(context.Background(), "r1", ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordClickRollsBackOnEventError(t *testing.T) {
	store, mock := newMockStore(t)
	ev := &domain.EmailEvent{
		ID:               "ev-2",
		DeliveryRecordID: "r1",
		Type:             domain.EventClicked,
		CreatedAt:        time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE delivery_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_events").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	// The counter increment must not survive a failed event append.
	require.Error(t, store.RecordClick(context.Background(), "r1", ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueJob(t *testing.T) {
	store, mock := newMockStore(t)

	job := &queue.Job{
		ID:               "job-1",
		DeliveryRecordID: "r1",
		Message:          esp.Message{To: "jane@example.com", Subject: "hi"},
		Policy:           queue.DefaultRetryPolicy(),
		Status:           queue.JobQueued,
		NextAttemptAt:    time.Now(),
		CreatedAt:        time.Now(),
	}
	mock.ExpectExec("INSERT INTO send_jobs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Enqueue(context.Background(), job))
}

func TestClaimBatch(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	msg, _ := json.Marshal(esp.Message{To: "jane@example.com"})
	policy, _ := json.Marshal(queue.DefaultRetryPolicy())
	cols := []string{
		"id", "delivery_record_id", "message", "policy", "status",
		"attempts", "next_attempt_at", "last_error", "created_at",
	}
	mock.ExpectQuery("UPDATE send_jobs").
		WithArgs(string(queue.JobQueued), now, 10, string(queue.JobClaimed)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("job-1", "r1", msg, policy, "claimed", 0, now, "", now))

	jobs, err := store.ClaimBatch(context.Background(), 10, now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "jane@example.com", jobs[0].Message.To)
	assert.Equal(t, queue.JobClaimed, jobs[0].Status)
}

func TestMarkSentTransactional(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE send_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	job := &queue.Job{ID: "job-1", DeliveryRecordID: "r1", Attempts: 1}
	require.NoError(t, store.MarkSent(context.Background(), job, "msg-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeadRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE send_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_records").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	job := &queue.Job{ID: "job-1", DeliveryRecordID: "r1", Attempts: 5}
	err := store.MarkDead(context.Background(), job, "smtp timeout", time.Now())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContactStatusByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE contacts").
		WithArgs("gone@example.com", string(domain.ContactBounced)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateContactStatusByEmail(context.Background(), "gone@example.com", domain.ContactBounced)
	assert.NoError(t, err)
}
