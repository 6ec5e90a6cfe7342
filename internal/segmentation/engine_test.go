package segmentation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

var contactCols = []string{
	"id", "workspace_id", "email", "first_name", "last_name",
	"custom_fields", "tags", "status", "source",
	"subscribed_at", "unsubscribed_at", "created_at", "updated_at",
}

func TestEngineEvaluate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM contacts c").
		WithArgs("ws-1", "subscribed").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("ct-1", "ws-1", "ada@example.com", "Ada", "Lovelace",
				[]byte(`{"plan":"pro"}`), "{vip}", "subscribed", "import",
				now, nil, now, now))

	engine := NewEngine(db)
	contacts, err := engine.Evaluate(context.Background(), "ws-1", FilterRules{
		Operator: LogicAnd,
		Conditions: []Condition{
			{Field: "status", Operator: OpEquals, Value: "subscribed"},
		},
	}, "")
	require.NoError(t, err)

	require.Len(t, contacts, 1)
	assert.Equal(t, "ct-1", contacts[0].ID)
	assert.Equal(t, "Ada", contacts[0].FirstName)
	assert.Equal(t, "pro", contacts[0].CustomFields["plan"])
	assert.Equal(t, []string{"vip"}, contacts[0].Tags)
	assert.Equal(t, domain.ContactSubscribed, contacts[0].Status)
	require.NotNil(t, contacts[0].SubscribedAt)
	assert.Nil(t, contacts[0].UnsubscribedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts c`).
		WithArgs("ws-1", "vip").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	engine := NewEngine(db)
	count, err := engine.Count(context.Background(), "ws-1", FilterRules{
		Operator: LogicAnd,
		Conditions: []Condition{
			{Field: "tags", Operator: OpContains, Value: "vip"},
		},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineTestPreviewCapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts c`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	now := time.Now()
	rows := sqlmock.NewRows(contactCols)
	for i := 0; i < 12; i++ {
		rows.AddRow("ct", "ws-1", "a@example.com", nil, nil,
			[]byte(`{}`), "{}", "subscribed", "api", nil, nil, now, now)
	}
	mock.ExpectQuery("SELECT (.+) FROM contacts c").
		WithArgs("ws-1").
		WillReturnRows(rows)

	engine := NewEngine(db)
	result, err := engine.Test(context.Background(), "ws-1", FilterRules{Operator: LogicAnd}, "")
	require.NoError(t, err)

	assert.Equal(t, 12, result.Count)
	assert.Len(t, result.Preview, 10)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineEvaluateQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM contacts c").
		WillReturnError(assert.AnError)

	engine := NewEngine(db)
	_, err = engine.Evaluate(context.Background(), "ws-1", FilterRules{Operator: LogicAnd}, "")
	assert.Error(t, err)
}
