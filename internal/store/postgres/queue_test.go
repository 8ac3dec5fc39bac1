package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notify-engine/internal/notification"
)

func newMockQueue(t *testing.T) (*QueueStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueueStore(db), mock
}

func TestEnqueueValidation(t *testing.T) {
	store, _ := newMockQueue(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, EnqueueParams{
		RecipientIDs: []string{"c1"},
		Channels:     []notification.Channel{notification.ChannelEmail},
	})
	assert.Error(t, err, "missing event type")

	_, err = store.Enqueue(ctx, EnqueueParams{
		EventType: "system.alert",
		Channels:  []notification.Channel{notification.ChannelEmail},
	})
	assert.Error(t, err, "missing recipients")

	_, err = store.Enqueue(ctx, EnqueueParams{
		EventType:    "system.alert",
		RecipientIDs: []string{"c1"},
	})
	assert.Error(t, err, "missing channels")
}

func TestEnqueueInsertsPending(t *testing.T) {
	store, mock := newMockQueue(t)

	mock.ExpectExec("INSERT INTO notify_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Enqueue(context.Background(), EnqueueParams{
		EventType:    "system.alert",
		Payload:      map[string]interface{}{"title": "disk full"},
		RecipientIDs: []string{"c1"},
		Channels:     []notification.Channel{notification.ChannelEmail},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func queueColumns() []string {
	return []string{
		"id", "event_type", "payload", "direct_content", "recipient_ids",
		"channels", "status", "priority", "retry_count", "error_message",
		"sent_at", "scheduled_at", "created_at", "updated_at",
	}
}

func TestClaimBatchScansRecords(t *testing.T) {
	store, mock := newMockQueue(t)

	now := time.Now()
	rows := sqlmock.NewRows(queueColumns()).AddRow(
		"rec-1", "system.alert",
		[]byte(`{"title":"disk full"}`), nil,
		"{c1,c2}", "{EMAIL,SMS}",
		"PENDING", "HIGH", 0, "",
		nil, now, now, now,
	)
	mock.ExpectQuery("UPDATE notify_queue").WillReturnRows(rows)

	records, err := store.ClaimBatch(context.Background(), "worker-1", 25)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "system.alert", rec.EventType)
	assert.Equal(t, "disk full", rec.Payload["title"])
	assert.Equal(t, []string{"c1", "c2"}, rec.RecipientIDs)
	assert.Equal(t, []notification.Channel{notification.ChannelEmail, notification.ChannelSMS}, rec.Channels)
	assert.Equal(t, notification.StatusPending, rec.Status)
	assert.Equal(t, notification.PriorityHigh, rec.Priority)
	assert.Nil(t, rec.Direct)
}

func TestClaimBatchParsesDirectContent(t *testing.T) {
	store, mock := newMockQueue(t)

	now := time.Now()
	rows := sqlmock.NewRows(queueColumns()).AddRow(
		"rec-2", "manual.send",
		nil, []byte(`{"subject":"Hi","htmlBody":"<p>x</p>","textBody":"x","smsBody":"x"}`),
		"{c1}", "{EMAIL}",
		"RETRYING", "MEDIUM", 1, "previous failure",
		nil, now, now, now,
	)
	mock.ExpectQuery("UPDATE notify_queue").WillReturnRows(rows)

	records, err := store.ClaimBatch(context.Background(), "worker-1", 25)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Direct)
	assert.Equal(t, "Hi", records[0].Direct.Subject)
	assert.Equal(t, 1, records[0].RetryCount)
	assert.Equal(t, "previous failure", records[0].ErrorMessage)
}

func TestMarkSent(t *testing.T) {
	store, mock := newMockQueue(t)

	mock.ExpectExec("UPDATE notify_queue").
		WithArgs("rec-1", notification.StatusSent).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkSent(context.Background(), "rec-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRetrying(t *testing.T) {
	store, mock := newMockQueue(t)

	next := time.Now().Add(2 * time.Minute)
	mock.ExpectExec("UPDATE notify_queue").
		WithArgs("rec-1", notification.StatusRetrying, "provider timeout", next).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkRetrying(context.Background(), "rec-1", "provider timeout", next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed(t *testing.T) {
	store, mock := newMockQueue(t)

	mock.ExpectExec("UPDATE notify_queue").
		WithArgs("rec-1", notification.StatusFailed, "retries exhausted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkFailed(context.Background(), "rec-1", "retries exhausted"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	store, mock := newMockQueue(t)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("PENDING", 5).
		AddRow("SENT", 120).
		AddRow("FAILED", 3)
	mock.ExpectQuery("SELECT status, COUNT").WillReturnRows(rows)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 120, stats.Sent)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 0, stats.Retrying)
}
