// Package postgres implements the persistence layer over PostgreSQL:
// the notification queue, contacts, suppressions, and stats.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/notify-engine/internal/notification"
)

// QueueStore manages notify_queue records.
type QueueStore struct {
	db *sql.DB
}

// NewQueueStore creates a queue store over db.
func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

// EnqueueParams are the caller-supplied fields of a new queue record.
type EnqueueParams struct {
	EventType    string
	Payload      map[string]interface{}
	Direct       *notification.DirectContent
	RecipientIDs []string
	Channels     []notification.Channel
	Priority     notification.Priority
	ScheduledAt  time.Time
}

// Enqueue inserts a new PENDING record and returns its generated ID.
func (s *QueueStore) Enqueue(ctx context.Context, p EnqueueParams) (string, error) {
	if p.EventType == "" {
		return "", &notification.ValidationError{Field: "event_type", Reason: "required"}
	}
	if len(p.RecipientIDs) == 0 {
		return "", &notification.ValidationError{Field: "recipient_ids", Reason: "at least one recipient required"}
	}
	if len(p.Channels) == 0 {
		return "", &notification.ValidationError{Field: "channels", Reason: "at least one channel required"}
	}
	if p.Priority == "" {
		p.Priority = notification.PriorityMedium
	}
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = time.Now()
	}

	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var directJSON interface{}
	if p.Direct != nil {
		b, err := json.Marshal(p.Direct)
		if err != nil {
			return "", fmt.Errorf("marshal direct content: %w", err)
		}
		directJSON = b
	}

	channels := make([]string, len(p.Channels))
	for i, ch := range p.Channels {
		channels[i] = string(ch)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notify_queue (
			id, event_type, payload, direct_content, recipient_ids, channels,
			status, priority, retry_count, scheduled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, NOW(), NOW())
	`, id, p.EventType, payloadJSON, directJSON,
		pq.Array(p.RecipientIDs), pq.Array(channels),
		notification.StatusPending, p.Priority, p.ScheduledAt)
	if err != nil {
		return "", fmt.Errorf("insert queue record: %w", err)
	}
	return id, nil
}

// ClaimBatch atomically claims up to limit due records for workerID. A record
// is due when it is PENDING or RETRYING, its scheduled_at has passed, and it
// is not held by a live claim. Claims older than the stale window are
// reclaimed so a crashed worker cannot strand records.
func (s *QueueStore) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*notification.QueueRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, `
		WITH claimed AS (
			UPDATE notify_queue
			SET
				worker_id = $1,
				locked_at = NOW(),
				updated_at = NOW()
			WHERE id IN (
				SELECT q.id FROM notify_queue q
				WHERE q.status IN ($2, $3)
				  AND q.scheduled_at <= NOW()
				  AND (q.locked_at IS NULL OR q.locked_at < NOW() - INTERVAL '5 minutes')
				ORDER BY
				  CASE q.priority WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC,
				  q.scheduled_at ASC
				LIMIT $4
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, event_type, payload, direct_content, recipient_ids,
			          channels, status, priority, retry_count,
			          COALESCE(error_message, ''), sent_at, scheduled_at,
			          created_at, updated_at
		)
		SELECT * FROM claimed
	`, workerID, notification.StatusPending, notification.StatusRetrying, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var records []*notification.QueueRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*notification.QueueRecord, error) {
	var (
		rec         notification.QueueRecord
		payloadJSON []byte
		directJSON  []byte
		channels    pq.StringArray
	)
	err := row.Scan(
		&rec.ID, &rec.EventType, &payloadJSON, &directJSON,
		pq.Array(&rec.RecipientIDs), &channels,
		&rec.Status, &rec.Priority, &rec.RetryCount,
		&rec.ErrorMessage, &rec.SentAt, &rec.ScheduledAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan queue record: %w", err)
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(directJSON) > 0 {
		rec.Direct = &notification.DirectContent{}
		if err := json.Unmarshal(directJSON, rec.Direct); err != nil {
			return nil, fmt.Errorf("unmarshal direct content: %w", err)
		}
	}
	rec.Channels = make([]notification.Channel, len(channels))
	for i, ch := range channels {
		rec.Channels[i] = notification.Channel(ch)
	}
	return &rec, nil
}

// Get fetches one record by ID. Returns sql.ErrNoRows when absent.
func (s *QueueStore) Get(ctx context.Context, id string) (*notification.QueueRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_type, payload, direct_content, recipient_ids,
		       channels, status, priority, retry_count,
		       COALESCE(error_message, ''), sent_at, scheduled_at,
		       created_at, updated_at
		FROM notify_queue
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

// MarkSent records a fully successful delivery and releases the claim.
func (s *QueueStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = $2, sent_at = NOW(), error_message = NULL,
		    worker_id = NULL, locked_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, notification.StatusSent)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkRetrying schedules another attempt: bumps the retry counter, records
// the error, sets the backoff deadline, and releases the claim.
func (s *QueueStore) MarkRetrying(ctx context.Context, id, errMsg string, nextAttempt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = $2, retry_count = retry_count + 1, error_message = $3,
		    scheduled_at = $4, worker_id = NULL, locked_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, notification.StatusRetrying, errMsg, nextAttempt)
	if err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}
	return nil
}

// MarkFailed records terminal failure and releases the claim. Terminal means
// no further attempts: the retry ceiling was hit or the error is permanent.
func (s *QueueStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = $2, error_message = $3,
		    worker_id = NULL, locked_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, notification.StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// QueueStats is a per-status snapshot of the queue.
type QueueStats struct {
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}

// Stats counts records per status.
func (s *QueueStore) Stats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM notify_queue GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := &QueueStats{}
	for rows.Next() {
		var status notification.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case notification.StatusPending:
			stats.Pending = count
		case notification.StatusRetrying:
			stats.Retrying = count
		case notification.StatusSent:
			stats.Sent = count
		case notification.StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}
