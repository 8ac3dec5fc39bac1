package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/notify-engine/internal/notification"
)

// PostgresStore persists event log entries in the notify_event_log table.
type PostgresStore struct{ db *sql.DB }

// NewPostgresStore creates a Postgres-backed event log store.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Append(ctx context.Context, e *notification.EventLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notify_event_log
			(notification_id, recipient, channel, phase, provider_message_id, error_code, error_message, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.NotificationID, e.Recipient, string(e.Channel), string(e.Phase),
		nullable(e.ProviderMessageID), nullable(e.ErrorCode), nullable(e.ErrorMessage),
		e.ProcessingTimeMs, e.Timestamp)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByNotification(ctx context.Context, notificationID string) ([]notification.EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id, recipient, channel, phase,
		       COALESCE(provider_message_id, ''), COALESCE(error_code, ''), COALESCE(error_message, ''),
		       processing_time_ms, created_at
		FROM notify_event_log
		WHERE notification_id = $1
		ORDER BY created_at ASC
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var entries []notification.EventLogEntry
	for rows.Next() {
		var e notification.EventLogEntry
		var ch, phase string
		if err := rows.Scan(&e.NotificationID, &e.Recipient, &ch, &phase,
			&e.ProviderMessageID, &e.ErrorCode, &e.ErrorMessage,
			&e.ProcessingTimeMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Channel = notification.Channel(ch)
		e.Phase = notification.Phase(phase)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
