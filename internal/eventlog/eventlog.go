// Package eventlog records the append-only delivery audit trail. Every send
// attempt produces one ATTEMPT entry and exactly one terminal SUCCESS or
// FAILED entry. Store write failures are swallowed with a local warning so
// that audit problems never mask the underlying send outcome.
package eventlog

import (
	"context"
	"log"
	"time"

	"github.com/ignite/notify-engine/internal/notification"
)

// Store persists event log entries. Implementations must treat entries as
// immutable once written.
type Store interface {
	Append(ctx context.Context, e *notification.EventLogEntry) error
	ListByNotification(ctx context.Context, notificationID string) ([]notification.EventLogEntry, error)
}

// Logger is the audit sink handed to channel handlers.
type Logger struct {
	store Store
}

// New creates an event logger backed by the given store.
func New(store Store) *Logger {
	return &Logger{store: store}
}

// LogAttempt records that a send is about to be dispatched.
func (l *Logger) LogAttempt(ctx context.Context, notificationID, recipient string, ch notification.Channel) {
	l.append(ctx, &notification.EventLogEntry{
		NotificationID: notificationID,
		Recipient:      recipient,
		Channel:        ch,
		Phase:          notification.PhaseAttempt,
		Timestamp:      time.Now().UTC(),
	})
}

// LogSuccess records a successful send with its provider correlation id.
func (l *Logger) LogSuccess(ctx context.Context, notificationID, recipient string, ch notification.Channel, providerMessageID string, processingTimeMs int64) {
	l.append(ctx, &notification.EventLogEntry{
		NotificationID:    notificationID,
		Recipient:         recipient,
		Channel:           ch,
		Phase:             notification.PhaseSuccess,
		ProviderMessageID: providerMessageID,
		ProcessingTimeMs:  processingTimeMs,
		Timestamp:         time.Now().UTC(),
	})
}

// LogFailed records a failed send with its error code and message.
func (l *Logger) LogFailed(ctx context.Context, notificationID, recipient string, ch notification.Channel, errorCode, errorMessage string, processingTimeMs int64) {
	l.append(ctx, &notification.EventLogEntry{
		NotificationID:   notificationID,
		Recipient:        recipient,
		Channel:          ch,
		Phase:            notification.PhaseFailed,
		ErrorCode:        errorCode,
		ErrorMessage:     errorMessage,
		ProcessingTimeMs: processingTimeMs,
		Timestamp:        time.Now().UTC(),
	})
}

func (l *Logger) append(ctx context.Context, e *notification.EventLogEntry) {
	if l == nil || l.store == nil {
		return
	}
	if err := l.store.Append(ctx, e); err != nil {
		// Never propagate audit failures to the caller.
		log.Printf("[EventLog] Warning: failed to append %s event for notification %s: %v",
			e.Phase, e.NotificationID, err)
	}
}
