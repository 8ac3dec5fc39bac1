// Package notification defines the domain model shared by the delivery
// engine: queue records, contacts, suppression records, event log entries,
// and the error taxonomy handlers report to the dispatcher.
package notification

import "time"

// Status is the lifecycle state of a queue record.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusRetrying Status = "RETRYING"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Priority orders records within the queue.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Weight maps a priority to a sortable integer (higher sends first).
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Channel identifies a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// DirectContent is pre-rendered content supplied by the enqueuer. When
// present it takes precedence over template rendering from Payload.
type DirectContent struct {
	Subject  string `json:"subject,omitempty"`
	HTMLBody string `json:"htmlBody,omitempty"`
	TextBody string `json:"textBody,omitempty"`
	SMSBody  string `json:"smsBody,omitempty"`
}

// QueueRecord is a persisted delivery job: one business event fanned out to
// recipientIds x channels. Records are created by external collaborators and
// mutated only by the dispatcher.
type QueueRecord struct {
	ID           string                 `json:"id"`
	EventType    string                 `json:"event_type"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Direct       *DirectContent         `json:"direct_content,omitempty"`
	RecipientIDs []string               `json:"recipient_ids"`
	Channels     []Channel              `json:"channels"`
	Status       Status                 `json:"status"`
	Priority     Priority               `json:"priority"`
	RetryCount   int                    `json:"retry_count"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	SentAt       *time.Time             `json:"sent_at,omitempty"`
	ScheduledAt  time.Time              `json:"scheduled_at"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Contact is a recipient record resolved from an external store. Read-only
// to this subsystem.
type Contact struct {
	ID           string
	DisplayName  string
	Email        string
	Phone        string
	EmailEnabled bool
	SMSEnabled   bool
}

// ChannelEnabled reports whether the contact accepts delivery on ch.
func (c *Contact) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return c.EmailEnabled
	case ChannelSMS:
		return c.SMSEnabled
	}
	return false
}

// SuppressionRecord blocks all email sends to an address.
type SuppressionRecord struct {
	Email  string
	Reason string
	Type   string // "bounce", "complaint", "manual"
}

// Phase is the audit phase of an event log entry.
type Phase string

const (
	PhaseAttempt Phase = "ATTEMPT"
	PhaseSuccess Phase = "SUCCESS"
	PhaseFailed  Phase = "FAILED"
)

// EventLogEntry is one append-only audit record. Every send attempt produces
// exactly one ATTEMPT entry followed by exactly one terminal entry.
type EventLogEntry struct {
	NotificationID    string    `json:"notification_id"`
	Recipient         string    `json:"recipient"`
	Channel           Channel   `json:"channel"`
	Phase             Phase     `json:"phase"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorCode         string    `json:"error_code,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ProcessingTimeMs  int64     `json:"processing_time_ms"`
	Timestamp         time.Time `json:"timestamp"`
}
