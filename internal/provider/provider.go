// Package provider holds the pluggable boundary to third-party send APIs.
// Channel handlers depend only on the interfaces here; concrete adapters
// (SES, the SMS gateway) are injected at startup.
package provider

import (
	"context"
	"time"
)

// EmailMessage is a provider-agnostic outbound email.
type EmailMessage struct {
	To       string
	From     string
	FromName string
	Subject  string
	HTMLBody string
	TextBody string
	// Tags are correlation metadata forwarded to the provider
	// (source tag, notification id).
	Tags map[string]string
}

// EmailResult is the provider acknowledgment for an accepted email.
type EmailResult struct {
	MessageID  string
	StatusCode int
	SentAt     time.Time
}

// EmailProvider sends a single email.
type EmailProvider interface {
	SendEmail(ctx context.Context, msg *EmailMessage) (*EmailResult, error)
}

// SMSMessage is one outbound SMS part or rich (MMS-equivalent) message.
type SMSMessage struct {
	To   string
	From string
	Body string
	// Rich marks the message for MMS-equivalent formatting: sent as a
	// single message preserving line breaks, no chunking.
	Rich bool
}

// SMSResult is the provider acknowledgment for an accepted message.
type SMSResult struct {
	MessageID  string
	StatusCode int
	SentAt     time.Time
}

// Delivery statuses reported by QueryStatus.
const (
	StatusDelivered   = "delivered"
	StatusFailed      = "failed"
	StatusUndelivered = "undelivered"
	StatusQueued      = "queued"
)

// SMSProvider sends SMS messages and reports delivery status.
type SMSProvider interface {
	SendSMS(ctx context.Context, msg *SMSMessage) (*SMSResult, error)
	// QueryStatus returns the provider's delivery status for a previously
	// accepted message id.
	QueryStatus(ctx context.Context, messageID string) (string, error)
}
