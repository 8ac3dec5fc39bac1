package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignite/notify-engine/internal/config"
	"github.com/ignite/notify-engine/internal/eventlog"
	"github.com/ignite/notify-engine/internal/notification"
	"github.com/ignite/notify-engine/internal/pkg/logger"
	"github.com/ignite/notify-engine/internal/provider"
	"github.com/ignite/notify-engine/internal/suppression"
)

// initState tracks lazy provider initialization.
type initState int

const (
	stateUninitialized initState = iota
	stateInitializing
	stateReady
	stateFailed
)

// SuppressionChecker is the suppression lookup consulted before any
// provider call.
type SuppressionChecker interface {
	IsEmailSuppressed(ctx context.Context, email string) (suppression.Check, error)
}

// EmailProviderFactory builds the concrete email provider once credentials
// are available.
type EmailProviderFactory func(cfg config.SESConfig) (provider.EmailProvider, error)

// EmailSendOptions carries the optional per-send parameters.
type EmailSendOptions struct {
	From           string // overrides the configured default from-address
	NotificationID string
}

// EmailHandler sends a single formatted email through the provider adapter,
// consulting the suppression list and the event log.
type EmailHandler struct {
	ses         config.SESConfig
	notify      config.NotifyConfig
	factory     EmailProviderFactory
	suppression SuppressionChecker
	events      *eventlog.Logger

	mu       sync.Mutex
	state    initState
	provider provider.EmailProvider
}

// NewEmailHandler creates the email channel handler. The provider is
// initialized lazily on first send so a misconfigured deployment fails per
// send with ConfigurationError rather than at startup.
func NewEmailHandler(ses config.SESConfig, notify config.NotifyConfig, factory EmailProviderFactory, sup SuppressionChecker, events *eventlog.Logger) *EmailHandler {
	return &EmailHandler{
		ses:         ses,
		notify:      notify,
		factory:     factory,
		suppression: sup,
		events:      events,
	}
}

// ensureReady initializes the provider exactly once. A failed attempt is
// retried on the next call; concurrent callers serialize on the mutex so
// initialization is single-flight.
func (h *EmailHandler) ensureReady() (provider.EmailProvider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateReady {
		return h.provider, nil
	}

	if !h.ses.Configured() {
		h.state = stateFailed
		return nil, &notification.ConfigurationError{
			Channel: notification.ChannelEmail,
			Reason:  "SES credentials missing",
		}
	}

	h.state = stateInitializing
	p, err := h.factory(h.ses)
	if err != nil {
		h.state = stateFailed
		return nil, &notification.ConfigurationError{
			Channel: notification.ChannelEmail,
			Reason:  err.Error(),
		}
	}

	h.provider = p
	h.state = stateReady
	return p, nil
}

// Deliver implements Handler.
func (h *EmailHandler) Deliver(ctx context.Context, task Task) error {
	return h.Send(ctx, task.Contact.Email, task.Content.Subject,
		task.Content.HTMLBody, task.Content.TextBody,
		EmailSendOptions{From: task.Content.FromEmail, NotificationID: task.NotificationID})
}

// Send delivers one email. Every call logs an ATTEMPT entry followed by
// exactly one terminal SUCCESS or FAILED entry.
func (h *EmailHandler) Send(ctx context.Context, to, subject, htmlBody, textBody string, opts EmailSendOptions) error {
	p, err := h.ensureReady()
	if err != nil {
		logger.Error("email channel misconfigured", "error", err.Error())
		return err
	}

	if !strings.Contains(to, "@") {
		return &notification.ValidationError{Field: "email", Reason: fmt.Sprintf("malformed address %q", logger.RedactEmail(to))}
	}

	from := opts.From
	if from == "" {
		from = h.notify.DefaultFromEmail
	}
	if from == "" {
		return &notification.ConfigurationError{
			Channel: notification.ChannelEmail,
			Reason:  "no from-address configured",
		}
	}

	// Debug mode redirects to the debug inbox, tagging the subject with the
	// original recipient so the message stays traceable.
	if h.notify.DebugMode && h.notify.DebugEmail != "" {
		subject = fmt.Sprintf("[DEBUG → %s] %s", to, subject)
		to = h.notify.DebugEmail
	}

	start := time.Now()
	h.events.LogAttempt(ctx, opts.NotificationID, to, notification.ChannelEmail)

	check, err := h.suppression.IsEmailSuppressed(ctx, to)
	if err != nil {
		// Fail closed on lookup errors: skipping the check could mail a
		// suppressed address.
		h.events.LogFailed(ctx, opts.NotificationID, to, notification.ChannelEmail,
			"SUPPRESSION_LOOKUP_FAILED", err.Error(), time.Since(start).Milliseconds())
		return fmt.Errorf("suppression check: %w", err)
	}
	if check.Suppressed {
		h.events.LogFailed(ctx, opts.NotificationID, to, notification.ChannelEmail,
			"EMAIL_SUPPRESSED", check.Reason, time.Since(start).Milliseconds())
		return &notification.SuppressionError{Email: to, Reason: check.Reason, Type: check.Type}
	}

	msg := &provider.EmailMessage{
		To:       to,
		From:     from,
		FromName: h.notify.DefaultFromName,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
		Tags: map[string]string{
			"source":          "notify-engine",
			"notification_id": opts.NotificationID,
		},
	}

	result, err := p.SendEmail(ctx, msg)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		code := notification.ErrorCode(err)
		h.events.LogFailed(ctx, opts.NotificationID, to, notification.ChannelEmail, code, err.Error(), elapsed)
		return &notification.ProviderError{
			Channel: notification.ChannelEmail,
			Code:    code,
			Message: fmt.Sprintf("send to %s failed (html %d chars): %v", logger.RedactEmail(to), len(htmlBody), err),
		}
	}

	h.events.LogSuccess(ctx, opts.NotificationID, to, notification.ChannelEmail, result.MessageID, elapsed)
	return nil
}
