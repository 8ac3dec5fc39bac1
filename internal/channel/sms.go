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
)

// SMSProviderFactory builds the concrete SMS provider once credentials are
// available.
type SMSProviderFactory func(cfg config.SMSGatewayConfig) (provider.SMSProvider, error)

// SMSMeta carries the audit context for one SMS send.
type SMSMeta struct {
	NotificationID string
	EventType      string
	RecipientName  string
}

// SMSHandler decides MMS-equivalent vs. chunked SMS, sends parts strictly
// sequentially with a fixed inter-part delay, and re-checks delivery status
// asynchronously after submission.
type SMSHandler struct {
	gateway config.SMSGatewayConfig
	notify  config.NotifyConfig
	factory SMSProviderFactory
	events  *eventlog.Logger

	partDelay        time.Duration
	statusCheckDelay time.Duration

	mu       sync.Mutex
	state    initState
	provider provider.SMSProvider

	// Status re-check tasks are bound to the handler lifecycle: Close
	// cancels pending checks without touching already-recorded outcomes.
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewSMSHandler creates the SMS channel handler.
func NewSMSHandler(gateway config.SMSGatewayConfig, notify config.NotifyConfig, factory SMSProviderFactory, events *eventlog.Logger) *SMSHandler {
	return &SMSHandler{
		gateway:          gateway,
		notify:           notify,
		factory:          factory,
		events:           events,
		partDelay:        notify.SMSPartDelay(),
		statusCheckDelay: notify.SMSStatusCheckDelay(),
		done:             make(chan struct{}),
	}
}

// Close cancels pending delivery-status checks and waits for them to stop.
func (h *SMSHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

func (h *SMSHandler) ensureReady() (provider.SMSProvider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateReady {
		return h.provider, nil
	}

	if !h.gateway.Configured() {
		h.state = stateFailed
		return nil, &notification.ConfigurationError{
			Channel: notification.ChannelSMS,
			Reason:  "SMS gateway credentials missing",
		}
	}

	h.state = stateInitializing
	p, err := h.factory(h.gateway)
	if err != nil {
		h.state = stateFailed
		return nil, &notification.ConfigurationError{
			Channel: notification.ChannelSMS,
			Reason:  err.Error(),
		}
	}

	h.provider = p
	h.state = stateReady
	return p, nil
}

// Deliver implements Handler.
func (h *SMSHandler) Deliver(ctx context.Context, task Task) error {
	return h.Send(ctx, task.Contact.Phone, task.Content.SMSBody, SMSMeta{
		NotificationID: task.NotificationID,
		EventType:      task.EventType,
		RecipientName:  task.Contact.DisplayName,
	})
}

// Send delivers one logical SMS, possibly as multiple sequential parts.
// The whole multipart operation logs one ATTEMPT entry and one terminal
// entry; if part k fails, parts k+1..n are never attempted and already-sent
// parts are not rolled back.
func (h *SMSHandler) Send(ctx context.Context, to, body string, meta SMSMeta) error {
	p, err := h.ensureReady()
	if err != nil {
		logger.Error("sms channel misconfigured", "error", err.Error())
		return err
	}

	if !validPhone(to) {
		return &notification.ValidationError{Field: "phone", Reason: fmt.Sprintf("malformed number %q", logger.RedactPhone(to))}
	}
	if body == "" {
		return &notification.ValidationError{Field: "sms body", Reason: "empty message"}
	}

	// Debug mode: never dial the real recipient. Redirect to the debug
	// phone and prepend an envelope identifying the original target.
	if h.notify.DebugMode && h.notify.DebugPhone != "" {
		body = fmt.Sprintf("[DEBUG] to: %s %s | notification: %s | event: %s\n%s",
			meta.RecipientName, to, meta.NotificationID, meta.EventType, body)
		to = h.notify.DebugPhone
	}

	from := h.notify.DefaultFromNumber
	if from == "" {
		return &notification.ConfigurationError{
			Channel: notification.ChannelSMS,
			Reason:  "no from-number configured",
		}
	}

	rich := false
	var parts []string
	switch {
	case len(body) <= singlePartLimit && !strings.Contains(body, "\n"):
		parts = []string{body}
	case useRichFormat(body):
		rich = true
		parts = []string{body}
	default:
		parts = chunkBody(body, chunkLimit)
	}

	start := time.Now()
	h.events.LogAttempt(ctx, meta.NotificationID, to, notification.ChannelSMS)

	n := len(parts)
	messageIDs := make([]string, 0, n)
	var lastErr error
	for i, part := range parts {
		if i > 0 {
			// Hard ordering/rate-limit constraint: parts go out strictly
			// sequentially with a fixed delay between them.
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(h.partDelay):
			}
			if lastErr != nil {
				break
			}
		}

		result, err := p.SendSMS(ctx, &provider.SMSMessage{
			To:   to,
			From: from,
			Body: part + partSuffix(i+1, n),
			Rich: rich,
		})
		if err != nil {
			lastErr = err
			// Remaining parts are abandoned; sent parts stay sent.
			if n > 1 {
				lastErr = &notification.PartialMultipartFailure{
					Part:       i + 1,
					TotalParts: n,
					SentParts:  i,
					Err:        err,
				}
			}
			break
		}
		messageIDs = append(messageIDs, result.MessageID)
	}

	elapsed := time.Since(start).Milliseconds()
	if lastErr != nil {
		h.events.LogFailed(ctx, meta.NotificationID, to, notification.ChannelSMS,
			notification.ErrorCode(lastErr), lastErr.Error(), elapsed)
		return lastErr
	}

	h.events.LogSuccess(ctx, meta.NotificationID, to, notification.ChannelSMS, messageIDs[0], elapsed)
	h.scheduleStatusCheck(p, meta.NotificationID, messageIDs)
	return nil
}

// scheduleStatusCheck re-queries the provider for delivery status of each
// sent part after a fixed delay. Fire-and-forget: it never blocks the
// caller or changes the already-reported outcome, and it is safe to drop on
// shutdown.
func (h *SMSHandler) scheduleStatusCheck(p provider.SMSProvider, notificationID string, messageIDs []string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		select {
		case <-h.done:
			return
		case <-time.After(h.statusCheckDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		for _, id := range messageIDs {
			status, err := p.QueryStatus(ctx, id)
			if err != nil {
				logger.Warn("sms status check failed", "notification_id", notificationID, "message_id", id, "error", err.Error())
				continue
			}
			if status == provider.StatusFailed || status == provider.StatusUndelivered {
				logger.Warn("sms part reported undelivered", "notification_id", notificationID, "message_id", id, "status", status)
			}
		}
	}()
}

// validPhone accepts E.164-ish numbers: optional leading +, then digits.
func validPhone(phone string) bool {
	s := strings.TrimPrefix(phone, "+")
	if len(s) < 7 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
