// Package dispatch expands queue records into (recipient, channel) delivery
// pairs, runs them through the channel handlers, and folds the results back
// into the record's state machine.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignite/notify-engine/internal/channel"
	"github.com/ignite/notify-engine/internal/config"
	"github.com/ignite/notify-engine/internal/notification"
	"github.com/ignite/notify-engine/internal/pkg/logger"
	"github.com/ignite/notify-engine/internal/template"
)

// ContactResolver resolves recipient IDs to contact records.
type ContactResolver interface {
	Resolve(ctx context.Context, id string) (*notification.Contact, error)
}

// Outcome is the state-machine transition computed for one processed record.
type Outcome struct {
	Status       notification.Status
	ErrorMessage string
	// NextAttempt is set only for RETRYING.
	NextAttempt time.Time
}

// Dispatcher processes one claimed queue record at a time.
type Dispatcher struct {
	router    *channel.Router
	contacts  ContactResolver
	templates *template.Engine
	limiter   *RateLimiter // nil disables rate limiting
	notify    config.NotifyConfig
}

// NewDispatcher wires the dispatcher. limiter may be nil, in which case no
// rate limiting is applied.
func NewDispatcher(router *channel.Router, contacts ContactResolver, templates *template.Engine, limiter *RateLimiter, notify config.NotifyConfig) *Dispatcher {
	return &Dispatcher{
		router:    router,
		contacts:  contacts,
		templates: templates,
		limiter:   limiter,
		notify:    notify,
	}
}

type pairError struct {
	recipientID string
	channel     notification.Channel
	err         error
}

// Process delivers one record to every enabled (recipient, channel) pair and
// returns the resulting transition. One pair's failure never prevents the
// remaining pairs from being attempted.
func (d *Dispatcher) Process(ctx context.Context, rec *notification.QueueRecord) Outcome {
	content, err := d.resolveContent(rec)
	if err != nil {
		// Content problems are deterministic; retrying cannot fix them.
		return Outcome{Status: notification.StatusFailed, ErrorMessage: err.Error()}
	}

	var (
		mu       sync.Mutex
		failures []pairError
		wg       sync.WaitGroup
	)

	for _, recipientID := range rec.RecipientIDs {
		wg.Add(1)
		go func(recipientID string) {
			defer wg.Done()

			contact, err := d.contacts.Resolve(ctx, recipientID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					err = &notification.ValidationError{Field: "recipient", Reason: fmt.Sprintf("unknown recipient %s", recipientID)}
				}
				mu.Lock()
				for _, ch := range rec.Channels {
					failures = append(failures, pairError{recipientID, ch, err})
				}
				mu.Unlock()
				return
			}

			// Channels for one recipient run sequentially; recipients fan
			// out concurrently.
			for _, ch := range rec.Channels {
				handler, err := d.router.Resolve(ch)
				if err != nil {
					// Unknown channel is a pair failure, never a skip.
					mu.Lock()
					failures = append(failures, pairError{recipientID, ch, err})
					mu.Unlock()
					continue
				}
				if !contact.ChannelEnabled(ch) {
					continue
				}
				if err := d.deliverPair(ctx, rec, *contact, ch, handler, content); err != nil {
					mu.Lock()
					failures = append(failures, pairError{recipientID, ch, err})
					mu.Unlock()
				}
			}
		}(recipientID)
	}
	wg.Wait()

	return d.fold(rec, failures)
}

// deliverPair runs one (recipient, channel) delivery, honoring the channel
// rate limit with a single wait-and-retry before giving up on the pair.
func (d *Dispatcher) deliverPair(ctx context.Context, rec *notification.QueueRecord, contact notification.Contact, ch notification.Channel, handler channel.Handler, content channel.Content) error {
	if d.limiter != nil {
		allowed, wait, err := d.limiter.CheckAndIncrement(ctx, ch, 1)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		if !allowed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			allowed, _, err = d.limiter.CheckAndIncrement(ctx, ch, 1)
			if err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
			if !allowed {
				return fmt.Errorf("rate limit exceeded for channel %s", ch)
			}
		}
	}

	err := handler.Deliver(ctx, channel.Task{
		NotificationID: rec.ID,
		EventType:      rec.EventType,
		Contact:        contact,
		Content:        content,
	})

	var cfgErr *notification.ConfigurationError
	if errors.As(err, &cfgErr) {
		logger.Error("channel configuration error",
			"channel", string(ch),
			"notification_id", rec.ID,
			"reason", cfgErr.Reason)
	}
	return err
}

// resolveContent prefers the record's pre-rendered content and falls back to
// rendering the event type's templates against the payload.
func (d *Dispatcher) resolveContent(rec *notification.QueueRecord) (channel.Content, error) {
	if rec.Direct != nil {
		return channel.Content{
			Subject:  rec.Direct.Subject,
			HTMLBody: rec.Direct.HTMLBody,
			TextBody: rec.Direct.TextBody,
			SMSBody:  rec.Direct.SMSBody,
		}, nil
	}

	rendered, err := d.templates.Render(rec.EventType, rec.Payload)
	if err != nil {
		return channel.Content{}, fmt.Errorf("resolve content: %w", err)
	}
	return channel.Content{
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTMLBody,
		TextBody: rendered.TextBody,
		SMSBody:  rendered.SMSBody,
	}, nil
}

// fold computes the record's next state from the collected pair failures.
// No failures means SENT. Failures transition to RETRYING with exponential
// backoff until the retry ceiling, unless every failure is permanent, in
// which case retrying is pointless and the record goes straight to FAILED.
func (d *Dispatcher) fold(rec *notification.QueueRecord, failures []pairError) Outcome {
	if len(failures) == 0 {
		return Outcome{Status: notification.StatusSent}
	}

	msgs := make([]string, 0, len(failures))
	allPermanent := true
	for _, f := range failures {
		msgs = append(msgs, fmt.Sprintf("%s/%s: %v", f.recipientID, f.channel, f.err))
		if !permanentError(f.err) {
			allPermanent = false
		}
	}
	errMsg := strings.Join(msgs, "; ")

	if allPermanent || rec.RetryCount+1 >= d.notify.MaxRetries {
		return Outcome{Status: notification.StatusFailed, ErrorMessage: errMsg}
	}

	backoff := d.notify.BackoffBase() * time.Duration(1<<rec.RetryCount)
	return Outcome{
		Status:       notification.StatusRetrying,
		ErrorMessage: errMsg,
		NextAttempt:  time.Now().Add(backoff),
	}
}

// permanentError reports whether retrying could never succeed for this
// failure.
func permanentError(err error) bool {
	var (
		supErr  *notification.SuppressionError
		valErr  *notification.ValidationError
		chanErr *notification.UnknownChannelError
		provErr *notification.ProviderError
		partial *notification.PartialMultipartFailure
	)
	switch {
	case errors.As(err, &supErr), errors.As(err, &valErr), errors.As(err, &chanErr):
		return true
	case errors.As(err, &provErr):
		return provErr.Permanent()
	case errors.As(err, &partial):
		return permanentError(partial.Err)
	}
	return false
}
