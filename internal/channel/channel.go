// Package channel implements the per-channel delivery handlers and the
// router that maps channel identifiers to them. Handlers are synchronous:
// one Deliver call is one audited send attempt.
package channel

import (
	"context"

	"github.com/ignite/notify-engine/internal/notification"
)

// Content is the resolved message content for one queue record, either
// taken from directContent or rendered from the payload templates.
type Content struct {
	Subject   string
	HTMLBody  string
	TextBody  string
	SMSBody   string
	FromEmail string // optional per-record override of the configured default
}

// Task is one (recipient, channel) delivery unit expanded by the dispatcher.
type Task struct {
	NotificationID string
	EventType      string
	Contact        notification.Contact
	Content        Content
}

// Handler delivers a task on its channel.
type Handler interface {
	Deliver(ctx context.Context, task Task) error
}

// Router maps channel identifiers to handlers.
type Router struct {
	handlers map[notification.Channel]Handler
}

// NewRouter creates a router over the given handler set.
func NewRouter() *Router {
	return &Router{handlers: make(map[notification.Channel]Handler)}
}

// Register binds a handler to a channel identifier.
func (r *Router) Register(ch notification.Channel, h Handler) {
	r.handlers[ch] = h
}

// Resolve returns the handler for ch. An unrecognized identifier fails with
// UnknownChannelError, scoped to the single (recipient, channel) pair.
func (r *Router) Resolve(ch notification.Channel) (Handler, error) {
	h, ok := r.handlers[ch]
	if !ok {
		return nil, &notification.UnknownChannelError{Channel: string(ch)}
	}
	return h, nil
}
