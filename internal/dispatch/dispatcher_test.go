package dispatch

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notify-engine/internal/channel"
	"github.com/ignite/notify-engine/internal/config"
	"github.com/ignite/notify-engine/internal/notification"
	"github.com/ignite/notify-engine/internal/template"
)

type fakeContacts struct {
	contacts map[string]*notification.Contact
}

func (f *fakeContacts) Resolve(ctx context.Context, id string) (*notification.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

type fakeHandler struct {
	mu    sync.Mutex
	tasks []channel.Task
	errs  map[string]error // keyed by contact ID
}

func (f *fakeHandler) Deliver(ctx context.Context, task channel.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	if f.errs != nil {
		return f.errs[task.Contact.ID]
	}
	return nil
}

func (f *fakeHandler) delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func dispatchConfig() config.NotifyConfig {
	return config.NotifyConfig{MaxRetries: 3, BackoffBaseSeconds: 60}
}

func contact(id, email, phone string) *notification.Contact {
	return &notification.Contact{
		ID: id, DisplayName: id, Email: email, Phone: phone,
		EmailEnabled: true, SMSEnabled: true,
	}
}

func directRecord(recipients []string, channels []notification.Channel) *notification.QueueRecord {
	return &notification.QueueRecord{
		ID:           "rec-1",
		EventType:    "system.alert",
		Direct:       &notification.DirectContent{Subject: "S", HTMLBody: "<p>b</p>", TextBody: "b", SMSBody: "b"},
		RecipientIDs: recipients,
		Channels:     channels,
		Status:       notification.StatusPending,
	}
}

func newTestDispatcher(contacts ContactResolver, email, sms channel.Handler) *Dispatcher {
	router := channel.NewRouter()
	if email != nil {
		router.Register(notification.ChannelEmail, email)
	}
	if sms != nil {
		router.Register(notification.ChannelSMS, sms)
	}
	return NewDispatcher(router, contacts, template.NewEngine(), nil, dispatchConfig())
}

func TestProcessAllPairsSucceed(t *testing.T) {
	email := &fakeHandler{}
	sms := &fakeHandler{}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", "+15550000001"),
		"c2": contact("c2", "b@example.com", "+15550000002"),
	}}
	d := newTestDispatcher(contacts, email, sms)

	rec := directRecord([]string{"c1", "c2"}, []notification.Channel{notification.ChannelEmail, notification.ChannelSMS})
	outcome := d.Process(context.Background(), rec)

	assert.Equal(t, notification.StatusSent, outcome.Status)
	assert.Equal(t, 2, email.delivered())
	assert.Equal(t, 2, sms.delivered())
}

func TestProcessRetryableFailureSchedulesRetry(t *testing.T) {
	email := &fakeHandler{errs: map[string]error{
		"c1": &notification.ProviderError{Channel: notification.ChannelEmail, Code: "QUOTA_EXCEEDED", Message: "throttled"},
	}}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1"}, []notification.Channel{notification.ChannelEmail})
	before := time.Now()
	outcome := d.Process(context.Background(), rec)

	require.Equal(t, notification.StatusRetrying, outcome.Status)
	assert.Contains(t, outcome.ErrorMessage, "QUOTA_EXCEEDED")
	// First retry: backoff base * 2^0 = 60s.
	assert.WithinDuration(t, before.Add(60*time.Second), outcome.NextAttempt, 5*time.Second)
}

func TestProcessBackoffDoublesPerRetry(t *testing.T) {
	email := &fakeHandler{errs: map[string]error{
		"c1": &notification.ProviderError{Channel: notification.ChannelEmail, Code: "QUOTA_EXCEEDED", Message: "throttled"},
	}}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1"}, []notification.Channel{notification.ChannelEmail})
	rec.RetryCount = 1
	before := time.Now()
	outcome := d.Process(context.Background(), rec)

	require.Equal(t, notification.StatusRetrying, outcome.Status)
	// Second retry: backoff base * 2^1 = 120s.
	assert.WithinDuration(t, before.Add(120*time.Second), outcome.NextAttempt, 5*time.Second)
}

func TestProcessRetryCeilingFails(t *testing.T) {
	email := &fakeHandler{errs: map[string]error{
		"c1": &notification.ProviderError{Channel: notification.ChannelEmail, Code: "QUOTA_EXCEEDED", Message: "throttled"},
	}}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1"}, []notification.Channel{notification.ChannelEmail})
	rec.RetryCount = 2 // third attempt is the last
	outcome := d.Process(context.Background(), rec)

	assert.Equal(t, notification.StatusFailed, outcome.Status)
	assert.NotEmpty(t, outcome.ErrorMessage)
}

func TestProcessPermanentFailureSkipsRetries(t *testing.T) {
	email := &fakeHandler{errs: map[string]error{
		"c1": &notification.SuppressionError{Email: "a@example.com", Reason: "hard bounce", Type: "bounce"},
	}}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1"}, []notification.Channel{notification.ChannelEmail})
	outcome := d.Process(context.Background(), rec)

	// Retries remain, but a suppressed address can never succeed.
	assert.Equal(t, notification.StatusFailed, outcome.Status)
}

func TestProcessMixedFailureRetries(t *testing.T) {
	email := &fakeHandler{errs: map[string]error{
		"c1": &notification.SuppressionError{Email: "a@example.com", Reason: "bounce", Type: "bounce"},
		"c2": &notification.ProviderError{Channel: notification.ChannelEmail, Code: "QUOTA_EXCEEDED", Message: "throttled"},
	}}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
		"c2": contact("c2", "b@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1", "c2"}, []notification.Channel{notification.ChannelEmail})
	outcome := d.Process(context.Background(), rec)

	// One retryable failure is enough to keep the record alive.
	assert.Equal(t, notification.StatusRetrying, outcome.Status)
}

func TestProcessSkipsDisabledChannels(t *testing.T) {
	email := &fakeHandler{}
	sms := &fakeHandler{}
	c := contact("c1", "a@example.com", "+15550000001")
	c.SMSEnabled = false
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{"c1": c}}
	d := newTestDispatcher(contacts, email, sms)

	rec := directRecord([]string{"c1"}, []notification.Channel{notification.ChannelEmail, notification.ChannelSMS})
	outcome := d.Process(context.Background(), rec)

	// An opted-out channel is a skip, not a failure.
	assert.Equal(t, notification.StatusSent, outcome.Status)
	assert.Equal(t, 1, email.delivered())
	assert.Equal(t, 0, sms.delivered())
}

func TestProcessUnknownRecipientFailsPair(t *testing.T) {
	email := &fakeHandler{}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1", "ghost"}, []notification.Channel{notification.ChannelEmail})
	outcome := d.Process(context.Background(), rec)

	// The known recipient still gets their email; the unknown one is a
	// permanent failure, so with no retryable errors the record fails.
	assert.Equal(t, 1, email.delivered())
	assert.Equal(t, notification.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.ErrorMessage, "ghost")
}

func TestProcessUnknownChannelFailsPair(t *testing.T) {
	email := &fakeHandler{}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := directRecord([]string{"c1"}, []notification.Channel{notification.ChannelEmail, "CARRIER_PIGEON"})
	outcome := d.Process(context.Background(), rec)

	assert.Equal(t, 1, email.delivered())
	assert.Equal(t, notification.StatusFailed, outcome.Status)
}

func TestProcessRendersTemplatesWhenNoDirectContent(t *testing.T) {
	email := &fakeHandler{}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}

	router := channel.NewRouter()
	router.Register(notification.ChannelEmail, email)
	engine := template.NewEngine()
	engine.Register("account.welcome", template.Set{
		Subject:  "Welcome, {{ first_name }}!",
		HTMLBody: "<p>Hi {{ first_name }}</p>",
		TextBody: "Hi {{ first_name }}",
		SMSBody:  "Hi {{ first_name }}",
	})
	d := NewDispatcher(router, contacts, engine, nil, dispatchConfig())

	rec := &notification.QueueRecord{
		ID:           "rec-2",
		EventType:    "account.welcome",
		Payload:      map[string]interface{}{"first_name": "Dana"},
		RecipientIDs: []string{"c1"},
		Channels:     []notification.Channel{notification.ChannelEmail},
	}
	outcome := d.Process(context.Background(), rec)

	require.Equal(t, notification.StatusSent, outcome.Status)
	require.Equal(t, 1, email.delivered())
	assert.Equal(t, "Welcome, Dana!", email.tasks[0].Content.Subject)
}

func TestProcessUnregisteredTemplateFailsTerminally(t *testing.T) {
	email := &fakeHandler{}
	contacts := &fakeContacts{contacts: map[string]*notification.Contact{
		"c1": contact("c1", "a@example.com", ""),
	}}
	d := newTestDispatcher(contacts, email, nil)

	rec := &notification.QueueRecord{
		ID:           "rec-3",
		EventType:    "no.such.event",
		Payload:      map[string]interface{}{},
		RecipientIDs: []string{"c1"},
		Channels:     []notification.Channel{notification.ChannelEmail},
	}
	outcome := d.Process(context.Background(), rec)

	assert.Equal(t, notification.StatusFailed, outcome.Status)
	assert.Equal(t, 0, email.delivered())
}
