package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/notify-engine/internal/notification"
)

// ContactStore resolves recipient IDs to contact records.
type ContactStore struct {
	db *sql.DB
}

// NewContactStore creates a contact store over db.
func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

// Resolve fetches one contact by ID. Returns sql.ErrNoRows when absent.
func (s *ContactStore) Resolve(ctx context.Context, id string) (*notification.Contact, error) {
	var c notification.Contact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, COALESCE(email, ''), COALESCE(phone, ''),
		       email_enabled, sms_enabled
		FROM notify_contacts
		WHERE id = $1
	`, id).Scan(&c.ID, &c.DisplayName, &c.Email, &c.Phone, &c.EmailEnabled, &c.SMSEnabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve contact %s: %w", id, err)
	}
	return &c, nil
}

// ResolveBatch fetches a set of contacts, keyed by ID. Unknown IDs are simply
// absent from the result; the dispatcher decides how to treat them.
func (s *ContactStore) ResolveBatch(ctx context.Context, ids []string) (map[string]*notification.Contact, error) {
	contacts := make(map[string]*notification.Contact, len(ids))
	for _, id := range ids {
		c, err := s.Resolve(ctx, id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		contacts[id] = c
	}
	return contacts, nil
}
