package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/notify-engine/internal/notification"
)

// SuppressionStore is the persistent suppression list. The in-memory bloom
// cache in internal/suppression sits in front of it.
type SuppressionStore struct {
	db *sql.DB
}

// NewSuppressionStore creates a suppression store over db.
func NewSuppressionStore(db *sql.DB) *SuppressionStore {
	return &SuppressionStore{db: db}
}

// Lookup fetches the suppression record for an email, or nil when the
// address is not suppressed.
func (s *SuppressionStore) Lookup(ctx context.Context, email string) (*notification.SuppressionRecord, error) {
	var rec notification.SuppressionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT email, COALESCE(reason, ''), COALESCE(type, '')
		FROM notify_suppressions
		WHERE email = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&rec.Email, &rec.Reason, &rec.Type)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("suppression lookup: %w", err)
	}
	return &rec, nil
}

// AllEmails streams every suppressed address, used to warm the bloom cache.
func (s *SuppressionStore) AllEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email FROM notify_suppressions`)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// Add inserts or refreshes a suppression entry.
func (s *SuppressionStore) Add(ctx context.Context, email, reason, supType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notify_suppressions (email, reason, type, created_at)
		VALUES (LOWER($1), $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET reason = $2, type = $3
	`, strings.TrimSpace(email), reason, supType, time.Now())
	if err != nil {
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}

// Remove deletes a suppression entry. Removing an absent address is not an
// error. The bloom cache may keep answering maybe until the next warm; that
// only costs a database lookup, never a wrong suppression verdict.
func (s *SuppressionStore) Remove(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notify_suppressions WHERE email = LOWER($1)
	`, strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	return nil
}
