// Package suppression answers "is this email address suppressed, and why?".
// Lookups hit a Postgres-backed store, optionally fronted by an in-memory
// bloom filter so the overwhelmingly common not-suppressed case resolves
// without a database round trip.
package suppression

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ignite/notify-engine/internal/notification"
)

// Store is the read-only suppression record lookup.
type Store interface {
	// Lookup returns the suppression record for email, or nil when the
	// address is not suppressed.
	Lookup(ctx context.Context, email string) (*notification.SuppressionRecord, error)
	// AllEmails returns every suppressed address, used to warm the cache.
	AllEmails(ctx context.Context) ([]string, error)
}

// Check is the result of a suppression query.
type Check struct {
	Suppressed bool
	Reason     string
	Type       string
}

// Service is the suppression list service consulted by the email handler
// before any provider call.
type Service struct {
	store Store

	mu     sync.RWMutex
	filter *bloomFilter // nil until warmed

	checksTotal      uint64
	checksSuppressed uint64
}

// NewService creates a suppression service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// WarmCache loads all suppressed addresses into the bloom filter. Safe to
// call again to refresh; lookups fall back to the store until it completes.
func (s *Service) WarmCache(ctx context.Context) error {
	emails, err := s.store.AllEmails(ctx)
	if err != nil {
		return fmt.Errorf("warm suppression cache: %w", err)
	}

	filter := newBloomFilter(uint64(len(emails)), 0.001)
	for _, email := range emails {
		filter.add(hashEmail(email))
	}

	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()

	log.Printf("[Suppression] Cache warmed with %d addresses", len(emails))
	return nil
}

// IsEmailSuppressed checks the suppression list. Pure lookup, no side
// effects beyond counters.
func (s *Service) IsEmailSuppressed(ctx context.Context, email string) (Check, error) {
	atomic.AddUint64(&s.checksTotal, 1)

	s.mu.RLock()
	filter := s.filter
	s.mu.RUnlock()

	// Bloom filter negative means definitely not suppressed.
	if filter != nil && !filter.mayContain(hashEmail(email)) {
		return Check{}, nil
	}

	rec, err := s.store.Lookup(ctx, email)
	if err != nil {
		return Check{}, fmt.Errorf("suppression lookup: %w", err)
	}
	if rec == nil {
		return Check{}, nil
	}

	atomic.AddUint64(&s.checksSuppressed, 1)
	return Check{Suppressed: true, Reason: rec.Reason, Type: rec.Type}, nil
}

// Stats returns lookup counters for the stats endpoint.
func (s *Service) Stats() (total, suppressed uint64) {
	return atomic.LoadUint64(&s.checksTotal), atomic.LoadUint64(&s.checksSuppressed)
}
