package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

// QuotaStore keeps subscriptions in memory. TryDecrement holds the write lock
// across the check and the decrement.
type QuotaStore struct {
	mu   sync.Mutex
	subs map[string]audit.Subscription
}

// NewQuotaStore constructs a QuotaStore seeded with subs.
func NewQuotaStore(subs ...audit.Subscription) *QuotaStore {
	s := &QuotaStore{subs: make(map[string]audit.Subscription, len(subs))}
	for _, sub := range subs {
		s.subs[sub.UserID] = sub
	}
	return s
}

// Get returns the user's subscription.
func (s *QuotaStore) Get(_ context.Context, userID string) (audit.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return audit.Subscription{}, fmt.Errorf("subscription %s: %w", userID, audit.ErrNotFound)
	}
	return sub, nil
}

// Create inserts a subscription unless one already exists.
func (s *QuotaStore) Create(_ context.Context, sub audit.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.UserID]; ok {
		return fmt.Errorf("subscription %s: %w", sub.UserID, audit.ErrAlreadyExists)
	}
	s.subs[sub.UserID] = sub
	return nil
}

// TryDecrement takes one unit when any remain.
func (s *QuotaStore) TryDecrement(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return false, fmt.Errorf("subscription %s: %w", userID, audit.ErrNotFound)
	}
	if !sub.Active || sub.AuditsRemaining <= 0 {
		return false, nil
	}
	sub.AuditsRemaining--
	s.subs[userID] = sub
	return true, nil
}
