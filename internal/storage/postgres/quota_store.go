package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

// QuotaStore keeps per-user quota in user_subscriptions. The decrement is a
// single conditional UPDATE so concurrent submissions cannot oversell.
type QuotaStore struct {
	db DB
}

// NewQuotaStore wraps an existing pool.
func NewQuotaStore(db DB) (*QuotaStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &QuotaStore{db: db}, nil
}

// Get returns the user's subscription.
func (s *QuotaStore) Get(ctx context.Context, userID string) (audit.Subscription, error) {
	var sub audit.Subscription
	err := s.db.QueryRow(ctx, `
SELECT user_id, plan, audits_remaining, active, created_at
FROM user_subscriptions
WHERE user_id = $1`, userID).Scan(&sub.UserID, &sub.Plan, &sub.AuditsRemaining, &sub.Active, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Subscription{}, fmt.Errorf("subscription %s: %w", userID, audit.ErrNotFound)
	}
	if err != nil {
		return audit.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Create inserts a subscription, failing with ErrAlreadyExists on conflict.
func (s *QuotaStore) Create(ctx context.Context, sub audit.Subscription) error {
	tag, err := s.db.Exec(ctx, `
INSERT INTO user_subscriptions (user_id, plan, audits_remaining, active, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO NOTHING`,
		sub.UserID, sub.Plan, sub.AuditsRemaining, sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", sub.UserID, audit.ErrAlreadyExists)
	}
	return nil
}

// TryDecrement takes one unit when the subscription is active and has any left.
func (s *QuotaStore) TryDecrement(ctx context.Context, userID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE user_subscriptions
SET audits_remaining = audits_remaining - 1
WHERE user_id = $1 AND active AND audits_remaining > 0`, userID)
	if err != nil {
		return false, fmt.Errorf("decrement quota: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
