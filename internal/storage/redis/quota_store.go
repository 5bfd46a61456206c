// Package redis provides a Redis-backed quota store for deployments that keep
// reports in Postgres but want quota checks off the primary database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

const keyPrefix = "auditsnap:quota:"

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// decrementScript takes one unit atomically. It returns -1 when the
// subscription is missing, 0 when nothing was taken and 1 on success.
var decrementScript = goredis.NewScript(`
local remaining = redis.call('HGET', KEYS[1], 'audits_remaining')
if not remaining then
  return -1
end
if redis.call('HGET', KEYS[1], 'active') ~= '1' or tonumber(remaining) <= 0 then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'audits_remaining', -1)
return 1
`)

var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'plan', ARGV[1], 'audits_remaining', ARGV[2], 'active', ARGV[3], 'created_at', ARGV[4])
return 1
`)

// QuotaStore keeps each subscription in a hash keyed by user ID.
type QuotaStore struct {
	client goredis.UniversalClient
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewQuotaStore wraps an existing client.
func NewQuotaStore(client goredis.UniversalClient) (*QuotaStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &QuotaStore{client: client}, nil
}

func key(userID string) string {
	return keyPrefix + userID
}

// Get returns the user's subscription.
func (s *QuotaStore) Get(ctx context.Context, userID string) (audit.Subscription, error) {
	fields, err := s.client.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return audit.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	if len(fields) == 0 {
		return audit.Subscription{}, fmt.Errorf("subscription %s: %w", userID, audit.ErrNotFound)
	}
	remaining, err := strconv.Atoi(fields["audits_remaining"])
	if err != nil {
		return audit.Subscription{}, fmt.Errorf("decode audits_remaining: %w", err)
	}
	sub := audit.Subscription{
		UserID:          userID,
		Plan:            fields["plan"],
		AuditsRemaining: remaining,
		Active:          fields["active"] == "1",
	}
	if raw := fields["created_at"]; raw != "" {
		if sub.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return audit.Subscription{}, fmt.Errorf("decode created_at: %w", err)
		}
	}
	return sub, nil
}

// Create stores a subscription unless one already exists.
func (s *QuotaStore) Create(ctx context.Context, sub audit.Subscription) error {
	active := "0"
	if sub.Active {
		active = "1"
	}
	created, err := createScript.Run(ctx, s.client, []string{key(sub.UserID)},
		sub.Plan, sub.AuditsRemaining, active, sub.CreatedAt.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("subscription %s: %w", sub.UserID, audit.ErrAlreadyExists)
	}
	return nil
}

// TryDecrement takes one unit via a Lua script so the check and the
// decrement run as one step.
func (s *QuotaStore) TryDecrement(ctx context.Context, userID string) (bool, error) {
	res, err := decrementScript.Run(ctx, s.client, []string{key(userID)}).Int()
	if err != nil {
		return false, fmt.Errorf("decrement quota: %w", err)
	}
	switch res {
	case -1:
		return false, fmt.Errorf("subscription %s: %w", userID, audit.ErrNotFound)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}
