package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/redis/go-redis/v9"
)

const defaultReplayKeyPrefix = "bookings:webhook-replay:"

// ReplayLedger claims webhook delivery keys with SET NX so replayed
// deliveries are rejected across every instance for the key TTL.
type ReplayLedger struct {
	client    *redis.Client
	keyPrefix string
}

type ReplayLedgerOption func(*ReplayLedger)

func WithReplayKeyPrefix(prefix string) ReplayLedgerOption {
	return func(l *ReplayLedger) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			l.keyPrefix = trimmed
		}
	}
}

func NewReplayLedger(client *redis.Client, opts ...ReplayLedgerOption) (*ReplayLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	ledger := &ReplayLedger{
		client:    client,
		keyPrefix: defaultReplayKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ledger)
		}
	}
	return ledger, nil
}

// Claim returns true when this caller is the first to see the key within the
// TTL window.
func (l *ReplayLedger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("redisstore: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("redisstore: replay key is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	claimed, err := l.client.SetNX(ctx, l.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: claim replay key: %w", err)
	}
	return claimed, nil
}

var _ core.ReplayLedger = (*ReplayLedger)(nil)
