package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockKeyPrefix = "bookings:refresh-lock:"

// releaseScript deletes the lock only when the stored token still belongs to
// this holder, so an expired-and-reacquired lock is never released by the
// previous owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// MentorLocker serializes token refreshes per mentor across processes with a
// SET NX lease.
type MentorLocker struct {
	client    *redis.Client
	keyPrefix string
}

type MentorLockerOption func(*MentorLocker)

func WithLockKeyPrefix(prefix string) MentorLockerOption {
	return func(l *MentorLocker) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			l.keyPrefix = trimmed
		}
	}
}

func NewMentorLocker(client *redis.Client, opts ...MentorLockerOption) (*MentorLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	locker := &MentorLocker{
		client:    client,
		keyPrefix: defaultLockKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(locker)
		}
	}
	return locker, nil
}

func (l *MentorLocker) Acquire(ctx context.Context, mentorID string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("redisstore: mentor locker is not configured")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return nil, fmt.Errorf("redisstore: mentor id is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	key := l.keyPrefix + mentorID
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: acquire refresh lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("redisstore: refresh lock already held for mentor %q: %w", mentorID, core.ErrRefreshLockHeld)
	}
	return &redisLockHandle{
		client: l.client,
		key:    key,
		token:  token,
	}, nil
}

type redisLockHandle struct {
	client *redis.Client
	key    string
	token  string
}

func (h *redisLockHandle) Unlock(ctx context.Context) error {
	if h == nil || h.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redisstore: release refresh lock: %w", err)
	}
	return nil
}

var _ core.MentorLocker = (*MentorLocker)(nil)
