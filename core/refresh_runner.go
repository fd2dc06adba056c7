package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultRefreshMaxAttempts    = 3
	defaultRefreshInitialBackoff = 500 * time.Millisecond
	defaultRefreshMaxBackoff     = 10 * time.Second
	defaultRefreshLockTTL        = 30 * time.Second
	refreshLockRetryDelay        = 25 * time.Millisecond
)

// ErrRefreshLockHeld reports that another caller currently holds the
// per-mentor refresh lock. Lockers wrap this sentinel so Refresh can wait
// for the holder instead of failing the caller.
var ErrRefreshLockHeld = errors.New("core: refresh lock is held")

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// MentorLocker serializes refresh attempts per mentor so concurrent callers
// do not burn the same refresh token twice.
type MentorLocker interface {
	Acquire(ctx context.Context, mentorID string, ttl time.Duration) (LockHandle, error)
}

type RefreshBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type RefreshRunResult struct {
	Attempts       int
	NeedsReconnect bool
}

type RefreshRunOptions struct {
	MaxAttempts int
}

// RunRefreshWithRetry retries transient refresh failures with backoff.
// Unrecoverable rejections (invalid grant and friends) stop immediately and
// flag the mentor for reconnect; retrying those only burns provider quota.
func (s *Service) RunRefreshWithRetry(ctx context.Context, mentorID string, opt RefreshRunOptions) (RefreshRunResult, error) {
	if s == nil {
		return RefreshRunResult{}, fmt.Errorf("core: service is nil")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return RefreshRunResult{}, s.mapError(fmt.Errorf("core: mentor id is required"))
	}

	maxAttempts := opt.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = s.config.Refresh.MaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = defaultRefreshMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.Refresh(ctx, mentorID)
		if err == nil {
			return RefreshRunResult{Attempts: attempt}, nil
		}
		lastErr = err

		if isUnrecoverableRefreshError(err) {
			return RefreshRunResult{Attempts: attempt, NeedsReconnect: true}, s.mapError(err)
		}
		if attempt == maxAttempts {
			break
		}

		delay := defaultRefreshInitialBackoff
		if s.refreshBackoffScheduler != nil {
			delay = s.refreshBackoffScheduler.NextDelay(attempt)
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return RefreshRunResult{Attempts: attempt}, s.mapError(waitErr)
		}
	}

	return RefreshRunResult{Attempts: maxAttempts}, s.mapError(lastErr)
}

func isUnrecoverableRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryValidation, goerrors.CategoryNotFound:
			return true
		}
		switch strings.TrimSpace(strings.ToUpper(richErr.TextCode)) {
		case BookingErrorRefreshFailed, BookingErrorNotConnected, BookingErrorAuthenticationFailed:
			return true
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid refresh token") ||
		strings.Contains(msg, "reauthorization required")
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type MemoryMentorLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryMentorLocker() *MemoryMentorLocker {
	return &MemoryMentorLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryMentorLocker) Acquire(_ context.Context, mentorID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: mentor locker is not configured")
	}
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return nil, fmt.Errorf("core: mentor id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[mentorID]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: refresh lock already held for mentor %q: %w", mentorID, ErrRefreshLockHeld)
	}
	l.locks[mentorID] = now.Add(ttl)
	return &memoryLockHandle{locker: l, mentorID: mentorID}, nil
}

type memoryLockHandle struct {
	locker   *MemoryMentorLocker
	mentorID string
	once     sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.mentorID)
		h.locker.mu.Unlock()
	})
	return nil
}

var _ MentorLocker = (*MemoryMentorLocker)(nil)

// acquireRefreshLock waits out lock contention instead of surfacing it. The
// second return reports whether another caller held the lock first, which
// means the stored credential may already be fresh by the time we hold it.
func (s *Service) acquireRefreshLock(ctx context.Context, mentorID string) (LockHandle, bool, error) {
	contended := false
	for {
		handle, err := s.mentorLocker.Acquire(ctx, mentorID, s.refreshLockTTL())
		if err == nil {
			return handle, contended, nil
		}
		if !errors.Is(err, ErrRefreshLockHeld) {
			return nil, contended, err
		}
		contended = true
		if waitErr := waitWithContext(ctx, refreshLockRetryDelay); waitErr != nil {
			return nil, contended, waitErr
		}
	}
}
