package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-bookings::mentor_credential::v1"

// CachedCredentialStore is a read-through cache in front of the credential
// store. GetByMentor is the hot path of every token lookup; writes go to the
// base store and invalidate the mentor's cache entry so the next read sees
// the fresh token set.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns the deterministic cache key for a mentor's
// credential row: go-bookings::mentor_credential::v1::<mentor_id> with the
// mentor segment URL-path escaped.
func CredentialCacheKey(mentorID string) (string, error) {
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return "", fmt.Errorf("sqlstore: mentor id is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(mentorID), nil
}

func (s *CachedCredentialStore) GetByMentor(ctx context.Context, mentorID string) (core.MentorCredential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(mentorID)
	if err != nil {
		return core.MentorCredential{}, err
	}

	credential, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.MentorCredential, error) {
		fetched, fetchErr := s.base.GetByMentor(ctx, mentorID)
		if fetchErr != nil {
			return core.MentorCredential{}, fetchErr
		}
		return cloneCredential(fetched), nil
	})
	if err != nil {
		return core.MentorCredential{}, err
	}
	return cloneCredential(credential), nil
}

func (s *CachedCredentialStore) Save(ctx context.Context, credential core.MentorCredential) (core.MentorCredential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	saved, err := s.base.Save(ctx, credential)
	if err != nil {
		return core.MentorCredential{}, err
	}
	if err := s.invalidate(ctx, saved.MentorID); err != nil {
		return core.MentorCredential{}, err
	}
	return saved, nil
}

func (s *CachedCredentialStore) UpdateTokens(ctx context.Context, mentorID string, update core.TokenUpdate) (core.MentorCredential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.MentorCredential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	updated, err := s.base.UpdateTokens(ctx, mentorID, update)
	if err != nil {
		return core.MentorCredential{}, err
	}
	if err := s.invalidate(ctx, mentorID); err != nil {
		return core.MentorCredential{}, err
	}
	return updated, nil
}

func (s *CachedCredentialStore) ClearTokens(ctx context.Context, mentorID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.ClearTokens(ctx, mentorID); err != nil {
		return err
	}
	return s.invalidate(ctx, mentorID)
}

// ListExpiring always hits the base store; the refresh planner needs the
// authoritative expiry view, not a cached one.
func (s *CachedCredentialStore) ListExpiring(ctx context.Context, before time.Time) ([]core.MentorCredential, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	return s.base.ListExpiring(ctx, before)
}

func (s *CachedCredentialStore) invalidate(ctx context.Context, mentorID string) error {
	cacheKey, err := CredentialCacheKey(mentorID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneCredential(credential core.MentorCredential) core.MentorCredential {
	cloned := credential
	if credential.ExpiresAt != nil {
		value := credential.ExpiresAt.UTC()
		cloned.ExpiresAt = &value
	}
	if credential.LastRefreshedAt != nil {
		value := credential.LastRefreshedAt.UTC()
		cloned.LastRefreshedAt = &value
	}
	return cloned
}

var _ core.CredentialStore = (*CachedCredentialStore)(nil)
