package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T, store *memoryCredentialStore, exchange RefreshExchange, options ...Option) *Service {
	t.Helper()
	base := []Option{
		WithCredentialStore(store),
		WithRefreshExchange(exchange),
	}
	svc, err := NewService(Config{}, append(base, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestEnsureAccessTokenFreshPathSkipsProvider(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(2*time.Hour)))
	exchange := &fakeRefreshExchange{}

	svc := newTestService(t, store, exchange)

	token, err := svc.EnsureAccessToken(ctx, "mentor-1")
	if err != nil {
		t.Fatalf("ensure access token: %v", err)
	}
	if token != "access-mentor-1" {
		t.Fatalf("expected stored access token, got %q", token)
	}
	if exchange.callCount() != 0 {
		t.Fatalf("expected no provider calls on fresh token, got %d", exchange.callCount())
	}
}

func TestEnsureAccessTokenRefreshesInsideLeadWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(5*time.Minute)))
	newExpiry := now.Add(1 * time.Hour)
	exchange := &fakeRefreshExchange{
		result: TokenExchangeResult{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresAt:    newExpiry,
		},
	}

	svc := newTestService(t, store, exchange)

	token, err := svc.EnsureAccessToken(ctx, "mentor-1")
	if err != nil {
		t.Fatalf("ensure access token: %v", err)
	}
	if token != "access-new" {
		t.Fatalf("expected refreshed access token, got %q", token)
	}
	if exchange.callCount() != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", exchange.callCount())
	}

	stored, err := store.GetByMentor(ctx, "mentor-1")
	if err != nil {
		t.Fatalf("reload credential: %v", err)
	}
	if stored.AccessToken != "access-new" || stored.RefreshToken != "refresh-new" {
		t.Fatalf("expected full token pair persisted, got %+v", stored)
	}
	if stored.ExpiresAt == nil || !stored.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("expected new expiry persisted, got %v", stored.ExpiresAt)
	}
	if stored.LastRefreshedAt == nil {
		t.Fatalf("expected last_refreshed_at to be set")
	}
}

func TestEnsureAccessTokenConcurrentCallersShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(5*time.Minute)))
	exchange := &fakeRefreshExchange{
		result: TokenExchangeResult{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresAt:    now.Add(1 * time.Hour),
		},
		delay: 150 * time.Millisecond,
	}

	svc := newTestService(t, store, exchange)

	const callers = 2
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			tokens[slot], errs[slot] = svc.EnsureAccessToken(ctx, "mentor-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: ensure access token: %v", i, errs[i])
		}
		if tokens[i] != "access-new" {
			t.Fatalf("caller %d: expected refreshed token, got %q", i, tokens[i])
		}
	}
	if exchange.callCount() != 1 {
		t.Fatalf("expected a single provider exchange, got %d", exchange.callCount())
	}
}

func TestEnsureAccessTokenRefreshesExpiredCredential(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(-1*time.Hour)))
	exchange := &fakeRefreshExchange{
		result: TokenExchangeResult{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresAt:    now.Add(1 * time.Hour),
		},
	}

	svc := newTestService(t, store, exchange)

	token, err := svc.EnsureAccessToken(ctx, "mentor-1")
	if err != nil {
		t.Fatalf("ensure access token: %v", err)
	}
	if token != "access-new" {
		t.Fatalf("expected refreshed token for expired credential, got %q", token)
	}
}

func TestEnsureAccessTokenNotConnected(t *testing.T) {
	ctx := context.Background()
	store := newMemoryCredentialStore()
	exchange := &fakeRefreshExchange{}
	svc := newTestService(t, store, exchange)

	_, ensureErr := svc.EnsureAccessToken(ctx, "mentor-unknown")
	if !IsNotConnected(ensureErr) {
		t.Fatalf("expected not-connected error, got %v", ensureErr)
	}
	if !NeedsReconnect(ensureErr) {
		t.Fatalf("expected needs_reconnect metadata on %v", ensureErr)
	}
}

func TestRefreshFailureLeavesStoredCredentialUntouched(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(5*time.Minute)))
	exchange := &fakeRefreshExchange{err: NewRefreshFailedError("mentor-1", "invalid_grant")}

	svc := newTestService(t, store, exchange)

	if _, refreshErr := svc.EnsureAccessToken(ctx, "mentor-1"); refreshErr == nil {
		t.Fatalf("expected refresh error")
	}

	stored, loadErr := store.GetByMentor(ctx, "mentor-1")
	if loadErr != nil {
		t.Fatalf("reload credential: %v", loadErr)
	}
	if stored.AccessToken != "access-mentor-1" || stored.RefreshToken != "refresh-mentor-1" {
		t.Fatalf("expected stored credential untouched, got %+v", stored)
	}
}

func TestRefreshKeepsOldRefreshTokenWhenProviderOmitsIt(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(-1*time.Minute)))
	exchange := &fakeRefreshExchange{
		result: TokenExchangeResult{
			AccessToken: "access-new",
			ExpiresAt:   now.Add(1 * time.Hour),
		},
	}

	svc := newTestService(t, store, exchange)

	credential, refreshErr := svc.Refresh(ctx, "mentor-1")
	if refreshErr != nil {
		t.Fatalf("refresh: %v", refreshErr)
	}
	if credential.RefreshToken != "refresh-mentor-1" {
		t.Fatalf("expected previous refresh token retained, got %q", credential.RefreshToken)
	}
}

func TestForceRefreshBypassesExpiryCheck(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(2*time.Hour)))
	exchange := &fakeRefreshExchange{
		result: TokenExchangeResult{
			AccessToken:  "access-forced",
			RefreshToken: "refresh-forced",
			ExpiresAt:    now.Add(1 * time.Hour),
		},
	}

	svc := newTestService(t, store, exchange)

	token, forceErr := svc.ForceRefresh(ctx, "mentor-1")
	if forceErr != nil {
		t.Fatalf("force refresh: %v", forceErr)
	}
	if token != "access-forced" {
		t.Fatalf("expected forced token, got %q", token)
	}
	if exchange.callCount() != 1 {
		t.Fatalf("expected one provider call, got %d", exchange.callCount())
	}
}

func TestDisconnectClearsTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-1", ptrTime(now.Add(2*time.Hour)))
	svc := newTestService(t, store, &fakeRefreshExchange{})

	if disconnectErr := svc.Disconnect(ctx, "mentor-1"); disconnectErr != nil {
		t.Fatalf("disconnect: %v", disconnectErr)
	}

	if _, loadErr := svc.EnsureAccessToken(ctx, "mentor-1"); !IsNotConnected(loadErr) {
		t.Fatalf("expected not-connected after disconnect, got %v", loadErr)
	}
}

func TestPlanRefreshesEnqueuesExpiringCredentials(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := newMemoryCredentialStore()
	seedCredential(t, store, "mentor-soon", ptrTime(now.Add(10*time.Minute)))
	seedCredential(t, store, "mentor-later", ptrTime(now.Add(4*time.Hour)))
	enqueuer := &captureEnqueuer{}

	svc := newTestService(t, store, &fakeRefreshExchange{}, WithJobEnqueuer(enqueuer))

	planned, planErr := svc.PlanRefreshes(ctx)
	if planErr != nil {
		t.Fatalf("plan refreshes: %v", planErr)
	}
	if planned != 1 {
		t.Fatalf("expected one planned refresh, got %d", planned)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one enqueued job, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != JobIDCredentialRefresh {
		t.Fatalf("unexpected job id %q", msg.JobID)
	}
	if msg.Parameters["mentor_id"] != "mentor-soon" {
		t.Fatalf("expected mentor-soon job, got %v", msg.Parameters)
	}
}
