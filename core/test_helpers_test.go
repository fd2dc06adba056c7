package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func ptrTime(value time.Time) *time.Time {
	utc := value.UTC()
	return &utc
}

type memoryCredentialStore struct {
	mu          sync.Mutex
	byMentor    map[string]MentorCredential
	updateCalls int
	failUpdate  error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{byMentor: map[string]MentorCredential{}}
}

func (s *memoryCredentialStore) GetByMentor(_ context.Context, mentorID string) (MentorCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.byMentor[strings.TrimSpace(mentorID)]
	if !ok {
		return MentorCredential{}, ErrCredentialNotFound
	}
	return credential, nil
}

func (s *memoryCredentialStore) Save(_ context.Context, credential MentorCredential) (MentorCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mentorID := strings.TrimSpace(credential.MentorID)
	if mentorID == "" {
		return MentorCredential{}, fmt.Errorf("mentor id is required")
	}
	if credential.ID == "" {
		credential.ID = "cred-" + mentorID
	}
	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = now
	s.byMentor[mentorID] = credential
	return credential, nil
}

func (s *memoryCredentialStore) UpdateTokens(_ context.Context, mentorID string, update TokenUpdate) (MentorCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.failUpdate != nil {
		return MentorCredential{}, s.failUpdate
	}
	credential, ok := s.byMentor[strings.TrimSpace(mentorID)]
	if !ok {
		return MentorCredential{}, ErrCredentialNotFound
	}
	credential.AccessToken = update.AccessToken
	credential.RefreshToken = update.RefreshToken
	credential.ExpiresAt = ptrTime(update.ExpiresAt)
	credential.LastRefreshedAt = ptrTime(update.RefreshedAt)
	credential.UpdatedAt = update.RefreshedAt
	s.byMentor[strings.TrimSpace(mentorID)] = credential
	return credential, nil
}

func (s *memoryCredentialStore) ClearTokens(_ context.Context, mentorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.byMentor[strings.TrimSpace(mentorID)]
	if !ok {
		return ErrCredentialNotFound
	}
	credential.AccessToken = ""
	credential.RefreshToken = ""
	credential.ExpiresAt = nil
	credential.UpdatedAt = time.Now().UTC()
	s.byMentor[strings.TrimSpace(mentorID)] = credential
	return nil
}

func (s *memoryCredentialStore) ListExpiring(_ context.Context, before time.Time) ([]MentorCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiring := []MentorCredential{}
	for _, credential := range s.byMentor {
		if credential.ExpiresAt == nil || !credential.Connected() {
			continue
		}
		if credential.ExpiresAt.Before(before) {
			expiring = append(expiring, credential)
		}
	}
	return expiring, nil
}

var _ CredentialStore = (*memoryCredentialStore)(nil)

type fakeRefreshExchange struct {
	mu     sync.Mutex
	calls  int
	result TokenExchangeResult
	err    error
	delay  time.Duration
}

func (f *fakeRefreshExchange) Refresh(_ context.Context, _ string) (TokenExchangeResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return TokenExchangeResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeRefreshExchange) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func seedCredential(t *testing.T, store *memoryCredentialStore, mentorID string, expiresAt *time.Time) MentorCredential {
	t.Helper()
	credential, err := store.Save(context.Background(), MentorCredential{
		MentorID:     mentorID,
		AccessToken:  "access-" + mentorID,
		RefreshToken: "refresh-" + mentorID,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return credential
}
