package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder is the minimal metrics surface the service emits to.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretProvider encrypts credential material at rest. A nil provider means
// plaintext storage, which is acceptable only for development and tests.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// CredentialStore is the only component allowed to mutate stored mentor
// credentials.
type CredentialStore interface {
	GetByMentor(ctx context.Context, mentorID string) (MentorCredential, error)
	Save(ctx context.Context, credential MentorCredential) (MentorCredential, error)
	UpdateTokens(ctx context.Context, mentorID string, update TokenUpdate) (MentorCredential, error)
	ClearTokens(ctx context.Context, mentorID string) error
	ListExpiring(ctx context.Context, before time.Time) ([]MentorCredential, error)
}

type CreateBookingInput struct {
	MentorID    string
	ServiceID   string
	Client      ClientIdentity
	SessionDate string
	SessionTime string
	BookingRef  string
}

// BookingLookup narrows pending-booking correlation when no provider
// reference matched.
type BookingLookup struct {
	MentorID    string
	ServiceID   string
	ClientEmail string
	Status      BookingStatus
}

type BookingStore interface {
	Create(ctx context.Context, in CreateBookingInput) (Booking, error)
	Get(ctx context.Context, id string) (Booking, error)
	GetBySchedulingEventRef(ctx context.Context, ref string) (Booking, error)
	GetByPaymentRef(ctx context.Context, ref string) (Booking, error)
	GetByBookingRef(ctx context.Context, ref string) (Booking, error)
	FindPending(ctx context.Context, lookup BookingLookup) ([]Booking, error)
	// TransitionStatus applies a guarded status move in one statement. It
	// returns the booking as stored afterwards and whether this call moved it.
	TransitionStatus(ctx context.Context, id string, from, to BookingStatus, refs BookingRefUpdate) (Booking, bool, error)
}

// BookingRefUpdate sets provider references alongside a status transition.
// Empty fields are left untouched.
type BookingRefUpdate struct {
	PaymentRef         string
	SchedulingEventRef string
}

type UnmatchedEventStore interface {
	Record(ctx context.Context, event UnmatchedEvent) (UnmatchedEvent, error)
	List(ctx context.Context, providerID string, limit int) ([]UnmatchedEvent, error)
}

type StoreProvider interface {
	CredentialStore() CredentialStore
	BookingStore() BookingStore
	UnmatchedEventStore() UnmatchedEventStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// RefreshExchange swaps a refresh token for a new token set at the provider.
type RefreshExchange interface {
	Refresh(ctx context.Context, refreshToken string) (TokenExchangeResult, error)
}

type TokenExchangeResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
	Metadata     map[string]any
}

// TokenSource hands out mentor access tokens, refreshing as needed. The
// availability fetcher calls ForceRefresh exactly once when the provider
// rejects a token the expiry check considered valid.
type TokenSource interface {
	EnsureAccessToken(ctx context.Context, mentorID string) (string, error)
	ForceRefresh(ctx context.Context, mentorID string) (string, error)
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// WebhookVerifier decides whether a raw inbound delivery is authentic.
// Implementations must inspect req.Body exactly as received, before any
// parsing, and must fail closed when configuration is missing.
type WebhookVerifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

type WebhookHandler interface {
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

// ReplayLedger claims delivery keys once within a TTL window.
type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
