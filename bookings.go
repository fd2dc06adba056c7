package bookings

import "github.com/goliatone/go-bookings/core"

type Config = core.Config

type SchedulerConfig = core.SchedulerConfig
type PaymentsConfig = core.PaymentsConfig
type RefreshConfig = core.RefreshConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type MentorLocker = core.MentorLocker
type RefreshBackoffScheduler = core.RefreshBackoffScheduler
type RefreshExchange = core.RefreshExchange
type CredentialStore = core.CredentialStore
type BookingStore = core.BookingStore
type UnmatchedEventStore = core.UnmatchedEventStore
type SecretProvider = core.SecretProvider
type JobEnqueuer = core.JobEnqueuer
type TokenSource = core.TokenSource
type WebhookVerifier = core.WebhookVerifier
type WebhookHandler = core.WebhookHandler

type MentorCredential = core.MentorCredential
type TokenUpdate = core.TokenUpdate
type TokenState = core.TokenState

type Booking = core.Booking
type BookingStatus = core.BookingStatus
type BookingLookup = core.BookingLookup
type BookingRefUpdate = core.BookingRefUpdate
type CreateBookingInput = core.CreateBookingInput

type AvailabilitySlot = core.AvailabilitySlot
type UnmatchedEvent = core.UnmatchedEvent

type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult

var (
	WithLogger                  = core.WithLogger
	WithLoggerProvider          = core.WithLoggerProvider
	WithMetricsRecorder         = core.WithMetricsRecorder
	WithErrorFactory            = core.WithErrorFactory
	WithErrorMapper             = core.WithErrorMapper
	WithSecretProvider          = core.WithSecretProvider
	WithPersistenceClient       = core.WithPersistenceClient
	WithRepositoryFactory       = core.WithRepositoryFactory
	WithConfigProvider          = core.WithConfigProvider
	WithOptionsResolver         = core.WithOptionsResolver
	WithMentorLocker            = core.WithMentorLocker
	WithRefreshBackoffScheduler = core.WithRefreshBackoffScheduler
	WithRefreshExchange         = core.WithRefreshExchange
	WithCredentialStore         = core.WithCredentialStore
	WithBookingStore            = core.WithBookingStore
	WithUnmatchedEventStore     = core.WithUnmatchedEventStore
	WithJobEnqueuer             = core.WithJobEnqueuer
	WithClock                   = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
