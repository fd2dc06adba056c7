package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-bookings/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db      *bun.DB
	codec   core.TokenCodec
	secrets core.SecretProvider
	keyID   string

	credentialStore     *CredentialStore
	bookingStore        *BookingStore
	unmatchedEventStore *UnmatchedEventStore
	deliveryStore       *WebhookDeliveryStore
}

type FactoryOption func(*RepositoryFactory)

// WithSecretProvider encrypts token payloads at rest with the given provider.
func WithSecretProvider(secrets core.SecretProvider, keyID string) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = secrets
		f.keyID = keyID
	}
}

func WithTokenCodec(codec core.TokenCodec) FactoryOption {
	return func(f *RepositoryFactory) {
		if codec != nil {
			f.codec = codec
		}
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{
		codec: core.JSONTokenCodec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.bookingStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) BookingStore() core.BookingStore {
	if f == nil {
		return nil
	}
	return f.bookingStore
}

func (f *RepositoryFactory) UnmatchedEventStore() core.UnmatchedEventStore {
	if f == nil {
		return nil
	}
	return f.unmatchedEventStore
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialRepo := repository.NewRepository[*mentorCredentialRecord](f.db, mentorCredentialHandlers())
	if validator, ok := credentialRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid mentor credential repository wiring: %w", err)
		}
	}

	bookingRepo := repository.NewRepository[*bookingRecord](f.db, bookingHandlers())
	if validator, ok := bookingRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid booking repository wiring: %w", err)
		}
	}

	unmatchedRepo := repository.NewRepository[*unmatchedEventRecord](f.db, unmatchedEventHandlers())
	if validator, ok := unmatchedRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid unmatched event repository wiring: %w", err)
		}
	}

	f.credentialStore = &CredentialStore{
		db:      f.db,
		repo:    credentialRepo,
		codec:   f.codec,
		secrets: f.secrets,
		keyID:   f.keyID,
	}
	f.bookingStore = &BookingStore{
		db:   f.db,
		repo: bookingRepo,
	}
	f.unmatchedEventStore = &UnmatchedEventStore{
		db:   f.db,
		repo: unmatchedRepo,
	}
	deliveryStore, err := NewWebhookDeliveryStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryStore = deliveryStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
