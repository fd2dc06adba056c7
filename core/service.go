package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrRefreshExchangeNotConfigured = errors.New("core: refresh exchange is not configured")

// JobIDCredentialRefresh identifies proactive refresh work on the job queue.
const JobIDCredentialRefresh = "bookings.credential.refresh"

// Service owns the mentor credential lifecycle: resolving fresh access
// tokens, refreshing against the provider, and disconnecting.
type Service struct {
	config                  Config
	logger                  Logger
	loggerProvider          LoggerProvider
	metricsRecorder         MetricsRecorder
	errorFactory            ErrorFactory
	errorMapper             ErrorMapper
	persistenceClient       any
	repositoryFactory       any
	configProvider          ConfigProvider
	optionsResolver         OptionsResolver
	mentorLocker            MentorLocker
	refreshBackoffScheduler RefreshBackoffScheduler
	refreshExchange         RefreshExchange
	credentialStore         CredentialStore
	bookingStore            BookingStore
	unmatchedEventStore     UnmatchedEventStore
	secretProvider          SecretProvider
	jobEnqueuer             JobEnqueuer
	nowFn                   func() time.Time
}

type ServiceDependencies struct {
	Logger              Logger
	LoggerProvider      LoggerProvider
	MetricsRecorder     MetricsRecorder
	ErrorFactory        ErrorFactory
	ErrorMapper         ErrorMapper
	PersistenceClient   any
	RepositoryFactory   any
	ConfigProvider      ConfigProvider
	OptionsResolver     OptionsResolver
	MentorLocker        MentorLocker
	RefreshScheduler    RefreshBackoffScheduler
	RefreshExchange     RefreshExchange
	CredentialStore     CredentialStore
	BookingStore        BookingStore
	UnmatchedEventStore UnmatchedEventStore
	SecretProvider      SecretProvider
	JobEnqueuer         JobEnqueuer
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("bookings", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("bookings"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.mentorLocker == nil {
		builder.mentorLocker = NewMemoryMentorLocker()
	}
	if builder.refreshScheduler == nil {
		builder.refreshScheduler = ExponentialBackoffScheduler{
			Initial: defaultRefreshInitialBackoff,
			Max:     defaultRefreshMaxBackoff,
		}
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.credentialStore == nil || builder.bookingStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				if builder.credentialStore == nil {
					builder.credentialStore = stores.CredentialStore()
				}
				if builder.bookingStore == nil {
					builder.bookingStore = stores.BookingStore()
				}
				if builder.unmatchedEventStore == nil {
					builder.unmatchedEventStore = stores.UnmatchedEventStore()
				}
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.credentialStore == nil {
				builder.credentialStore = stores.CredentialStore()
			}
			if builder.bookingStore == nil {
				builder.bookingStore = stores.BookingStore()
			}
			if builder.unmatchedEventStore == nil {
				builder.unmatchedEventStore = stores.UnmatchedEventStore()
			}
		}
	}

	return &Service{
		config:                  finalConfig,
		logger:                  logger,
		loggerProvider:          provider,
		metricsRecorder:         builder.metricsRecorder,
		errorFactory:            builder.errorFactory,
		errorMapper:             builder.errorMapper,
		persistenceClient:       builder.persistenceClient,
		repositoryFactory:       builder.repositoryFactory,
		configProvider:          builder.configProvider,
		optionsResolver:         builder.optionsResolver,
		mentorLocker:            builder.mentorLocker,
		refreshBackoffScheduler: builder.refreshScheduler,
		refreshExchange:         builder.refreshExchange,
		credentialStore:         builder.credentialStore,
		bookingStore:            builder.bookingStore,
		unmatchedEventStore:     builder.unmatchedEventStore,
		secretProvider:          builder.secretProvider,
		jobEnqueuer:             builder.jobEnqueuer,
		nowFn:                   builder.nowFn,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:              s.logger,
		LoggerProvider:      s.loggerProvider,
		MetricsRecorder:     s.metricsRecorder,
		ErrorFactory:        s.errorFactory,
		ErrorMapper:         s.errorMapper,
		PersistenceClient:   s.persistenceClient,
		RepositoryFactory:   s.repositoryFactory,
		ConfigProvider:      s.configProvider,
		OptionsResolver:     s.optionsResolver,
		MentorLocker:        s.mentorLocker,
		RefreshScheduler:    s.refreshBackoffScheduler,
		RefreshExchange:     s.refreshExchange,
		CredentialStore:     s.credentialStore,
		BookingStore:        s.bookingStore,
		UnmatchedEventStore: s.unmatchedEventStore,
		SecretProvider:      s.secretProvider,
		JobEnqueuer:         s.jobEnqueuer,
	}
}

// EnsureAccessToken returns a usable access token for the mentor, refreshing
// only when the token is missing, expired, or inside the lead window. The
// fast path performs no network calls.
func (s *Service) EnsureAccessToken(ctx context.Context, mentorID string) (token string, err error) {
	startedAt := s.now()
	fields := map[string]any{"mentor_id": mentorID}
	defer func() {
		s.observeOperation(ctx, startedAt, "ensure_access_token", err, fields)
	}()

	credential, err := s.loadCredential(ctx, mentorID)
	if err != nil {
		return "", err
	}

	state := ResolveTokenState(s.now(), credential, s.refreshLeadWindow())
	if !ShouldRefresh(state) {
		if !state.HasAccessToken || state.IsExpired {
			err = NewNotConnectedError(mentorID)
			return "", err
		}
		return credential.AccessToken, nil
	}

	refreshed, err := s.Refresh(ctx, mentorID)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ForceRefresh refreshes unconditionally and returns the new access token.
// Used after the provider rejects a token the expiry check considered valid.
func (s *Service) ForceRefresh(ctx context.Context, mentorID string) (string, error) {
	refreshed, err := s.Refresh(ctx, mentorID)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new token set and
// persists all three fields in one write. On any failure the stored
// credential is left untouched. Concurrent callers serialize on the
// per-mentor lock; a caller that waited out the lock returns the holder's
// freshly stored credential instead of spending a second exchange.
func (s *Service) Refresh(ctx context.Context, mentorID string) (credential MentorCredential, err error) {
	startedAt := s.now()
	fields := map[string]any{"mentor_id": mentorID}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		err = s.mapError(fmt.Errorf("core: mentor id is required"))
		return MentorCredential{}, err
	}
	if s.refreshExchange == nil {
		err = s.mapError(ErrRefreshExchangeNotConfigured)
		return MentorCredential{}, err
	}

	contended := false
	unlock := func() {}
	if s.mentorLocker != nil {
		handle, waited, lockErr := s.acquireRefreshLock(ctx, mentorID)
		if lockErr != nil {
			err = s.mapError(lockErr)
			return MentorCredential{}, err
		}
		contended = waited
		unlock = func() { _ = handle.Unlock(ctx) }
	}
	defer unlock()

	stored, err := s.loadCredential(ctx, mentorID)
	if err != nil {
		return MentorCredential{}, err
	}
	if contended {
		// the previous holder refreshed this credential while we waited
		if state := ResolveTokenState(s.now(), stored, s.refreshLeadWindow()); !ShouldRefresh(state) {
			return stored, nil
		}
	}
	if strings.TrimSpace(stored.RefreshToken) == "" {
		err = NewNotConnectedError(mentorID)
		return MentorCredential{}, err
	}

	result, err := s.refreshExchange.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		err = s.mapError(err)
		return MentorCredential{}, err
	}

	update := TokenUpdate{
		AccessToken:  strings.TrimSpace(result.AccessToken),
		RefreshToken: strings.TrimSpace(result.RefreshToken),
		ExpiresAt:    result.ExpiresAt.UTC(),
		RefreshedAt:  s.now(),
	}
	// some providers omit the refresh token on rotation; keep the old one
	if update.RefreshToken == "" {
		update.RefreshToken = stored.RefreshToken
	}
	if validateErr := update.Validate(); validateErr != nil {
		err = NewRefreshFailedError(mentorID, validateErr.Error())
		return MentorCredential{}, err
	}

	credential, err = s.credentialStore.UpdateTokens(ctx, mentorID, update)
	if err != nil {
		err = s.mapError(err)
		return MentorCredential{}, err
	}
	return credential, nil
}

// Disconnect clears the stored token material for the mentor. The row is
// retained so reconnecting keeps history.
func (s *Service) Disconnect(ctx context.Context, mentorID string) (err error) {
	startedAt := s.now()
	fields := map[string]any{"mentor_id": mentorID}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		err = s.mapError(fmt.Errorf("core: mentor id is required"))
		return err
	}
	if s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return err
	}
	if clearErr := s.credentialStore.ClearTokens(ctx, mentorID); clearErr != nil {
		err = s.mapError(clearErr)
		return err
	}
	return nil
}

// PlanRefreshes enqueues a refresh job for every credential expiring before
// now plus the lead window. Returns how many jobs were enqueued.
func (s *Service) PlanRefreshes(ctx context.Context) (planned int, err error) {
	startedAt := s.now()
	fields := map[string]any{}
	defer func() {
		fields["planned"] = planned
		s.observeOperation(ctx, startedAt, "plan_refreshes", err, fields)
	}()

	if s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return 0, err
	}
	if s.jobEnqueuer == nil {
		err = s.mapError(fmt.Errorf("core: job enqueuer is not configured"))
		return 0, err
	}

	cutoff := s.now().Add(s.refreshLeadWindow())
	expiring, listErr := s.credentialStore.ListExpiring(ctx, cutoff)
	if listErr != nil {
		err = s.mapError(listErr)
		return 0, err
	}

	for _, credential := range expiring {
		if !credential.Connected() {
			continue
		}
		msg := &JobExecutionMessage{
			JobID:          JobIDCredentialRefresh,
			Parameters:     map[string]any{"mentor_id": credential.MentorID},
			IdempotencyKey: JobIDCredentialRefresh + ":" + credential.MentorID,
			DedupPolicy:    "drop",
		}
		if enqueueErr := s.jobEnqueuer.Enqueue(ctx, msg); enqueueErr != nil {
			err = s.mapError(enqueueErr)
			return planned, err
		}
		planned++
	}
	return planned, nil
}

func (s *Service) loadCredential(ctx context.Context, mentorID string) (MentorCredential, error) {
	mentorID = strings.TrimSpace(mentorID)
	if mentorID == "" {
		return MentorCredential{}, s.mapError(fmt.Errorf("core: mentor id is required"))
	}
	if s.credentialStore == nil {
		return MentorCredential{}, s.mapError(fmt.Errorf("core: credential store is not configured"))
	}
	credential, err := s.credentialStore.GetByMentor(ctx, mentorID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return MentorCredential{}, NewNotConnectedError(mentorID)
		}
		return MentorCredential{}, s.mapError(err)
	}
	if !credential.Connected() {
		return MentorCredential{}, NewNotConnectedError(mentorID)
	}
	return credential, nil
}

func (s *Service) refreshLeadWindow() time.Duration {
	if s != nil && s.config.Refresh.LeadWindow > 0 {
		return s.config.Refresh.LeadWindow
	}
	return DefaultRefreshLeadWindow
}

func (s *Service) refreshLockTTL() time.Duration {
	if s != nil && s.config.Refresh.LockTTL > 0 {
		return s.config.Refresh.LockTTL
	}
	return defaultRefreshLockTTL
}

func (s *Service) now() time.Time {
	if s != nil && s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
