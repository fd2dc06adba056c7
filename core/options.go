package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig       Config
	logger              Logger
	loggerProvider      LoggerProvider
	metricsRecorder     MetricsRecorder
	errorFactory        ErrorFactory
	errorMapper         ErrorMapper
	secretProvider      SecretProvider
	persistenceClient   any
	repositoryFactory   any
	configProvider      ConfigProvider
	optionsResolver     OptionsResolver
	mentorLocker        MentorLocker
	refreshScheduler    RefreshBackoffScheduler
	refreshExchange     RefreshExchange
	credentialStore     CredentialStore
	bookingStore        BookingStore
	unmatchedEventStore UnmatchedEventStore
	jobEnqueuer         JobEnqueuer
	nowFn               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithMentorLocker(locker MentorLocker) Option {
	return func(b *serviceBuilder) {
		b.mentorLocker = locker
	}
}

func WithRefreshBackoffScheduler(scheduler RefreshBackoffScheduler) Option {
	return func(b *serviceBuilder) {
		b.refreshScheduler = scheduler
	}
}

func WithRefreshExchange(exchange RefreshExchange) Option {
	return func(b *serviceBuilder) {
		b.refreshExchange = exchange
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithBookingStore(store BookingStore) Option {
	return func(b *serviceBuilder) {
		b.bookingStore = store
	}
}

func WithUnmatchedEventStore(store UnmatchedEventStore) Option {
	return func(b *serviceBuilder) {
		b.unmatchedEventStore = store
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.nowFn = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("bookings", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return bookingErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	scheduler := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Scheduler.BaseURL) != "" {
		scheduler["base_url"] = cfg.Scheduler.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Scheduler.TokenURL) != "" {
		scheduler["token_url"] = cfg.Scheduler.TokenURL
	}
	if includeZero || strings.TrimSpace(cfg.Scheduler.ClientID) != "" {
		scheduler["client_id"] = cfg.Scheduler.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.Scheduler.ClientSecret) != "" {
		scheduler["client_secret"] = cfg.Scheduler.ClientSecret
	}
	if includeZero || strings.TrimSpace(cfg.Scheduler.WebhookSecret) != "" {
		scheduler["webhook_secret"] = cfg.Scheduler.WebhookSecret
	}
	if includeZero || strings.TrimSpace(cfg.Scheduler.Timezone) != "" {
		scheduler["timezone"] = cfg.Scheduler.Timezone
	}
	if includeZero || cfg.Scheduler.RequestTimeout > 0 {
		scheduler["request_timeout"] = cfg.Scheduler.RequestTimeout
	}
	if len(scheduler) > 0 {
		layer["scheduler"] = scheduler
	}

	payments := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Payments.WebhookSecret) != "" {
		payments["webhook_secret"] = cfg.Payments.WebhookSecret
	}
	if includeZero || strings.TrimSpace(cfg.Payments.SignatureHeader) != "" {
		payments["signature_header"] = cfg.Payments.SignatureHeader
	}
	if includeZero || cfg.Payments.Tolerance > 0 {
		payments["tolerance"] = cfg.Payments.Tolerance
	}
	if len(payments) > 0 {
		layer["payments"] = payments
	}

	refresh := map[string]any{}
	if includeZero || cfg.Refresh.LeadWindow > 0 {
		refresh["lead_window"] = cfg.Refresh.LeadWindow
	}
	if includeZero || cfg.Refresh.MaxAttempts > 0 {
		refresh["max_attempts"] = cfg.Refresh.MaxAttempts
	}
	if includeZero || cfg.Refresh.LockTTL > 0 {
		refresh["lock_ttl"] = cfg.Refresh.LockTTL
	}
	if len(refresh) > 0 {
		layer["refresh"] = refresh
	}

	return layer
}
