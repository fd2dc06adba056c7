package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type SchedulerConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url" envconfig:"SCHEDULER_BASE_URL"`
	TokenURL       string        `koanf:"token_url" mapstructure:"token_url" envconfig:"SCHEDULER_TOKEN_URL"`
	ClientID       string        `koanf:"client_id" mapstructure:"client_id" envconfig:"SCHEDULER_CLIENT_ID"`
	ClientSecret   string        `koanf:"client_secret" mapstructure:"client_secret" envconfig:"SCHEDULER_CLIENT_SECRET"`
	WebhookSecret  string        `koanf:"webhook_secret" mapstructure:"webhook_secret" envconfig:"SCHEDULER_WEBHOOK_SECRET"`
	Timezone       string        `koanf:"timezone" mapstructure:"timezone" envconfig:"SCHEDULER_TIMEZONE"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout" envconfig:"SCHEDULER_REQUEST_TIMEOUT"`
}

type PaymentsConfig struct {
	WebhookSecret   string        `koanf:"webhook_secret" mapstructure:"webhook_secret" envconfig:"PAYMENTS_WEBHOOK_SECRET"`
	SignatureHeader string        `koanf:"signature_header" mapstructure:"signature_header" envconfig:"PAYMENTS_SIGNATURE_HEADER"`
	Tolerance       time.Duration `koanf:"tolerance" mapstructure:"tolerance" envconfig:"PAYMENTS_TOLERANCE"`
}

type RefreshConfig struct {
	LeadWindow  time.Duration `koanf:"lead_window" mapstructure:"lead_window" envconfig:"REFRESH_LEAD_WINDOW"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts" envconfig:"REFRESH_MAX_ATTEMPTS"`
	LockTTL     time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl" envconfig:"REFRESH_LOCK_TTL"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name" envconfig:"SERVICE_NAME"`
	Scheduler   SchedulerConfig `koanf:"scheduler" mapstructure:"scheduler"`
	Payments    PaymentsConfig  `koanf:"payments" mapstructure:"payments"`
	Refresh     RefreshConfig   `koanf:"refresh" mapstructure:"refresh"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "bookings",
		Scheduler: SchedulerConfig{
			Timezone:       "UTC",
			RequestTimeout: 10 * time.Second,
		},
		Payments: PaymentsConfig{
			SignatureHeader: "Pay-Signature",
			Tolerance:       5 * time.Minute,
		},
		Refresh: RefreshConfig{
			LeadWindow:  DefaultRefreshLeadWindow,
			MaxAttempts: defaultRefreshMaxAttempts,
			LockTTL:     defaultRefreshLockTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Refresh.LeadWindow < 0 {
		return fmt.Errorf("core: refresh lead_window cannot be negative")
	}
	if c.Payments.Tolerance < 0 {
		return fmt.Errorf("core: payments tolerance cannot be negative")
	}
	return nil
}

// LoadEnvConfig reads configuration from the process environment, loading a
// dotenv file first when one is present. Secrets are never defaulted; a
// missing webhook secret simply leaves verification unconfigured, which fails
// closed downstream.
func LoadEnvConfig(prefix string, dotenvFiles ...string) (Config, error) {
	for _, file := range dotenvFiles {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		// best effort: absent dotenv files are not an error in production
		_ = godotenv.Load(file)
	}

	cfg := DefaultConfig()
	if err := envconfig.Process(prefix, &cfg.Scheduler); err != nil {
		return Config{}, fmt.Errorf("core: load scheduler env config: %w", err)
	}
	if err := envconfig.Process(prefix, &cfg.Payments); err != nil {
		return Config{}, fmt.Errorf("core: load payments env config: %w", err)
	}
	if err := envconfig.Process(prefix, &cfg.Refresh); err != nil {
		return Config{}, fmt.Errorf("core: load refresh env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
