package bookings

import (
	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/payments"
	"github.com/goliatone/go-bookings/scheduling"
	"github.com/goliatone/go-bookings/webhooks"
)

// SchedulingRefreshExchange builds the OAuth refresh-token exchange the
// credential service swaps refresh tokens through.
func SchedulingRefreshExchange(cfg Config) (core.RefreshExchange, error) {
	return scheduling.NewProvider(scheduling.ProviderConfig{
		TokenURL:       cfg.Scheduler.TokenURL,
		ClientID:       cfg.Scheduler.ClientID,
		ClientSecret:   cfg.Scheduler.ClientSecret,
		RequestTimeout: cfg.Scheduler.RequestTimeout,
	})
}

// SchedulingAvailabilityClient builds the availability client backing the
// ListAvailability query. The token source is usually the credential service.
func SchedulingAvailabilityClient(cfg Config, tokens core.TokenSource) (*scheduling.Client, error) {
	return scheduling.NewClient(scheduling.ClientConfig{
		BaseURL:        cfg.Scheduler.BaseURL,
		Timezone:       cfg.Scheduler.Timezone,
		RequestTimeout: cfg.Scheduler.RequestTimeout,
	}, tokens)
}

// SchedulingWebhookVerifier builds the raw-body HMAC verifier for scheduling
// webhook deliveries.
func SchedulingWebhookVerifier(cfg Config) webhooks.HMACVerifier {
	return scheduling.NewWebhookVerifier(cfg.Scheduler.WebhookSecret)
}

// PaymentsWebhookVerifier builds the signed-envelope verifier for payment
// webhook deliveries, honoring the configured header and timestamp tolerance.
func PaymentsWebhookVerifier(cfg Config) payments.SignedEventVerifier {
	return payments.SignedEventVerifier{
		Header:    cfg.Payments.SignatureHeader,
		Secret:    cfg.Payments.WebhookSecret,
		Tolerance: cfg.Payments.Tolerance,
	}
}
