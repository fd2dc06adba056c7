package payments

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the closed set of payment event kinds the reconciler acts on.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventPaymentRefunded  EventKind = "payment_refunded"
)

// providerEventKinds maps the provider's wire event types onto our kinds.
// The provider fans out far more types than these; anything absent here is
// acknowledged and skipped, never an error.
var providerEventKinds = map[string]EventKind{
	"checkout.session.completed":            EventPaymentSucceeded,
	"checkout.session.async_payment_failed": EventPaymentFailed,
	"checkout.session.expired":              EventPaymentFailed,
	"charge.refunded":                       EventPaymentRefunded,
}

// WebhookEvent is a decoded, booking-relevant payment event.
type WebhookEvent struct {
	Kind       EventKind
	ProviderID string
	PaymentRef string
	BookingRef string
}

type wireEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			PaymentIntent     string            `json:"payment_intent"`
			ClientReferenceID string            `json:"client_reference_id"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhookEvent decodes a verified raw body. The second return value
// reports whether the event type is one the reconciler handles; false means
// acknowledge the delivery and move on. Handled events with a missing
// payment reference are rejected rather than half-parsed.
func ParseWebhookEvent(body []byte) (WebhookEvent, bool, error) {
	var wire wireEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		return WebhookEvent{}, false, fmt.Errorf("payments: decode webhook event: %w", err)
	}
	eventType := strings.ToLower(strings.TrimSpace(wire.Type))
	if eventType == "" {
		return WebhookEvent{}, false, fmt.Errorf("payments: webhook event type is required")
	}
	kind, handled := providerEventKinds[eventType]
	if !handled {
		return WebhookEvent{}, false, nil
	}

	event := WebhookEvent{
		Kind:       kind,
		ProviderID: strings.TrimSpace(wire.ID),
		PaymentRef: strings.TrimSpace(wire.Data.Object.ID),
		BookingRef: bookingRefFromWire(wire),
	}
	if event.PaymentRef == "" {
		event.PaymentRef = strings.TrimSpace(wire.Data.Object.PaymentIntent)
	}
	if event.PaymentRef == "" {
		return WebhookEvent{}, false, fmt.Errorf("payments: %s event is missing a payment reference", eventType)
	}
	return event, true, nil
}

func bookingRefFromWire(wire wireEvent) string {
	if ref := strings.TrimSpace(wire.Data.Object.Metadata["bookingRef"]); ref != "" {
		return ref
	}
	return strings.TrimSpace(wire.Data.Object.ClientReferenceID)
}
