package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-bookings/webhooks"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "Cal-Signature-256"

// NewWebhookVerifier builds the signature verifier for scheduling webhook
// deliveries. The secret comes from provider configuration; an empty secret
// makes every delivery fail verification.
func NewWebhookVerifier(secret string) webhooks.HMACVerifier {
	return webhooks.HMACVerifier{
		Header: SignatureHeader,
		Secret: secret,
	}
}

// EventKind is the closed set of webhook event kinds this integration
// understands. Anything else is rejected at parse time.
type EventKind string

const (
	EventBookingCreated   EventKind = "BOOKING_CREATED"
	EventBookingCancelled EventKind = "BOOKING_CANCELLED"
)

type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TrackingMetadata is the structured correlation block the marketplace
// attaches when it creates the provider booking. BookingRef is an opaque
// token minted at checkout; the mentor and service fields are untrusted
// hints that the reconciler re-verifies against the stored booking.
type TrackingMetadata struct {
	BookingRef string `json:"bookingRef"`
	MentorID   string `json:"mentorId"`
	ServiceID  string `json:"serviceId"`
}

// QuestionAnswer is a legacy free-text booking form response. Older
// checkouts carried the booking reference only here, so it survives as a
// correlation fallback behind the structured metadata.
type QuestionAnswer struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type BookingPayload struct {
	UID       string           `json:"uid"`
	StartTime string           `json:"startTime"`
	Attendees []Attendee       `json:"attendees"`
	Metadata  TrackingMetadata `json:"metadata"`
	Responses []QuestionAnswer `json:"responses"`
}

// WebhookEvent is the wire envelope of a scheduling webhook delivery.
type WebhookEvent struct {
	Kind    EventKind      `json:"event"`
	Payload BookingPayload `json:"payload"`
}

// ParseWebhookEvent decodes and validates a raw delivery body. Callers must
// verify the signature first; this function assumes the body is authentic.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("scheduling: decode webhook event: %w", err)
	}
	event.Kind = EventKind(strings.ToUpper(strings.TrimSpace(string(event.Kind))))
	if err := event.Validate(); err != nil {
		return WebhookEvent{}, err
	}
	return event, nil
}

func (e WebhookEvent) Validate() error {
	switch e.Kind {
	case EventBookingCreated, EventBookingCancelled:
	case "":
		return fmt.Errorf("scheduling: webhook event kind is required")
	default:
		return fmt.Errorf("scheduling: unsupported webhook event kind %q", string(e.Kind))
	}
	if strings.TrimSpace(e.Payload.UID) == "" {
		return fmt.Errorf("scheduling: webhook payload uid is required")
	}
	return nil
}

// EventRef is the provider's booking identifier, the idempotency key for
// scheduling events.
func (e WebhookEvent) EventRef() string {
	return strings.TrimSpace(e.Payload.UID)
}

// BookingRefHint returns the opaque marketplace booking reference carried in
// the payload, preferring the structured metadata over the legacy booking
// form answer.
func (e WebhookEvent) BookingRefHint() string {
	if ref := strings.TrimSpace(e.Payload.Metadata.BookingRef); ref != "" {
		return ref
	}
	for _, response := range e.Payload.Responses {
		label := strings.ToLower(strings.TrimSpace(response.Label))
		if label == "booking reference" || label == "booking_ref" {
			return strings.TrimSpace(response.Value)
		}
	}
	return ""
}

// ClientEmailHint returns the first attendee email, used only to narrow
// pending-booking correlation.
func (e WebhookEvent) ClientEmailHint() string {
	for _, attendee := range e.Payload.Attendees {
		if email := strings.TrimSpace(attendee.Email); email != "" {
			return strings.ToLower(email)
		}
	}
	return ""
}
