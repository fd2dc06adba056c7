package reconcile

import (
	"context"
	"net/http"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/payments"
	"github.com/goliatone/go-bookings/scheduling"
)

// SchedulingHandler turns verified scheduling deliveries into reconciler
// events. Bodies reach this handler only after signature verification.
type SchedulingHandler struct {
	Reconciler *Reconciler
}

var _ core.WebhookHandler = (*SchedulingHandler)(nil)

func (h *SchedulingHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	event, err := scheduling.ParseWebhookEvent(req.Body)
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusBadRequest}, err
	}

	var reconcileEvent Event
	switch event.Kind {
	case scheduling.EventBookingCreated:
		reconcileEvent = BookingCreated{
			SchedulingEventRef: event.EventRef(),
			BookingRef:         event.BookingRefHint(),
			MentorIDHint:       event.Payload.Metadata.MentorID,
			ServiceIDHint:      event.Payload.Metadata.ServiceID,
			ClientEmailHint:    event.ClientEmailHint(),
			StartTime:          event.Payload.StartTime,
		}
	case scheduling.EventBookingCancelled:
		reconcileEvent = BookingCancelled{SchedulingEventRef: event.EventRef()}
	}

	result, err := h.Reconciler.Apply(ctx, req.ProviderID, reconcileEvent)
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError}, err
	}
	return acceptedResult(result), nil
}

// PaymentsHandler turns verified payment deliveries into reconciler events.
// Event types outside the handled set are acknowledged without touching any
// booking.
type PaymentsHandler struct {
	Reconciler *Reconciler
}

var _ core.WebhookHandler = (*PaymentsHandler)(nil)

func (h *PaymentsHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	event, handled, err := payments.ParseWebhookEvent(req.Body)
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusBadRequest}, err
	}
	if !handled {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"outcome": string(OutcomeSkipped)},
		}, nil
	}

	var reconcileEvent Event
	switch event.Kind {
	case payments.EventPaymentSucceeded:
		reconcileEvent = PaymentSucceeded{PaymentRef: event.PaymentRef, BookingRef: event.BookingRef}
	case payments.EventPaymentFailed:
		reconcileEvent = PaymentFailed{PaymentRef: event.PaymentRef, BookingRef: event.BookingRef}
	case payments.EventPaymentRefunded:
		reconcileEvent = PaymentRefunded{PaymentRef: event.PaymentRef}
	}

	result, err := h.Reconciler.Apply(ctx, req.ProviderID, reconcileEvent)
	if err != nil {
		return core.InboundResult{Accepted: false, StatusCode: http.StatusInternalServerError}, err
	}
	return acceptedResult(result), nil
}

// acceptedResult acknowledges the delivery for every reconciler outcome,
// including unmatched. The unmatched sink owns follow-up; a non-2xx here
// would only make the provider redeliver an event that still cannot match.
func acceptedResult(result Result) core.InboundResult {
	metadata := map[string]any{"outcome": string(result.Outcome)}
	if result.Reason != "" {
		metadata["reason"] = result.Reason
	}
	if result.Booking.ID != "" {
		metadata["booking_id"] = result.Booking.ID
	}
	return core.InboundResult{Accepted: true, StatusCode: http.StatusOK, Metadata: metadata}
}
