package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-bookings/core"
)

// Outcome classifies what applying one event did.
type Outcome string

const (
	// OutcomeApplied means the event moved the booking.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyApplied means the booking already reflects the event,
	// including redeliveries and transitions that would move status backward.
	OutcomeAlreadyApplied Outcome = "already_applied"
	// OutcomeUnmatched means no booking could be correlated; the event was
	// recorded to the unmatched sink.
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomeSkipped means the event was valid but not applicable to the
	// correlated booking's current state.
	OutcomeSkipped Outcome = "skipped"
)

// Result reports the outcome of applying one event.
type Result struct {
	Outcome Outcome
	Booking core.Booking
	Reason  string
}

type Option func(*Reconciler)

func WithLogger(logger core.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(r *Reconciler) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler owns booking status mutation. Every write goes through the
// store's guarded transition so concurrent deliveries cannot race a status
// backward.
type Reconciler struct {
	bookings  core.BookingStore
	unmatched core.UnmatchedEventStore
	logger    core.Logger
	metrics   core.MetricsRecorder
	now       func() time.Time
}

func New(bookings core.BookingStore, unmatched core.UnmatchedEventStore, options ...Option) (*Reconciler, error) {
	if bookings == nil {
		return nil, fmt.Errorf("reconcile: booking store is required")
	}
	if unmatched == nil {
		return nil, fmt.Errorf("reconcile: unmatched event store is required")
	}
	_, logger := glog.Resolve("bookings", nil, nil)
	reconciler := &Reconciler{
		bookings:  bookings,
		unmatched: unmatched,
		logger:    logger,
		metrics:   core.NopMetricsRecorder{},
		now:       time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(reconciler)
		}
	}
	return reconciler, nil
}

// Apply interprets one verified event against the booking store. Applying
// the same event twice converges on the same booking state; the second call
// reports already_applied.
func (r *Reconciler) Apply(ctx context.Context, providerID string, event Event) (Result, error) {
	if event == nil {
		return Result{}, fmt.Errorf("reconcile: event is required")
	}
	if err := event.Validate(); err != nil {
		return Result{}, err
	}

	var result Result
	var err error
	switch typed := event.(type) {
	case BookingCreated:
		result, err = r.applyBookingCreated(ctx, providerID, typed)
	case BookingCancelled:
		result, err = r.applyBookingCancelled(ctx, providerID, typed)
	case PaymentSucceeded:
		result, err = r.applyPaymentSucceeded(ctx, providerID, typed)
	case PaymentFailed:
		result, err = r.applyPaymentFailed(ctx, providerID, typed)
	case PaymentRefunded:
		result, err = r.applyPaymentRefunded(ctx, providerID, typed)
	default:
		return Result{}, fmt.Errorf("reconcile: unsupported event kind %q", event.Kind())
	}

	r.observe(ctx, providerID, event, result, err)
	return result, err
}

func (r *Reconciler) applyBookingCreated(ctx context.Context, providerID string, event BookingCreated) (Result, error) {
	ref := strings.TrimSpace(event.SchedulingEventRef)

	booking, err := r.bookings.GetBySchedulingEventRef(ctx, ref)
	switch {
	case err == nil:
		return r.confirmCorrelated(ctx, booking, core.BookingRefUpdate{SchedulingEventRef: ref})
	case !errors.Is(err, core.ErrBookingNotFound):
		return Result{}, err
	}

	booking, found, err := r.correlateCreated(ctx, event)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return r.recordUnmatched(ctx, providerID, event.Kind(), ref, "no booking correlated", map[string]any{
			"booking_ref":  event.BookingRef,
			"mentor_hint":  event.MentorIDHint,
			"service_hint": event.ServiceIDHint,
		})
	}
	if !hintsMatchBooking(booking, event.MentorIDHint, event.ServiceIDHint) {
		return r.recordUnmatched(ctx, providerID, event.Kind(), ref, "payload hints do not match correlated booking", map[string]any{
			"booking_id":   booking.ID,
			"mentor_hint":  event.MentorIDHint,
			"service_hint": event.ServiceIDHint,
		})
	}

	return r.confirmCorrelated(ctx, booking, core.BookingRefUpdate{SchedulingEventRef: ref})
}

// confirmCorrelated drives a correlated booking toward confirmed and
// attaches the scheduling reference. A booking already confirmed by the
// payment leg still gets the reference attached; terminal bookings are left
// alone.
func (r *Reconciler) confirmCorrelated(ctx context.Context, booking core.Booking, refs core.BookingRefUpdate) (Result, error) {
	switch booking.Status {
	case core.BookingStatusPendingPayment:
		return r.transition(ctx, booking, core.BookingStatusPendingPayment, core.BookingStatusConfirmed, refs)
	case core.BookingStatusConfirmed:
		if booking.SchedulingEventRef == strings.TrimSpace(refs.SchedulingEventRef) {
			return Result{Outcome: OutcomeAlreadyApplied, Booking: booking}, nil
		}
		return r.transition(ctx, booking, core.BookingStatusConfirmed, core.BookingStatusConfirmed, refs)
	default:
		return Result{
			Outcome: OutcomeAlreadyApplied,
			Booking: booking,
			Reason:  fmt.Sprintf("booking is already %s", booking.Status),
		}, nil
	}
}

func (r *Reconciler) applyBookingCancelled(ctx context.Context, providerID string, event BookingCancelled) (Result, error) {
	ref := strings.TrimSpace(event.SchedulingEventRef)

	booking, err := r.bookings.GetBySchedulingEventRef(ctx, ref)
	if errors.Is(err, core.ErrBookingNotFound) {
		return r.recordUnmatched(ctx, providerID, event.Kind(), ref, "no booking holds this scheduling reference", nil)
	}
	if err != nil {
		return Result{}, err
	}

	switch booking.Status {
	case core.BookingStatusCancelled, core.BookingStatusRefunded:
		return Result{Outcome: OutcomeAlreadyApplied, Booking: booking}, nil
	case core.BookingStatusConfirmed:
		return r.transition(ctx, booking, core.BookingStatusConfirmed, core.BookingStatusCancelled, core.BookingRefUpdate{})
	default:
		return Result{
			Outcome: OutcomeSkipped,
			Booking: booking,
			Reason:  fmt.Sprintf("cancellation does not apply to a %s booking", booking.Status),
		}, nil
	}
}

func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, providerID string, event PaymentSucceeded) (Result, error) {
	ref := strings.TrimSpace(event.PaymentRef)

	booking, found, err := r.correlatePayment(ctx, ref, event.BookingRef)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return r.recordUnmatched(ctx, providerID, event.Kind(), ref, "no booking correlated", map[string]any{
			"booking_ref": event.BookingRef,
		})
	}

	switch booking.Status {
	case core.BookingStatusPendingPayment:
		return r.transition(ctx, booking, core.BookingStatusPendingPayment, core.BookingStatusConfirmed, core.BookingRefUpdate{PaymentRef: ref})
	case core.BookingStatusConfirmed:
		// the scheduling leg confirmed first; still attach the payment
		// reference so both delivery orders end in the same state
		if booking.PaymentRef == ref {
			return Result{Outcome: OutcomeAlreadyApplied, Booking: booking}, nil
		}
		return r.transition(ctx, booking, core.BookingStatusConfirmed, core.BookingStatusConfirmed, core.BookingRefUpdate{PaymentRef: ref})
	default:
		return Result{
			Outcome: OutcomeAlreadyApplied,
			Booking: booking,
			Reason:  fmt.Sprintf("booking is already %s", booking.Status),
		}, nil
	}
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, providerID string, event PaymentFailed) (Result, error) {
	ref := strings.TrimSpace(event.PaymentRef)

	booking, found, err := r.correlatePayment(ctx, ref, event.BookingRef)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return r.recordUnmatched(ctx, providerID, event.Kind(), ref, "no booking correlated", map[string]any{
			"booking_ref": event.BookingRef,
		})
	}

	switch booking.Status {
	case core.BookingStatusPendingPayment:
		return r.transition(ctx, booking, core.BookingStatusPendingPayment, core.BookingStatusFailed, core.BookingRefUpdate{PaymentRef: ref})
	case core.BookingStatusFailed:
		return Result{Outcome: OutcomeAlreadyApplied, Booking: booking}, nil
	default:
		return Result{
			Outcome: OutcomeAlreadyApplied,
			Booking: booking,
			Reason:  fmt.Sprintf("booking already progressed to %s", booking.Status),
		}, nil
	}
}

func (r *Reconciler) applyPaymentRefunded(ctx context.Context, providerID string, event PaymentRefunded) (Result, error) {
	ref := strings.TrimSpace(event.PaymentRef)

	booking, err := r.bookings.GetByPaymentRef(ctx, ref)
	if errors.Is(err, core.ErrBookingNotFound) {
		return r.recordUnmatched(ctx, providerID, event.Kind(), ref, "no booking holds this payment reference", nil)
	}
	if err != nil {
		return Result{}, err
	}

	switch booking.Status {
	case core.BookingStatusRefunded:
		return Result{Outcome: OutcomeAlreadyApplied, Booking: booking}, nil
	case core.BookingStatusConfirmed:
		return r.transition(ctx, booking, core.BookingStatusConfirmed, core.BookingStatusRefunded, core.BookingRefUpdate{})
	default:
		return Result{
			Outcome: OutcomeSkipped,
			Booking: booking,
			Reason:  fmt.Sprintf("refund does not apply to a %s booking", booking.Status),
		}, nil
	}
}

// correlateCreated resolves a scheduling-created event to a booking when no
// booking holds the scheduling reference yet: first the opaque booking
// reference minted at checkout, then a pending-booking match on the payload
// hints.
func (r *Reconciler) correlateCreated(ctx context.Context, event BookingCreated) (core.Booking, bool, error) {
	if ref := strings.TrimSpace(event.BookingRef); ref != "" {
		booking, err := r.bookings.GetByBookingRef(ctx, ref)
		if err == nil {
			return booking, true, nil
		}
		if !errors.Is(err, core.ErrBookingNotFound) {
			return core.Booking{}, false, err
		}
	}

	lookup := core.BookingLookup{
		MentorID:    strings.TrimSpace(event.MentorIDHint),
		ServiceID:   strings.TrimSpace(event.ServiceIDHint),
		ClientEmail: strings.TrimSpace(event.ClientEmailHint),
		Status:      core.BookingStatusPendingPayment,
	}
	if lookup.MentorID == "" && lookup.ServiceID == "" && lookup.ClientEmail == "" {
		return core.Booking{}, false, nil
	}
	candidates, err := r.bookings.FindPending(ctx, lookup)
	if err != nil {
		return core.Booking{}, false, err
	}
	// an ambiguous match is no match; guessing would confirm the wrong booking
	if len(candidates) != 1 {
		return core.Booking{}, false, nil
	}
	return candidates[0], true, nil
}

func (r *Reconciler) correlatePayment(ctx context.Context, paymentRef, bookingRef string) (core.Booking, bool, error) {
	booking, err := r.bookings.GetByPaymentRef(ctx, paymentRef)
	if err == nil {
		return booking, true, nil
	}
	if !errors.Is(err, core.ErrBookingNotFound) {
		return core.Booking{}, false, err
	}

	if ref := strings.TrimSpace(bookingRef); ref != "" {
		booking, err = r.bookings.GetByBookingRef(ctx, ref)
		if err == nil {
			return booking, true, nil
		}
		if !errors.Is(err, core.ErrBookingNotFound) {
			return core.Booking{}, false, err
		}
	}
	return core.Booking{}, false, nil
}

// transition applies the guarded store update. When the guard reports no
// movement the booking was changed concurrently; the re-read row decides
// whether the event is already satisfied.
func (r *Reconciler) transition(ctx context.Context, booking core.Booking, from, to core.BookingStatus, refs core.BookingRefUpdate) (Result, error) {
	updated, moved, err := r.bookings.TransitionStatus(ctx, booking.ID, from, to, refs)
	if err != nil {
		return Result{}, err
	}
	if moved {
		return Result{Outcome: OutcomeApplied, Booking: updated}, nil
	}
	if updated.Status == to {
		return Result{Outcome: OutcomeAlreadyApplied, Booking: updated}, nil
	}
	return Result{
		Outcome: OutcomeSkipped,
		Booking: updated,
		Reason:  fmt.Sprintf("booking moved to %s concurrently", updated.Status),
	}, nil
}

func (r *Reconciler) recordUnmatched(ctx context.Context, providerID, kind, externalRef, reason string, payload map[string]any) (Result, error) {
	record := core.UnmatchedEvent{
		ProviderID:  strings.TrimSpace(providerID),
		Kind:        kind,
		ExternalRef: strings.TrimSpace(externalRef),
		Reason:      reason,
		Payload:     core.RedactSensitiveMap(payload),
		CreatedAt:   r.now().UTC(),
	}
	if _, err := r.unmatched.Record(ctx, record); err != nil {
		return Result{}, fmt.Errorf("reconcile: record unmatched event: %w", err)
	}
	return Result{Outcome: OutcomeUnmatched, Reason: reason}, nil
}

func hintsMatchBooking(booking core.Booking, mentorHint, serviceHint string) bool {
	if hint := strings.TrimSpace(mentorHint); hint != "" && !strings.EqualFold(hint, booking.MentorID) {
		return false
	}
	if hint := strings.TrimSpace(serviceHint); hint != "" && !strings.EqualFold(hint, booking.ServiceID) {
		return false
	}
	return true
}

func (r *Reconciler) observe(ctx context.Context, providerID string, event Event, result Result, err error) {
	tags := map[string]string{
		"kind":    event.Kind(),
		"outcome": string(result.Outcome),
	}
	if err != nil {
		tags["outcome"] = "error"
	}
	r.metrics.IncCounter(ctx, "bookings.reconcile.total", 1, tags)

	fields := []any{
		"kind", event.Kind(),
		"provider_id", strings.TrimSpace(providerID),
		"outcome", string(result.Outcome),
	}
	if result.Booking.ID != "" {
		fields = append(fields, "booking_id", result.Booking.ID)
	}
	if err != nil {
		r.logger.Error("reconcile event failed", append(fields, "error", err.Error())...)
		return
	}
	r.logger.Info("reconcile event", fields...)
}
