package reconcile

import (
	"fmt"
	"strings"
)

// Event is the closed union of webhook events the reconciler understands.
// The marker method seals the set so the Apply switch stays exhaustive.
type Event interface {
	Kind() string
	Validate() error
	isReconcileEvent()
}

// BookingCreated is the scheduling provider confirming a booking on the
// mentor's calendar. The hint fields are untrusted payload metadata used
// only for correlation; they are re-verified against the stored booking
// before any status changes.
type BookingCreated struct {
	SchedulingEventRef string
	BookingRef         string
	MentorIDHint       string
	ServiceIDHint      string
	ClientEmailHint    string
	StartTime          string
}

func (BookingCreated) Kind() string      { return "booking_created" }
func (BookingCreated) isReconcileEvent() {}

func (e BookingCreated) Validate() error {
	if strings.TrimSpace(e.SchedulingEventRef) == "" {
		return fmt.Errorf("reconcile: booking_created requires a scheduling event reference")
	}
	return nil
}

// BookingCancelled is the scheduling provider reporting that a confirmed
// booking was cancelled on the calendar.
type BookingCancelled struct {
	SchedulingEventRef string
}

func (BookingCancelled) Kind() string      { return "booking_cancelled" }
func (BookingCancelled) isReconcileEvent() {}

func (e BookingCancelled) Validate() error {
	if strings.TrimSpace(e.SchedulingEventRef) == "" {
		return fmt.Errorf("reconcile: booking_cancelled requires a scheduling event reference")
	}
	return nil
}

// PaymentSucceeded confirms checkout payment for a pending booking.
type PaymentSucceeded struct {
	PaymentRef string
	BookingRef string
}

func (PaymentSucceeded) Kind() string      { return "payment_succeeded" }
func (PaymentSucceeded) isReconcileEvent() {}

func (e PaymentSucceeded) Validate() error {
	if strings.TrimSpace(e.PaymentRef) == "" {
		return fmt.Errorf("reconcile: payment_succeeded requires a payment reference")
	}
	return nil
}

// PaymentFailed marks a pending booking's checkout as failed.
type PaymentFailed struct {
	PaymentRef string
	BookingRef string
}

func (PaymentFailed) Kind() string      { return "payment_failed" }
func (PaymentFailed) isReconcileEvent() {}

func (e PaymentFailed) Validate() error {
	if strings.TrimSpace(e.PaymentRef) == "" {
		return fmt.Errorf("reconcile: payment_failed requires a payment reference")
	}
	return nil
}

// PaymentRefunded moves a confirmed booking to refunded.
type PaymentRefunded struct {
	PaymentRef string
}

func (PaymentRefunded) Kind() string      { return "payment_refunded" }
func (PaymentRefunded) isReconcileEvent() {}

func (e PaymentRefunded) Validate() error {
	if strings.TrimSpace(e.PaymentRef) == "" {
		return fmt.Errorf("reconcile: payment_refunded requires a payment reference")
	}
	return nil
}
