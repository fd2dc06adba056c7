// Package command exposes the mutating operations of the bookings core
// as go-command messages so they can run inline, behind a dispatcher,
// or on a queue worker without changing handler code.
package command

import (
	"strings"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/reconcile"
)

const (
	TypeRefreshCredential    = "bookings.command.credential.refresh"
	TypeDisconnectCredential = "bookings.command.credential.disconnect"
	TypePlanRefreshes        = "bookings.command.credential.plan_refreshes"
	TypeCreateBooking        = "bookings.command.booking.create"
	TypeApplySchedulingEvent = "bookings.command.event.scheduling.apply"
	TypeApplyPaymentEvent    = "bookings.command.event.payment.apply"
)

type RefreshCredentialMessage struct {
	MentorID string
	// Force skips freshness checks and exchanges the refresh token
	// immediately, the path taken after a provider 401.
	Force bool
}

func (RefreshCredentialMessage) Type() string { return TypeRefreshCredential }

func (m RefreshCredentialMessage) Validate() error {
	if strings.TrimSpace(m.MentorID) == "" {
		return commandValidationError("mentor_id", "mentor id is required")
	}
	return nil
}

type DisconnectCredentialMessage struct {
	MentorID string
}

func (DisconnectCredentialMessage) Type() string { return TypeDisconnectCredential }

func (m DisconnectCredentialMessage) Validate() error {
	if strings.TrimSpace(m.MentorID) == "" {
		return commandValidationError("mentor_id", "mentor id is required")
	}
	return nil
}

// PlanRefreshesMessage triggers a scan for credentials expiring inside
// the refresh lead window. Scheduled by the job runner.
type PlanRefreshesMessage struct{}

func (PlanRefreshesMessage) Type() string { return TypePlanRefreshes }

type CreateBookingMessage struct {
	Input core.CreateBookingInput
}

func (CreateBookingMessage) Type() string { return TypeCreateBooking }

func (m CreateBookingMessage) Validate() error {
	if strings.TrimSpace(m.Input.MentorID) == "" {
		return commandValidationError("mentor_id", "mentor id is required")
	}
	if strings.TrimSpace(m.Input.ServiceID) == "" {
		return commandValidationError("service_id", "service id is required")
	}
	if err := m.Input.Client.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid booking client")
	}
	return nil
}

type ApplySchedulingEventMessage struct {
	ProviderID string
	Event      reconcile.Event
}

func (ApplySchedulingEventMessage) Type() string { return TypeApplySchedulingEvent }

func (m ApplySchedulingEventMessage) Validate() error {
	return validateEventMessage(m.ProviderID, m.Event)
}

type ApplyPaymentEventMessage struct {
	ProviderID string
	Event      reconcile.Event
}

func (ApplyPaymentEventMessage) Type() string { return TypeApplyPaymentEvent }

func (m ApplyPaymentEventMessage) Validate() error {
	return validateEventMessage(m.ProviderID, m.Event)
}

func validateEventMessage(providerID string, event reconcile.Event) error {
	if strings.TrimSpace(providerID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if event == nil {
		return commandValidationError("event", "event is required")
	}
	if err := event.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid event")
	}
	return nil
}
