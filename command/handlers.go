package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/reconcile"
)

// CredentialService is the slice of the token lifecycle service the
// commands depend on. *core.Service satisfies it.
type CredentialService interface {
	Refresh(ctx context.Context, mentorID string) (core.MentorCredential, error)
	ForceRefresh(ctx context.Context, mentorID string) (string, error)
	Disconnect(ctx context.Context, mentorID string) error
	PlanRefreshes(ctx context.Context) (int, error)
}

// BookingCreator is satisfied by core.BookingStore.
type BookingCreator interface {
	Create(ctx context.Context, in core.CreateBookingInput) (core.Booking, error)
}

// EventApplier is satisfied by *reconcile.Reconciler.
type EventApplier interface {
	Apply(ctx context.Context, providerID string, event reconcile.Event) (reconcile.Result, error)
}

type RefreshCredentialCommand struct {
	service CredentialService
}

func NewRefreshCredentialCommand(service CredentialService) *RefreshCredentialCommand {
	return &RefreshCredentialCommand{service: service}
}

func (c *RefreshCredentialCommand) Execute(ctx context.Context, msg RefreshCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	if msg.Force {
		token, err := c.service.ForceRefresh(ctx, msg.MentorID)
		if err != nil {
			return err
		}
		storeResult(ctx, token)
		return nil
	}
	credential, err := c.service.Refresh(ctx, msg.MentorID)
	if err != nil {
		return err
	}
	storeResult(ctx, credential)
	return nil
}

type DisconnectCredentialCommand struct {
	service CredentialService
}

func NewDisconnectCredentialCommand(service CredentialService) *DisconnectCredentialCommand {
	return &DisconnectCredentialCommand{service: service}
}

func (c *DisconnectCredentialCommand) Execute(ctx context.Context, msg DisconnectCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.Disconnect(ctx, msg.MentorID)
}

type PlanRefreshesCommand struct {
	service CredentialService
}

func NewPlanRefreshesCommand(service CredentialService) *PlanRefreshesCommand {
	return &PlanRefreshesCommand{service: service}
}

func (c *PlanRefreshesCommand) Execute(ctx context.Context, msg PlanRefreshesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	planned, err := c.service.PlanRefreshes(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, planned)
	return nil
}

type CreateBookingCommand struct {
	bookings BookingCreator
}

func NewCreateBookingCommand(bookings BookingCreator) *CreateBookingCommand {
	return &CreateBookingCommand{bookings: bookings}
}

func (c *CreateBookingCommand) Execute(ctx context.Context, msg CreateBookingMessage) error {
	if c == nil || c.bookings == nil {
		return commandDependencyError("command: booking store is required")
	}
	booking, err := c.bookings.Create(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, booking)
	return nil
}

type ApplySchedulingEventCommand struct {
	reconciler EventApplier
}

func NewApplySchedulingEventCommand(reconciler EventApplier) *ApplySchedulingEventCommand {
	return &ApplySchedulingEventCommand{reconciler: reconciler}
}

func (c *ApplySchedulingEventCommand) Execute(ctx context.Context, msg ApplySchedulingEventMessage) error {
	if c == nil || c.reconciler == nil {
		return commandDependencyError("command: reconciler is required")
	}
	result, err := c.reconciler.Apply(ctx, msg.ProviderID, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

type ApplyPaymentEventCommand struct {
	reconciler EventApplier
}

func NewApplyPaymentEventCommand(reconciler EventApplier) *ApplyPaymentEventCommand {
	return &ApplyPaymentEventCommand{reconciler: reconciler}
}

func (c *ApplyPaymentEventCommand) Execute(ctx context.Context, msg ApplyPaymentEventMessage) error {
	if c == nil || c.reconciler == nil {
		return commandDependencyError("command: reconciler is required")
	}
	result, err := c.reconciler.Apply(ctx, msg.ProviderID, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
