package bookings

import (
	"fmt"

	bookingscommand "github.com/goliatone/go-bookings/command"
	"github.com/goliatone/go-bookings/core"
	bookingsquery "github.com/goliatone/go-bookings/query"
	"github.com/goliatone/go-bookings/reconcile"
)

// CommandQueryService is the slice of the credential lifecycle service the
// facade wires its handlers around. *core.Service satisfies it.
type CommandQueryService interface {
	bookingscommand.CredentialService
	Config() core.Config
	Dependencies() core.ServiceDependencies
}

type Commands struct {
	RefreshCredential    *bookingscommand.RefreshCredentialCommand
	DisconnectCredential *bookingscommand.DisconnectCredentialCommand
	PlanRefreshes        *bookingscommand.PlanRefreshesCommand
	CreateBooking        *bookingscommand.CreateBookingCommand
	ApplySchedulingEvent *bookingscommand.ApplySchedulingEventCommand
	ApplyPaymentEvent    *bookingscommand.ApplyPaymentEventCommand
}

type Queries struct {
	GetBooking          *bookingsquery.GetBookingQuery
	FindPendingBookings *bookingsquery.FindPendingBookingsQuery
	GetCredentialState  *bookingsquery.GetCredentialStateQuery
	ListAvailability    *bookingsquery.ListAvailabilityQuery
	ListUnmatchedEvents *bookingsquery.ListUnmatchedEventsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	availabilityReader bookingsquery.AvailabilityReader
	eventApplier       bookingscommand.EventApplier
}

// WithAvailabilityReader supplies the provider availability client backing the
// ListAvailability query. Without it the query reports a dependency error.
func WithAvailabilityReader(reader bookingsquery.AvailabilityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.availabilityReader = reader
	}
}

// WithEventApplier overrides the reconciler the event commands delegate to.
// When absent the facade builds one from the service's booking and unmatched
// event stores.
func WithEventApplier(applier bookingscommand.EventApplier) FacadeOption {
	return func(options *facadeOptions) {
		options.eventApplier = applier
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("bookings: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	deps := service.Dependencies()

	applier := cfg.eventApplier
	if applier == nil {
		resolved, err := resolveEventApplier(deps)
		if err != nil {
			return nil, err
		}
		applier = resolved
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RefreshCredential:    bookingscommand.NewRefreshCredentialCommand(service),
		DisconnectCredential: bookingscommand.NewDisconnectCredentialCommand(service),
		PlanRefreshes:        bookingscommand.NewPlanRefreshesCommand(service),
		CreateBooking:        bookingscommand.NewCreateBookingCommand(deps.BookingStore),
		ApplySchedulingEvent: bookingscommand.NewApplySchedulingEventCommand(applier),
		ApplyPaymentEvent:    bookingscommand.NewApplyPaymentEventCommand(applier),
	}
	facade.queries = Queries{
		GetBooking:          bookingsquery.NewGetBookingQuery(deps.BookingStore),
		FindPendingBookings: bookingsquery.NewFindPendingBookingsQuery(deps.BookingStore),
		GetCredentialState: bookingsquery.NewGetCredentialStateQuery(deps.CredentialStore,
			bookingsquery.WithRefreshLeadWindow(service.Config().Refresh.LeadWindow)),
		ListAvailability:    bookingsquery.NewListAvailabilityQuery(cfg.availabilityReader),
		ListUnmatchedEvents: bookingsquery.NewListUnmatchedEventsQuery(deps.UnmatchedEventStore),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveEventApplier builds the reconciler the event commands share. A
// service composed without booking stores still gets a working facade; the
// event commands report a dependency error if they are ever executed.
func resolveEventApplier(deps core.ServiceDependencies) (bookingscommand.EventApplier, error) {
	if deps.BookingStore == nil || deps.UnmatchedEventStore == nil {
		return nil, nil
	}
	options := []reconcile.Option{}
	if deps.Logger != nil {
		options = append(options, reconcile.WithLogger(deps.Logger))
	}
	if deps.MetricsRecorder != nil {
		options = append(options, reconcile.WithMetricsRecorder(deps.MetricsRecorder))
	}
	reconciler, err := reconcile.New(deps.BookingStore, deps.UnmatchedEventStore, options...)
	if err != nil {
		return nil, fmt.Errorf("bookings: build reconciler: %w", err)
	}
	return reconciler, nil
}
