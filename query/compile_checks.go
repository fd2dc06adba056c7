package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-bookings/core"
)

var (
	_ gocmd.Querier[GetBookingMessage, core.Booking]                   = (*GetBookingQuery)(nil)
	_ gocmd.Querier[FindPendingBookingsMessage, []core.Booking]        = (*FindPendingBookingsQuery)(nil)
	_ gocmd.Querier[GetCredentialStateMessage, CredentialState]        = (*GetCredentialStateQuery)(nil)
	_ gocmd.Querier[ListAvailabilityMessage, []core.AvailabilitySlot]  = (*ListAvailabilityQuery)(nil)
	_ gocmd.Querier[ListUnmatchedEventsMessage, []core.UnmatchedEvent] = (*ListUnmatchedEventsQuery)(nil)
)
