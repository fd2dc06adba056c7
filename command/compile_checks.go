package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RefreshCredentialMessage]    = (*RefreshCredentialCommand)(nil)
	_ gocmd.Commander[DisconnectCredentialMessage] = (*DisconnectCredentialCommand)(nil)
	_ gocmd.Commander[PlanRefreshesMessage]        = (*PlanRefreshesCommand)(nil)
	_ gocmd.Commander[CreateBookingMessage]        = (*CreateBookingCommand)(nil)
	_ gocmd.Commander[ApplySchedulingEventMessage] = (*ApplySchedulingEventCommand)(nil)
	_ gocmd.Commander[ApplyPaymentEventMessage]    = (*ApplyPaymentEventCommand)(nil)
)
