package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

// BookingReader is satisfied by core.BookingStore.
type BookingReader interface {
	Get(ctx context.Context, id string) (core.Booking, error)
	GetByBookingRef(ctx context.Context, ref string) (core.Booking, error)
	FindPending(ctx context.Context, lookup core.BookingLookup) ([]core.Booking, error)
}

// CredentialReader is satisfied by core.CredentialStore.
type CredentialReader interface {
	GetByMentor(ctx context.Context, mentorID string) (core.MentorCredential, error)
}

// AvailabilityReader is satisfied by *scheduling.Client.
type AvailabilityReader interface {
	FetchAvailableSlots(ctx context.Context, mentorID, eventTypeRef, date string) ([]core.AvailabilitySlot, error)
}

// UnmatchedEventReader is satisfied by core.UnmatchedEventStore.
type UnmatchedEventReader interface {
	List(ctx context.Context, providerID string, limit int) ([]core.UnmatchedEvent, error)
}

type GetBookingQuery struct {
	reader BookingReader
}

func NewGetBookingQuery(reader BookingReader) *GetBookingQuery {
	return &GetBookingQuery{reader: reader}
}

func (q *GetBookingQuery) Query(ctx context.Context, msg GetBookingMessage) (core.Booking, error) {
	if q == nil || q.reader == nil {
		return core.Booking{}, queryDependencyError("query: booking reader is required")
	}
	if strings.TrimSpace(msg.BookingID) != "" {
		return q.reader.Get(ctx, msg.BookingID)
	}
	return q.reader.GetByBookingRef(ctx, msg.BookingRef)
}

type FindPendingBookingsQuery struct {
	reader BookingReader
}

func NewFindPendingBookingsQuery(reader BookingReader) *FindPendingBookingsQuery {
	return &FindPendingBookingsQuery{reader: reader}
}

func (q *FindPendingBookingsQuery) Query(ctx context.Context, msg FindPendingBookingsMessage) ([]core.Booking, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: booking reader is required")
	}
	return q.reader.FindPending(ctx, core.BookingLookup{
		MentorID:    msg.MentorID,
		ServiceID:   msg.ServiceID,
		ClientEmail: msg.ClientEmail,
		Status:      core.BookingStatusPendingPayment,
	})
}

// CredentialState is the connection summary surfaced to operators and
// the mentor dashboard. Token values never leave the core.
type CredentialState struct {
	MentorID       string
	Connected      bool
	NeedsReconnect bool
	Token          core.TokenState
}

type GetCredentialStateQuery struct {
	reader     CredentialReader
	leadWindow time.Duration
	now        func() time.Time
}

type CredentialStateOption func(*GetCredentialStateQuery)

func WithRefreshLeadWindow(window time.Duration) CredentialStateOption {
	return func(q *GetCredentialStateQuery) {
		if window > 0 {
			q.leadWindow = window
		}
	}
}

func WithClock(now func() time.Time) CredentialStateOption {
	return func(q *GetCredentialStateQuery) {
		if now != nil {
			q.now = now
		}
	}
}

func NewGetCredentialStateQuery(reader CredentialReader, opts ...CredentialStateOption) *GetCredentialStateQuery {
	query := &GetCredentialStateQuery{
		reader:     reader,
		leadWindow: core.DefaultRefreshLeadWindow,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(query)
	}
	return query
}

func (q *GetCredentialStateQuery) Query(ctx context.Context, msg GetCredentialStateMessage) (CredentialState, error) {
	if q == nil || q.reader == nil {
		return CredentialState{}, queryDependencyError("query: credential reader is required")
	}
	credential, err := q.reader.GetByMentor(ctx, msg.MentorID)
	if err != nil {
		if errors.Is(err, core.ErrCredentialNotFound) {
			return CredentialState{MentorID: msg.MentorID}, nil
		}
		return CredentialState{}, err
	}
	token := core.ResolveTokenState(q.now(), credential, q.leadWindow)
	return CredentialState{
		MentorID:       msg.MentorID,
		Connected:      credential.Connected(),
		NeedsReconnect: token.IsExpired && !token.HasRefreshToken,
		Token:          token,
	}, nil
}

type ListAvailabilityQuery struct {
	reader AvailabilityReader
}

func NewListAvailabilityQuery(reader AvailabilityReader) *ListAvailabilityQuery {
	return &ListAvailabilityQuery{reader: reader}
}

func (q *ListAvailabilityQuery) Query(ctx context.Context, msg ListAvailabilityMessage) ([]core.AvailabilitySlot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: availability reader is required")
	}
	return q.reader.FetchAvailableSlots(ctx, msg.MentorID, msg.EventTypeRef, msg.Date)
}

type ListUnmatchedEventsQuery struct {
	reader UnmatchedEventReader
}

func NewListUnmatchedEventsQuery(reader UnmatchedEventReader) *ListUnmatchedEventsQuery {
	return &ListUnmatchedEventsQuery{reader: reader}
}

func (q *ListUnmatchedEventsQuery) Query(ctx context.Context, msg ListUnmatchedEventsMessage) ([]core.UnmatchedEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: unmatched event reader is required")
	}
	return q.reader.List(ctx, msg.ProviderID, msg.Limit)
}
