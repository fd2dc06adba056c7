// Package query exposes the read side of the bookings core as
// go-command query messages.
package query

import (
	"strings"
	"time"
)

const (
	TypeGetBooking          = "bookings.query.booking.get"
	TypeFindPendingBookings = "bookings.query.booking.find_pending"
	TypeGetCredentialState  = "bookings.query.credential.state"
	TypeListAvailability    = "bookings.query.availability.list"
	TypeListUnmatchedEvents = "bookings.query.unmatched.list"
)

type GetBookingMessage struct {
	BookingID string
	// BookingRef looks up by the opaque checkout correlation token
	// when no internal id is at hand. One of the two is required.
	BookingRef string
}

func (GetBookingMessage) Type() string { return TypeGetBooking }

func (m GetBookingMessage) Validate() error {
	if strings.TrimSpace(m.BookingID) == "" && strings.TrimSpace(m.BookingRef) == "" {
		return queryValidationError("booking_id", "booking id or booking ref is required")
	}
	return nil
}

type FindPendingBookingsMessage struct {
	MentorID    string
	ServiceID   string
	ClientEmail string
}

func (FindPendingBookingsMessage) Type() string { return TypeFindPendingBookings }

func (m FindPendingBookingsMessage) Validate() error {
	if strings.TrimSpace(m.MentorID) == "" && strings.TrimSpace(m.ClientEmail) == "" {
		return queryValidationError("mentor_id", "mentor id or client email is required")
	}
	return nil
}

type GetCredentialStateMessage struct {
	MentorID string
}

func (GetCredentialStateMessage) Type() string { return TypeGetCredentialState }

func (m GetCredentialStateMessage) Validate() error {
	if strings.TrimSpace(m.MentorID) == "" {
		return queryValidationError("mentor_id", "mentor id is required")
	}
	return nil
}

type ListAvailabilityMessage struct {
	MentorID     string
	EventTypeRef string
	// Date is the mentor-local calendar day, formatted 2006-01-02.
	Date string
}

func (ListAvailabilityMessage) Type() string { return TypeListAvailability }

func (m ListAvailabilityMessage) Validate() error {
	if strings.TrimSpace(m.MentorID) == "" {
		return queryValidationError("mentor_id", "mentor id is required")
	}
	if strings.TrimSpace(m.EventTypeRef) == "" {
		return queryValidationError("event_type_ref", "event type ref is required")
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(m.Date)); err != nil {
		return queryValidationError("date", "date must be formatted 2006-01-02")
	}
	return nil
}

type ListUnmatchedEventsMessage struct {
	ProviderID string
	Limit      int
}

func (ListUnmatchedEventsMessage) Type() string { return TypeListUnmatchedEvents }

func (m ListUnmatchedEventsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
