package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidBookingStatus           = errors.New("core: invalid booking status")
	ErrInvalidBookingStatusTransition = errors.New("core: invalid booking status transition")
	ErrInvalidClientIdentity          = errors.New("core: invalid client identity")
	ErrBookingNotFound                = errors.New("core: booking not found")
	ErrCredentialNotFound             = errors.New("core: credential not found")
)

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusFailed         BookingStatus = "failed"
	BookingStatusRefunded       BookingStatus = "refunded"
)

// ParseBookingStatus normalizes a raw status string into the closed status set.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case BookingStatusPendingPayment, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusFailed, BookingStatusRefunded:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// IsTerminal reports whether no further transitions leave the status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusFailed, BookingStatusRefunded, BookingStatusCancelled:
		return true
	}
	return false
}

// ClientIdentity carries the purchasing party: either a marketplace user id
// or a guest name/email pair, never both empty.
type ClientIdentity struct {
	UserID     string
	GuestName  string
	GuestEmail string
}

func (c ClientIdentity) Validate() error {
	if strings.TrimSpace(c.UserID) != "" {
		return nil
	}
	if strings.TrimSpace(c.GuestName) == "" || strings.TrimSpace(c.GuestEmail) == "" {
		return fmt.Errorf("%w: user id or guest name and email required", ErrInvalidClientIdentity)
	}
	return nil
}

// Email returns the best contact address known for the client.
func (c ClientIdentity) Email() string {
	return strings.TrimSpace(strings.ToLower(c.GuestEmail))
}

type Booking struct {
	ID          string
	MentorID    string
	ServiceID   string
	Client      ClientIdentity
	SessionDate string
	SessionTime string
	Status      BookingStatus
	// BookingRef is the opaque correlation token minted at checkout and
	// threaded through both providers' payloads.
	BookingRef         string
	PaymentRef         string
	SchedulingEventRef string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TransitionTo moves the booking through the status graph. Re-entering the
// current status refreshes UpdatedAt and succeeds, keeping replays harmless.
func (b *Booking) TransitionTo(status BookingStatus, now time.Time) error {
	if b == nil {
		return nil
	}
	if b.Status == status {
		b.UpdatedAt = now
		return nil
	}
	if !bookingTransitionAllowed(b.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidBookingStatusTransition, b.Status, status)
	}
	b.Status = status
	b.UpdatedAt = now
	return nil
}

func bookingTransitionAllowed(current, next BookingStatus) bool {
	allowed := map[BookingStatus]map[BookingStatus]struct{}{
		BookingStatusPendingPayment: {
			BookingStatusConfirmed: {},
			BookingStatusFailed:    {},
		},
		BookingStatusConfirmed: {
			BookingStatusCancelled: {},
			BookingStatusRefunded:  {},
		},
		BookingStatusCancelled: {},
		BookingStatusFailed:    {},
		BookingStatusRefunded:  {},
	}
	_, ok := allowed[current][next]
	return ok
}

// MentorCredential is the stored external-calendar credential for one mentor.
// Token fields hold plaintext in memory; the store encrypts at rest when a
// secret provider is configured. Empty token fields mean disconnected.
type MentorCredential struct {
	ID              string
	MentorID        string
	AccessToken     string
	RefreshToken    string
	ProviderUserRef string
	ExpiresAt       *time.Time
	LastRefreshedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Connected reports whether the credential holds a usable token pair.
func (c MentorCredential) Connected() bool {
	return strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.RefreshToken) != ""
}

// TokenUpdate is the full replacement token set persisted after a refresh.
// All three fields are written together; there are no partial merges.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	RefreshedAt  time.Time
}

func (u TokenUpdate) Validate() error {
	if strings.TrimSpace(u.AccessToken) == "" {
		return fmt.Errorf("core: token update requires an access token")
	}
	if strings.TrimSpace(u.RefreshToken) == "" {
		return fmt.Errorf("core: token update requires a refresh token")
	}
	if u.ExpiresAt.IsZero() {
		return fmt.Errorf("core: token update requires an expiry")
	}
	return nil
}

// AvailabilitySlot is an ephemeral bookable start time. Slots are never
// persisted; they are fetched per request and discarded.
type AvailabilitySlot struct {
	Date      string
	StartTime string
	StartsAt  time.Time
}

// UnmatchedEvent records a verified webhook event that could not be
// correlated to a booking. Recorded, never silently dropped.
type UnmatchedEvent struct {
	ID          string
	ProviderID  string
	Kind        string
	ExternalRef string
	Reason      string
	Payload     map[string]any
	CreatedAt   time.Time
}
