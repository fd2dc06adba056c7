package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

func newBookingRecord(in core.CreateBookingInput, id string, now time.Time) *bookingRecord {
	record := &bookingRecord{
		ID:               id,
		MentorID:         strings.TrimSpace(in.MentorID),
		ServiceID:        strings.TrimSpace(in.ServiceID),
		ClientUserID:     strings.TrimSpace(in.Client.UserID),
		ClientGuestName:  strings.TrimSpace(in.Client.GuestName),
		ClientGuestEmail: strings.ToLower(strings.TrimSpace(in.Client.GuestEmail)),
		SessionDate:      strings.TrimSpace(in.SessionDate),
		SessionTime:      strings.TrimSpace(in.SessionTime),
		Status:           string(core.BookingStatusPendingPayment),
		BookingRef:       optionalRef(in.BookingRef),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return record
}

func (r *bookingRecord) toDomain() core.Booking {
	if r == nil {
		return core.Booking{}
	}
	booking := core.Booking{
		ID:        r.ID,
		MentorID:  r.MentorID,
		ServiceID: r.ServiceID,
		Client: core.ClientIdentity{
			UserID:     r.ClientUserID,
			GuestName:  r.ClientGuestName,
			GuestEmail: r.ClientGuestEmail,
		},
		SessionDate: r.SessionDate,
		SessionTime: r.SessionTime,
		Status:      core.BookingStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.BookingRef != nil {
		booking.BookingRef = *r.BookingRef
	}
	if r.PaymentRef != nil {
		booking.PaymentRef = *r.PaymentRef
	}
	if r.SchedulingEventRef != nil {
		booking.SchedulingEventRef = *r.SchedulingEventRef
	}
	return booking
}

func (r *mentorCredentialRecord) toDomain(tokens core.MentorCredential) core.MentorCredential {
	if r == nil {
		return core.MentorCredential{}
	}
	credential := core.MentorCredential{
		ID:              r.ID,
		MentorID:        r.MentorID,
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		ProviderUserRef: tokens.ProviderUserRef,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		expiresAt := r.ExpiresAt.UTC()
		credential.ExpiresAt = &expiresAt
	}
	if r.LastRefreshedAt != nil {
		refreshedAt := r.LastRefreshedAt.UTC()
		credential.LastRefreshedAt = &refreshedAt
	}
	return credential
}

func newUnmatchedEventRecord(event core.UnmatchedEvent, id string, now time.Time) *unmatchedEventRecord {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &unmatchedEventRecord{
		ID:          id,
		ProviderID:  strings.TrimSpace(event.ProviderID),
		Kind:        strings.TrimSpace(event.Kind),
		ExternalRef: strings.TrimSpace(event.ExternalRef),
		Reason:      strings.TrimSpace(event.Reason),
		Payload:     copyAnyMap(event.Payload),
		CreatedAt:   createdAt.UTC(),
	}
}

func (r *unmatchedEventRecord) toDomain() core.UnmatchedEvent {
	if r == nil {
		return core.UnmatchedEvent{}
	}
	return core.UnmatchedEvent{
		ID:          r.ID,
		ProviderID:  r.ProviderID,
		Kind:        r.Kind,
		ExternalRef: r.ExternalRef,
		Reason:      r.Reason,
		Payload:     copyAnyMap(r.Payload),
		CreatedAt:   r.CreatedAt,
	}
}

func optionalRef(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
