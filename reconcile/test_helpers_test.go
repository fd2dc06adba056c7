package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

type memoryBookingStore struct {
	bookings map[string]core.Booking
	seq      int
	now      func() time.Time
}

func newMemoryBookingStore() *memoryBookingStore {
	return &memoryBookingStore{
		bookings: map[string]core.Booking{},
		now:      func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) },
	}
}

var _ core.BookingStore = (*memoryBookingStore)(nil)

func (s *memoryBookingStore) Create(_ context.Context, in core.CreateBookingInput) (core.Booking, error) {
	s.seq++
	booking := core.Booking{
		ID:          fmt.Sprintf("bk-%d", s.seq),
		MentorID:    in.MentorID,
		ServiceID:   in.ServiceID,
		Client:      in.Client,
		SessionDate: in.SessionDate,
		SessionTime: in.SessionTime,
		Status:      core.BookingStatusPendingPayment,
		BookingRef:  in.BookingRef,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	s.bookings[booking.ID] = booking
	return booking, nil
}

func (s *memoryBookingStore) Get(_ context.Context, id string) (core.Booking, error) {
	booking, ok := s.bookings[id]
	if !ok {
		return core.Booking{}, core.ErrBookingNotFound
	}
	return booking, nil
}

func (s *memoryBookingStore) findBy(match func(core.Booking) bool) (core.Booking, error) {
	for _, booking := range s.bookings {
		if match(booking) {
			return booking, nil
		}
	}
	return core.Booking{}, core.ErrBookingNotFound
}

func (s *memoryBookingStore) GetBySchedulingEventRef(_ context.Context, ref string) (core.Booking, error) {
	return s.findBy(func(b core.Booking) bool { return b.SchedulingEventRef == ref && ref != "" })
}

func (s *memoryBookingStore) GetByPaymentRef(_ context.Context, ref string) (core.Booking, error) {
	return s.findBy(func(b core.Booking) bool { return b.PaymentRef == ref && ref != "" })
}

func (s *memoryBookingStore) GetByBookingRef(_ context.Context, ref string) (core.Booking, error) {
	return s.findBy(func(b core.Booking) bool { return b.BookingRef == ref && ref != "" })
}

func (s *memoryBookingStore) FindPending(_ context.Context, lookup core.BookingLookup) ([]core.Booking, error) {
	var matches []core.Booking
	for _, booking := range s.bookings {
		if booking.Status != lookup.Status {
			continue
		}
		if lookup.MentorID != "" && !strings.EqualFold(lookup.MentorID, booking.MentorID) {
			continue
		}
		if lookup.ServiceID != "" && !strings.EqualFold(lookup.ServiceID, booking.ServiceID) {
			continue
		}
		if lookup.ClientEmail != "" && lookup.ClientEmail != booking.Client.Email() {
			continue
		}
		matches = append(matches, booking)
	}
	return matches, nil
}

func (s *memoryBookingStore) TransitionStatus(_ context.Context, id string, from, to core.BookingStatus, refs core.BookingRefUpdate) (core.Booking, bool, error) {
	booking, ok := s.bookings[id]
	if !ok {
		return core.Booking{}, false, core.ErrBookingNotFound
	}
	if booking.Status != from {
		return booking, false, nil
	}
	if err := booking.TransitionTo(to, s.now()); err != nil {
		return booking, false, err
	}
	if ref := strings.TrimSpace(refs.PaymentRef); ref != "" {
		booking.PaymentRef = ref
	}
	if ref := strings.TrimSpace(refs.SchedulingEventRef); ref != "" {
		booking.SchedulingEventRef = ref
	}
	s.bookings[id] = booking
	return booking, true, nil
}

type memoryUnmatchedStore struct {
	records []core.UnmatchedEvent
}

var _ core.UnmatchedEventStore = (*memoryUnmatchedStore)(nil)

func (s *memoryUnmatchedStore) Record(_ context.Context, event core.UnmatchedEvent) (core.UnmatchedEvent, error) {
	event.ID = fmt.Sprintf("ue-%d", len(s.records)+1)
	s.records = append(s.records, event)
	return event, nil
}

func (s *memoryUnmatchedStore) List(_ context.Context, providerID string, limit int) ([]core.UnmatchedEvent, error) {
	var out []core.UnmatchedEvent
	for _, record := range s.records {
		if providerID != "" && record.ProviderID != providerID {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
