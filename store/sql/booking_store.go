package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStore struct {
	db   *bun.DB
	repo repository.Repository[*bookingRecord]
}

func (s *BookingStore) Create(ctx context.Context, in core.CreateBookingInput) (core.Booking, error) {
	if s == nil || s.db == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	if strings.TrimSpace(in.MentorID) == "" || strings.TrimSpace(in.ServiceID) == "" {
		return core.Booking{}, fmt.Errorf("sqlstore: mentor id and service id are required")
	}
	if err := in.Client.Validate(); err != nil {
		return core.Booking{}, err
	}

	record := newBookingRecord(in, uuid.NewString(), time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Booking{}, fmt.Errorf("sqlstore: booking reference already exists: %w", err)
		}
		return core.Booking{}, err
	}
	return record.toDomain(), nil
}

func (s *BookingStore) Get(ctx context.Context, id string) (core.Booking, error) {
	return s.getBy(ctx, "id", id)
}

func (s *BookingStore) GetBySchedulingEventRef(ctx context.Context, ref string) (core.Booking, error) {
	return s.getBy(ctx, "scheduling_event_ref", ref)
}

func (s *BookingStore) GetByPaymentRef(ctx context.Context, ref string) (core.Booking, error) {
	return s.getBy(ctx, "payment_ref", ref)
}

func (s *BookingStore) GetByBookingRef(ctx context.Context, ref string) (core.Booking, error) {
	return s.getBy(ctx, "booking_ref", ref)
}

func (s *BookingStore) FindPending(ctx context.Context, lookup core.BookingLookup) ([]core.Booking, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: booking store is not configured")
	}
	status := lookup.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.BookingStatusPendingPayment
	}

	query := s.db.NewSelect().
		Model((*bookingRecord)(nil)).
		Where("?TableAlias.status = ?", string(status))
	if mentorID := strings.TrimSpace(lookup.MentorID); mentorID != "" {
		query = query.Where("?TableAlias.mentor_id = ?", mentorID)
	}
	if serviceID := strings.TrimSpace(lookup.ServiceID); serviceID != "" {
		query = query.Where("?TableAlias.service_id = ?", serviceID)
	}
	if email := strings.ToLower(strings.TrimSpace(lookup.ClientEmail)); email != "" {
		query = query.Where("?TableAlias.client_guest_email = ?", email)
	}

	records := []*bookingRecord{}
	if err := query.Order("created_at ASC").Scan(ctx, &records); err != nil {
		return nil, err
	}
	bookings := make([]core.Booking, 0, len(records))
	for _, record := range records {
		bookings = append(bookings, record.toDomain())
	}
	return bookings, nil
}

// TransitionStatus applies the status move as one guarded UPDATE. When the
// row is no longer in the expected status the statement matches nothing and
// the stored booking is returned with moved=false, which keeps concurrent
// webhook replays idempotent.
func (s *BookingStore) TransitionStatus(
	ctx context.Context,
	id string,
	from core.BookingStatus,
	to core.BookingStatus,
	refs core.BookingRefUpdate,
) (core.Booking, bool, error) {
	if s == nil || s.db == nil {
		return core.Booking{}, false, fmt.Errorf("sqlstore: booking store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Booking{}, false, fmt.Errorf("sqlstore: booking id is required")
	}

	update := s.db.NewUpdate().
		Model((*bookingRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", string(from))
	if paymentRef := strings.TrimSpace(refs.PaymentRef); paymentRef != "" {
		update = update.Set("payment_ref = ?", paymentRef)
	}
	if eventRef := strings.TrimSpace(refs.SchedulingEventRef); eventRef != "" {
		update = update.Set("scheduling_event_ref = ?", eventRef)
	}

	result, err := update.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Booking{}, false, fmt.Errorf("sqlstore: provider reference already attached to another booking: %w", err)
		}
		return core.Booking{}, false, err
	}
	moved := false
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected > 0 {
		moved = true
	}

	booking, err := s.Get(ctx, id)
	if err != nil {
		return core.Booking{}, false, err
	}
	return booking, moved, nil
}

func (s *BookingStore) getBy(ctx context.Context, column string, value string) (core.Booking, error) {
	if s == nil || s.db == nil {
		return core.Booking{}, fmt.Errorf("sqlstore: booking store is not configured")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return core.Booking{}, fmt.Errorf("sqlstore: %s is required", column)
	}

	record := &bookingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Booking{}, fmt.Errorf("sqlstore: %s %q: %w", column, value, core.ErrBookingNotFound)
		}
		return core.Booking{}, err
	}
	return record.toDomain(), nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
