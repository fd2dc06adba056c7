package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-bookings/core"
)

func TestGetBookingMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetBookingMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.BookingErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.BookingErrorBadInput, rich.TextCode)
	}
}

func TestListAvailabilityMessage_RejectsBadDate(t *testing.T) {
	msg := ListAvailabilityMessage{MentorID: "mentor-1", EventTypeRef: "intro-call", Date: "03/10/2026"}
	if err := msg.Validate(); err == nil {
		t.Fatalf("expected date format validation error")
	}
	msg.Date = "2026-03-10"
	if err := msg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestGetBookingQuery_NilReaderReturnsRichError(t *testing.T) {
	var qry *GetBookingQuery
	_, err := qry.Query(context.Background(), GetBookingMessage{BookingID: "bk-1"})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
