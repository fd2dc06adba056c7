package core

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorConstructorsCarryTextCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      *goerrors.Error
		textCode string
		code     int
	}{
		{name: "not_connected", err: NewNotConnectedError("m1"), textCode: BookingErrorNotConnected, code: http.StatusUnauthorized},
		{name: "refresh_failed", err: NewRefreshFailedError("m1", "invalid_grant"), textCode: BookingErrorRefreshFailed, code: http.StatusUnauthorized},
		{name: "provider_unavailable", err: NewProviderUnavailableError("connect timeout"), textCode: BookingErrorProviderUnavailable, code: http.StatusBadGateway},
		{name: "authentication_failed", err: NewAuthenticationFailedError("m1"), textCode: BookingErrorAuthenticationFailed, code: http.StatusUnauthorized},
		{name: "provider_error", err: NewProviderError(500, "oops"), textCode: BookingErrorProvider, code: http.StatusBadGateway},
		{name: "verification_failed", err: NewVerificationFailedError("payments"), textCode: BookingErrorVerificationFailed, code: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, tc.err.TextCode)
			}
			if tc.err.Code != tc.code {
				t.Fatalf("expected http code %d, got %d", tc.code, tc.err.Code)
			}
		})
	}
}

func TestNeedsReconnectPredicate(t *testing.T) {
	if !NeedsReconnect(NewNotConnectedError("m1")) {
		t.Fatalf("not connected should require reconnect")
	}
	if !NeedsReconnect(NewAuthenticationFailedError("m1")) {
		t.Fatalf("authentication failure should require reconnect")
	}
	if NeedsReconnect(NewProviderUnavailableError("down")) {
		t.Fatalf("provider outage must not require reconnect")
	}
	if NeedsReconnect(fmt.Errorf("plain error")) {
		t.Fatalf("plain errors must not require reconnect")
	}
}

func TestProviderErrorTruncatesBody(t *testing.T) {
	body := strings.Repeat("x", maxProviderBodyExcerpt*2)
	err := NewProviderError(503, body)
	excerpt, _ := err.Metadata["body"].(string)
	if len(excerpt) != maxProviderBodyExcerpt {
		t.Fatalf("expected %d byte excerpt, got %d", maxProviderBodyExcerpt, len(excerpt))
	}
}

func TestBookingErrorMapperClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		name     string
		input    error
		category goerrors.Category
		textCode string
	}{
		{name: "not_connected", input: fmt.Errorf("mentor is not connected"), category: goerrors.CategoryAuth, textCode: BookingErrorNotConnected},
		{name: "not_found", input: fmt.Errorf("booking not found"), category: goerrors.CategoryNotFound, textCode: BookingErrorNotFound},
		{name: "lock_held", input: fmt.Errorf("refresh lock already held"), category: goerrors.CategoryConflict, textCode: BookingErrorRefreshLocked},
		{name: "signature", input: fmt.Errorf("signature mismatch detected"), category: goerrors.CategoryAuth, textCode: BookingErrorVerificationFailed},
		{name: "bad_input", input: fmt.Errorf("mentor id is required"), category: goerrors.CategoryBadInput, textCode: BookingErrorBadInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := bookingErrorMapper(tc.input)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %v, got %v", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
		})
	}
}

func TestBookingErrorMapperPreservesRichErrors(t *testing.T) {
	original := NewProviderUnavailableError("down")
	mapped := bookingErrorMapper(original)
	if mapped != original {
		t.Fatalf("expected rich error passthrough")
	}
}
