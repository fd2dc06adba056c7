package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BookingErrorBadInput             = "BOOKINGS_BAD_INPUT"
	BookingErrorNotConnected         = "BOOKINGS_NOT_CONNECTED"
	BookingErrorRefreshFailed        = "BOOKINGS_REFRESH_FAILED"
	BookingErrorProviderUnavailable  = "BOOKINGS_PROVIDER_UNAVAILABLE"
	BookingErrorAuthenticationFailed = "BOOKINGS_AUTHENTICATION_FAILED"
	BookingErrorProvider             = "BOOKINGS_PROVIDER_ERROR"
	BookingErrorVerificationFailed   = "BOOKINGS_VERIFICATION_FAILED"
	BookingErrorUnmatchedEvent       = "BOOKINGS_UNMATCHED_EVENT"
	BookingErrorRefreshLocked        = "BOOKINGS_REFRESH_LOCKED"
	BookingErrorNotFound             = "BOOKINGS_NOT_FOUND"
	BookingErrorInternal             = "BOOKINGS_INTERNAL_ERROR"
)

// maxProviderBodyExcerpt bounds how much provider response body travels in
// error metadata. Tokens and auth headers never enter error values at all.
const maxProviderBodyExcerpt = 512

// NewNotConnectedError signals that a mentor has no usable stored credential.
func NewNotConnectedError(mentorID string) *goerrors.Error {
	return newBookingError("core: mentor has no connected calendar account", goerrors.CategoryAuth, BookingErrorNotConnected).
		WithMetadata(map[string]any{
			"mentor_id":       strings.TrimSpace(mentorID),
			"needs_reconnect": true,
		})
}

// NewRefreshFailedError signals that the provider rejected the refresh grant.
func NewRefreshFailedError(mentorID, detail string) *goerrors.Error {
	return newBookingError("core: credential refresh was rejected by the provider", goerrors.CategoryAuth, BookingErrorRefreshFailed).
		WithMetadata(map[string]any{
			"mentor_id":       strings.TrimSpace(mentorID),
			"detail":          truncateExcerpt(detail),
			"needs_reconnect": true,
		})
}

// NewProviderUnavailableError signals a transport failure or provider 5xx.
// Retryable; the stored credential is untouched.
func NewProviderUnavailableError(detail string) *goerrors.Error {
	return newBookingError("core: scheduling provider is unavailable", goerrors.CategoryOperation, BookingErrorProviderUnavailable).
		WithCode(http.StatusBadGateway).
		WithMetadata(map[string]any{
			"detail":    truncateExcerpt(detail),
			"retryable": true,
		})
}

// NewAuthenticationFailedError signals the provider rejected a token even
// after a forced refresh. The mentor must reconnect.
func NewAuthenticationFailedError(mentorID string) *goerrors.Error {
	return newBookingError("core: provider rejected credentials after refresh", goerrors.CategoryAuth, BookingErrorAuthenticationFailed).
		WithMetadata(map[string]any{
			"mentor_id":       strings.TrimSpace(mentorID),
			"needs_reconnect": true,
		})
}

// NewProviderError wraps a non-auth provider failure with status and a bounded
// body excerpt for diagnostics.
func NewProviderError(status int, body string) *goerrors.Error {
	return newBookingError("core: scheduling provider returned an error", goerrors.CategoryOperation, BookingErrorProvider).
		WithCode(http.StatusBadGateway).
		WithMetadata(map[string]any{
			"provider_status": status,
			"body":            truncateExcerpt(body),
		})
}

// NewVerificationFailedError covers webhook signature rejections. Always an
// auth failure, never a default-allow.
func NewVerificationFailedError(surface string) *goerrors.Error {
	return newBookingError("core: webhook signature verification failed", goerrors.CategoryAuth, BookingErrorVerificationFailed).
		WithMetadata(map[string]any{"surface": strings.TrimSpace(surface)})
}

// IsNotConnected reports whether err means the mentor must (re)connect first.
func IsNotConnected(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == BookingErrorNotConnected
}

// NeedsReconnect reports whether the error requires the mentor to redo the
// OAuth connect flow rather than retry.
func NeedsReconnect(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	if v, ok := richErr.Metadata["needs_reconnect"].(bool); ok {
		return v
	}
	return false
}

// IsProviderUnavailable reports whether err is a retryable provider outage.
func IsProviderUnavailable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == BookingErrorProviderUnavailable
}

func truncateExcerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > maxProviderBodyExcerpt {
		return body[:maxProviderBodyExcerpt]
	}
	return body
}

func bookingErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBookingErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not connected"), strings.Contains(msg, "no connected"):
		return newBookingError(err.Error(), goerrors.CategoryAuth, BookingErrorNotConnected)
	case strings.Contains(msg, "not found"):
		return newBookingError(err.Error(), goerrors.CategoryNotFound, BookingErrorNotFound)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "refresh lock"):
		return newBookingError(err.Error(), goerrors.CategoryConflict, BookingErrorRefreshLocked)
	case strings.Contains(msg, "signature"), strings.Contains(msg, "verification failed"):
		return newBookingError(err.Error(), goerrors.CategoryAuth, BookingErrorVerificationFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newBookingError(err.Error(), goerrors.CategoryBadInput, BookingErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBookingErrorEnvelope(mapped)
}

func newBookingError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBookingErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBookingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bookingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBookingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBookingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BookingErrorBadInput
	case goerrors.CategoryNotFound:
		return BookingErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BookingErrorAuthenticationFailed
	case goerrors.CategoryConflict:
		return BookingErrorRefreshLocked
	case goerrors.CategoryOperation:
		return BookingErrorProvider
	default:
		return BookingErrorInternal
	}
}

func bookingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
