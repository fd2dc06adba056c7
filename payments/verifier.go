package payments

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/webhooks"
)

const (
	// DefaultSignatureHeader carries the signed envelope.
	DefaultSignatureHeader = "Pay-Signature"
	// DefaultTolerance bounds how stale a signed timestamp may be before the
	// delivery is treated as a replay.
	DefaultTolerance = 5 * time.Minute

	signatureSchemeV1 = "v1"
)

// SignedEventVerifier checks the payment provider's signed-event envelope:
// a header of the form "t=<unix>,v1=<hex>" where the hex value is the
// HMAC-SHA256 of "<t>.<raw body>" under the shared secret. Verification
// fails closed on any missing or malformed part.
type SignedEventVerifier struct {
	Header    string
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

var _ core.WebhookVerifier = SignedEventVerifier{}

func (v SignedEventVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	headerName := strings.TrimSpace(v.Header)
	if headerName == "" {
		headerName = DefaultSignatureHeader
	}
	header := strings.TrimSpace(webhooks.HeaderValue(req.Headers, headerName))
	if header == "" {
		return fmt.Errorf("payments: %s signature header is required", headerName)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("payments: signature secret is required")
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	issuedAt := time.Unix(timestamp, 0)
	age := now().Sub(issuedAt)
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return fmt.Errorf("payments: signature timestamp outside tolerance window")
	}

	signedPayload := strconv.FormatInt(timestamp, 10) + "." + string(req.Body)
	expected := webhooks.ComputeHMAC([]byte(secret), []byte(signedPayload))
	for _, signature := range signatures {
		if subtle.ConstantTimeCompare(signature, expected) == 1 {
			return nil
		}
	}
	return fmt.Errorf("payments: signature verification failed")
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]" into the
// timestamp and the candidate signatures. Providers send multiple v1 entries
// during secret rotation; any one match passes.
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var timestamp int64 = -1
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("payments: invalid signature timestamp: %w", err)
			}
			timestamp = parsed
		case signatureSchemeV1:
			decoded, err := hex.DecodeString(strings.TrimSpace(value))
			if err != nil {
				return 0, nil, fmt.Errorf("payments: invalid signature encoding: %w", err)
			}
			signatures = append(signatures, decoded)
		}
	}
	if timestamp < 0 {
		return 0, nil, fmt.Errorf("payments: signature timestamp is required")
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("payments: no v1 signature present")
	}
	return timestamp, signatures, nil
}

// SignPayload produces the envelope header value for a body at a given
// time. Intended for outbound test fixtures and local tooling.
func SignPayload(secret string, issuedAt time.Time, body []byte) string {
	timestamp := strconv.FormatInt(issuedAt.Unix(), 10)
	mac := webhooks.ComputeHMAC([]byte(secret), []byte(timestamp+"."+string(body)))
	return "t=" + timestamp + "," + signatureSchemeV1 + "=" + hex.EncodeToString(mac)
}
