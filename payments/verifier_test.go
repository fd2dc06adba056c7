package payments

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/goliatone/go-bookings/core"
)

func signedRequest(secret string, issuedAt time.Time, body []byte) core.InboundRequest {
	return core.InboundRequest{
		Surface: "payments",
		Headers: map[string]string{DefaultSignatureHeader: SignPayload(secret, issuedAt, body)},
		Body:    body,
	}
}

func TestSignedEventVerifierAcceptsFreshEnvelope(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	verifier := SignedEventVerifier{Secret: "whsec_test", Now: func() time.Time { return now }}
	if err := verifier.Verify(context.Background(), signedRequest("whsec_test", now.Add(-time.Minute), body)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignedEventVerifierRejections(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	cases := []struct {
		name   string
		mutate func(*core.InboundRequest)
		secret string
	}{
		{"missing_header", func(req *core.InboundRequest) { req.Headers = nil }, "whsec_test"},
		{"missing_secret", func(req *core.InboundRequest) {}, ""},
		{"mutated_body", func(req *core.InboundRequest) { req.Body = []byte(`{"id":"evt_2"}`) }, "whsec_test"},
		{"wrong_secret", func(req *core.InboundRequest) {
			req.Headers[DefaultSignatureHeader] = SignPayload("whsec_other", now.Add(-time.Minute), req.Body)
		}, "whsec_test"},
		{"garbage_envelope", func(req *core.InboundRequest) {
			req.Headers[DefaultSignatureHeader] = "not-an-envelope"
		}, "whsec_test"},
		{"missing_v1_entry", func(req *core.InboundRequest) {
			req.Headers[DefaultSignatureHeader] = "t=" + strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)
		}, "whsec_test"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := signedRequest("whsec_test", now.Add(-time.Minute), body)
			tc.mutate(&req)
			verifier := SignedEventVerifier{Secret: tc.secret, Now: func() time.Time { return now }}
			if err := verifier.Verify(context.Background(), req); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestSignedEventVerifierToleranceWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	verifier := SignedEventVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute, Now: func() time.Time { return now }}

	if err := verifier.Verify(context.Background(), signedRequest("whsec_test", now.Add(-4*time.Minute), body)); err != nil {
		t.Fatalf("envelope inside tolerance must pass: %v", err)
	}
	if err := verifier.Verify(context.Background(), signedRequest("whsec_test", now.Add(-6*time.Minute), body)); err == nil {
		t.Fatalf("stale envelope must fail")
	}
	if err := verifier.Verify(context.Background(), signedRequest("whsec_test", now.Add(6*time.Minute), body)); err == nil {
		t.Fatalf("future-dated envelope must fail")
	}
}

func TestSignedEventVerifierRotationAcceptsAnyMatchingSignature(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	// rotation sends several v1 entries under one timestamp
	envelope := SignPayload("whsec_old", now, body) + ",v1=deadbeef"
	req := core.InboundRequest{
		Surface: "payments",
		Headers: map[string]string{DefaultSignatureHeader: envelope},
		Body:    body,
	}
	verifier := SignedEventVerifier{Secret: "whsec_old", Now: func() time.Time { return now }}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("one valid signature among several must pass: %v", err)
	}
}
