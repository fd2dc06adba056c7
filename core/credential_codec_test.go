package core

import (
	"testing"
	"time"
)

func TestJSONTokenCodecRoundTrip(t *testing.T) {
	codec := JSONTokenCodec{}
	expires := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	credential := MentorCredential{
		AccessToken:     "access-1",
		RefreshToken:    "refresh-1",
		ProviderUserRef: "cal-user-9",
		ExpiresAt:       &expires,
	}

	payload, err := codec.Encode(credential)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.AccessToken != credential.AccessToken || decoded.RefreshToken != credential.RefreshToken {
		t.Fatalf("token fields lost in round trip: %+v", decoded)
	}
	if decoded.ProviderUserRef != credential.ProviderUserRef {
		t.Fatalf("provider user ref lost: %q", decoded.ProviderUserRef)
	}
	if decoded.ExpiresAt == nil || !decoded.ExpiresAt.Equal(expires) {
		t.Fatalf("expiry lost: %v", decoded.ExpiresAt)
	}
}

func TestJSONTokenCodecDecodeEmpty(t *testing.T) {
	if _, err := (JSONTokenCodec{}).Decode(nil); err == nil {
		t.Fatalf("expected error on empty payload")
	}
}
