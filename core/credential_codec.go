package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	TokenPayloadFormatJSONV1 = "mentor_token_json"
	TokenPayloadVersionV1    = 1
)

// TokenCodec serializes the stored token material so it can be encrypted as
// a single blob at rest.
type TokenCodec interface {
	Format() string
	Version() int
	Encode(credential MentorCredential) ([]byte, error)
	Decode(payload []byte) (MentorCredential, error)
}

type JSONTokenCodec struct{}

func (JSONTokenCodec) Format() string {
	return TokenPayloadFormatJSONV1
}

func (JSONTokenCodec) Version() int {
	return TokenPayloadVersionV1
}

type jsonTokenPayload struct {
	AccessToken     string     `json:"access_token,omitempty"`
	RefreshToken    string     `json:"refresh_token,omitempty"`
	ProviderUserRef string     `json:"provider_user_ref,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (JSONTokenCodec) Encode(credential MentorCredential) ([]byte, error) {
	payload := jsonTokenPayload{
		AccessToken:     strings.TrimSpace(credential.AccessToken),
		RefreshToken:    strings.TrimSpace(credential.RefreshToken),
		ProviderUserRef: strings.TrimSpace(credential.ProviderUserRef),
		ExpiresAt:       cloneTimePointer(credential.ExpiresAt),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode token payload: %w", err)
	}
	return encoded, nil
}

func (JSONTokenCodec) Decode(payload []byte) (MentorCredential, error) {
	if len(payload) == 0 {
		return MentorCredential{}, fmt.Errorf("core: token payload is empty")
	}
	decoded := jsonTokenPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return MentorCredential{}, fmt.Errorf("core: decode token payload: %w", err)
	}
	return MentorCredential{
		AccessToken:     strings.TrimSpace(decoded.AccessToken),
		RefreshToken:    strings.TrimSpace(decoded.RefreshToken),
		ProviderUserRef: strings.TrimSpace(decoded.ProviderUserRef),
		ExpiresAt:       cloneTimePointer(decoded.ExpiresAt),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}

var _ TokenCodec = JSONTokenCodec{}
