package core

import (
	"strings"
	"time"
)

const (
	// DefaultRefreshLeadWindow is how long before expiry a token is treated
	// as stale and refreshed ahead of use.
	DefaultRefreshLeadWindow = 30 * time.Minute
)

// TokenState captures the lifecycle flags derived from a stored credential.
type TokenState struct {
	ExpiresAt       *time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	IsExpiringSoon  bool
}

// ResolveTokenState evaluates expiry and refreshability for a credential.
func ResolveTokenState(now time.Time, credential MentorCredential, leadWindow time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}

	state := TokenState{
		HasAccessToken:  strings.TrimSpace(credential.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(credential.RefreshToken) != "",
	}
	if credential.ExpiresAt == nil {
		return state
	}
	expiresAt := credential.ExpiresAt.UTC()
	state.ExpiresAt = &expiresAt
	if !expiresAt.After(now) {
		state.IsExpired = true
		return state
	}
	state.IsExpiringSoon = !expiresAt.After(now.Add(leadWindow))
	return state
}

// ShouldRefresh returns true when the token must be refreshed before use:
// missing, expired, or inside the lead window. Tokens without a refresh
// token cannot auto-refresh and report false; callers surface NotConnected.
func ShouldRefresh(state TokenState) bool {
	if !state.HasRefreshToken {
		return false
	}
	if !state.HasAccessToken {
		return true
	}
	return state.IsExpired || state.IsExpiringSoon
}
