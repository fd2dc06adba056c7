package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBodyBytes  = int64(1 << 20)
)

// HTTPDoer is the transport seam; tests inject fakes through it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProviderConfig configures the OAuth2 token exchange against the scheduling
// provider. TokenURL, ClientID, and ClientSecret are required; a missing
// value is a construction error, never a silently degraded client.
type ProviderConfig struct {
	TokenURL           string
	ClientID           string
	ClientSecret       string
	ClientSecretInBody bool
	RequestTimeout     time.Duration
	// TokenTTL is the fallback lifetime when the provider omits expires_in.
	TokenTTL   time.Duration
	HTTPClient HTTPDoer
	Now        func() time.Time
}

// Provider performs the refresh-token grant for mentor credentials.
type Provider struct {
	cfg        ProviderConfig
	httpClient HTTPDoer
	now        func() time.Time
}

var _ core.RefreshExchange = (*Provider)(nil)

func NewProvider(cfg ProviderConfig) (*Provider, error) {
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("scheduling: provider token url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("scheduling: provider client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("scheduling: provider client secret is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	provider := &Provider{cfg: cfg, httpClient: cfg.HTTPClient, now: cfg.Now}
	if provider.httpClient == nil {
		provider.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if provider.now == nil {
		provider.now = time.Now
	}
	return provider, nil
}

// Refresh exchanges a stored refresh token for a new token set. Transport
// failures and provider 5xx map to ProviderUnavailable; a token-endpoint
// rejection maps to RefreshFailed and must send the mentor back through the
// connect flow.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (core.TokenExchangeResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenExchangeResult{}, fmt.Errorf("scheduling: refresh token is required")
	}

	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("refresh_token", refreshToken)
	values.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecretInBody {
		values.Set("client_secret", p.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		p.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return core.TokenExchangeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !p.cfg.ClientSecretInBody {
		httpReq.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenExchangeResult{}, core.NewProviderUnavailableError(
			fmt.Sprintf("token request failed: %v", err),
		)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return core.TokenExchangeResult{}, core.NewProviderUnavailableError(
			fmt.Sprintf("read token response: %v", readErr),
		)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return core.TokenExchangeResult{}, core.NewProviderUnavailableError(
			fmt.Sprintf("token response exceeds %d bytes", maxResponseBodyBytes),
		)
	}

	if response.StatusCode >= http.StatusInternalServerError {
		return core.TokenExchangeResult{}, core.NewProviderUnavailableError(
			fmt.Sprintf("token endpoint returned %d", response.StatusCode),
		)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return core.TokenExchangeResult{}, core.NewProviderError(response.StatusCode, string(body))
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.TokenExchangeResult{}, core.NewRefreshFailedError("", describeTokenError(payload))
	}
	if payload.ErrorCode != "" {
		return core.TokenExchangeResult{}, core.NewRefreshFailedError("", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenExchangeResult{}, core.NewRefreshFailedError("", "token response missing access token")
	}

	result := core.TokenExchangeResult{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		TokenType:    normalizeTokenType(payload.TokenType),
	}
	if expiresAt := p.resolveExpiresAt(p.now().UTC(), payload.ExpiresIn); expiresAt != nil {
		result.ExpiresAt = *expiresAt
	}
	return result, nil
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func (p *Provider) resolveExpiresAt(now time.Time, expiresIn int64) *time.Time {
	ttl := p.cfg.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := now.Add(ttl)
	return &expiresAt
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
