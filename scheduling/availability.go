package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

const availabilityDateLayout = "2006-01-02"

// ClientConfig configures the availability client. BaseURL is required.
// Timezone is the IANA zone the day window is computed in; empty means UTC.
type ClientConfig struct {
	BaseURL        string
	Timezone       string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
}

// Client fetches bookable slots for a mentor's event type on a given day.
// Tokens come from the injected TokenSource; on a 401 the client forces
// exactly one refresh and retries once, then gives up.
type Client struct {
	cfg        ClientConfig
	tokens     core.TokenSource
	httpClient HTTPDoer
	location   *time.Location
}

func NewClient(cfg ClientConfig, tokens core.TokenSource) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scheduling: availability base url is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("scheduling: token source is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	location := time.UTC
	if zone := strings.TrimSpace(cfg.Timezone); zone != "" {
		loaded, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("scheduling: invalid timezone %q: %w", zone, err)
		}
		location = loaded
	}

	client := &Client{cfg: cfg, tokens: tokens, httpClient: cfg.HTTPClient, location: location}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return client, nil
}

// FetchAvailableSlots returns the provider's open start times for one local
// day, normalized into slots. An empty result is a valid answer, not an
// error. A 401 that survives a forced refresh surfaces as
// AuthenticationFailed with the needs_reconnect flag set.
func (c *Client) FetchAvailableSlots(ctx context.Context, mentorID, eventTypeRef, date string) ([]core.AvailabilitySlot, error) {
	mentorID = strings.TrimSpace(mentorID)
	eventTypeRef = strings.TrimSpace(eventTypeRef)
	date = strings.TrimSpace(date)
	if mentorID == "" {
		return nil, fmt.Errorf("scheduling: mentor id is required")
	}
	if eventTypeRef == "" {
		return nil, fmt.Errorf("scheduling: event type reference is required")
	}
	day, err := time.ParseInLocation(availabilityDateLayout, date, c.location)
	if err != nil {
		return nil, fmt.Errorf("scheduling: invalid date %q: %w", date, err)
	}

	token, err := c.tokens.EnsureAccessToken(ctx, mentorID)
	if err != nil {
		return nil, err
	}

	query := c.buildQuery(eventTypeRef, day)

	status, body, err := c.fetch(ctx, token, query)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// the stored expiry said the token was fine; force one refresh and
		// retry once, never loop
		token, err = c.tokens.ForceRefresh(ctx, mentorID)
		if err != nil {
			return nil, err
		}
		status, body, err = c.fetch(ctx, token, query)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, core.NewAuthenticationFailedError(mentorID)
		}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, core.NewProviderError(status, string(body))
	}

	return c.decodeSlots(status, body)
}

func (c *Client) buildQuery(eventTypeRef string, day time.Time) url.Values {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.location)
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, c.location)

	query := url.Values{}
	query.Set("eventTypeId", eventTypeRef)
	query.Set("startTime", start.Format(time.RFC3339))
	query.Set("endTime", end.Format(time.RFC3339))
	query.Set("timeZone", c.location.String())
	return query
}

func (c *Client) fetch(ctx context.Context, token string, query url.Values) (int, []byte, error) {
	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	endpoint := c.cfg.BaseURL + "/slots?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, core.NewProviderUnavailableError(fmt.Sprintf("availability request failed: %v", err))
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return 0, nil, core.NewProviderUnavailableError(fmt.Sprintf("read availability response: %v", readErr))
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return 0, nil, core.NewProviderUnavailableError(
			fmt.Sprintf("availability response exceeds %d bytes", maxResponseBodyBytes),
		)
	}
	return response.StatusCode, body, nil
}

func (c *Client) decodeSlots(status int, body []byte) ([]core.AvailabilitySlot, error) {
	var payload struct {
		Collection []string `json:"collection"`
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, core.NewProviderError(status, string(body))
		}
	}

	slots := make([]core.AvailabilitySlot, 0, len(payload.Collection))
	for _, raw := range payload.Collection {
		startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return nil, core.NewProviderError(status, fmt.Sprintf("unparseable slot start time %q", strings.TrimSpace(raw)))
		}
		local := startsAt.In(c.location)
		slots = append(slots, core.AvailabilitySlot{
			Date:      local.Format(availabilityDateLayout),
			StartTime: local.Format("15:04"),
			StartsAt:  startsAt,
		})
	}
	return slots, nil
}
