package ginadapter

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/inbound"
)

const maxWebhookBodyBytes = 1 << 20

// Dispatcher is the inbound pipeline the HTTP layer hands deliveries to.
type Dispatcher interface {
	Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// Adapter exposes the webhook surfaces over HTTP. Bodies are passed through
// raw; all parsing and verification happens behind the dispatcher.
type Adapter struct {
	dispatcher Dispatcher
	providerID string
}

type Option func(*Adapter)

// WithProviderID tags dispatched deliveries with a provider identifier.
func WithProviderID(id string) Option {
	return func(a *Adapter) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			a.providerID = trimmed
		}
	}
}

func New(dispatcher Dispatcher, options ...Option) *Adapter {
	adapter := &Adapter{dispatcher: dispatcher, providerID: "bookings"}
	for _, option := range options {
		if option != nil {
			option(adapter)
		}
	}
	return adapter
}

// Mount registers the webhook routes on a gin router.
func (a *Adapter) Mount(router gin.IRouter) {
	router.POST("/webhooks/scheduling", a.handleWebhook(inbound.SurfaceScheduling))
	router.POST("/webhooks/payments", a.handleWebhook(inbound.SurfacePayments))
}

func (a *Adapter) handleWebhook(surface string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		if len(body) > maxWebhookBodyBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}

		result, err := a.dispatcher.Dispatch(c.Request.Context(), core.InboundRequest{
			ProviderID: a.providerID,
			Surface:    surface,
			Headers:    flattenHeaders(c.Request.Header),
			Body:       body,
		})
		if err != nil {
			status := errorStatus(err, result)
			c.JSON(status, gin.H{"error": publicErrorMessage(status)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// errorStatus keeps the provider-facing contract to 401 for verification
// failures and 500 for everything else; internals stay in logs, not in the
// response.
func errorStatus(err error, result core.InboundResult) int {
	if result.StatusCode == http.StatusUnauthorized {
		return http.StatusUnauthorized
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Code {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized
		case http.StatusBadRequest:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func publicErrorMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "signature verification failed"
	case http.StatusBadRequest:
		return "invalid request"
	default:
		return "event processing failed"
	}
}

func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flattened[key] = values[0]
		}
	}
	return flattened
}
