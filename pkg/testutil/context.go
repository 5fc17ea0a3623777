package testutil

import (
	"context"
	"net/http"

	"relay/pkg/correlation"
)

// WithPrincipal adds an initiating principal to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, p correlation.Principal) *http.Request {
	ctx := correlation.WithInitiator(req.Context(), p)
	return req.WithContext(ctx)
}

// WithCorrelationID adds a correlation id to the request context, as the
// request-id middleware would.
func WithCorrelationID(req *http.Request, corrID string) *http.Request {
	ctx := correlation.WithID(req.Context(), corrID)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
