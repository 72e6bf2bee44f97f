package llm

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey contextKey = "llm_request_id"

	// requestIDHeader carries the run ID to the provider for log correlation.
	requestIDHeader = "X-Request-Id"
)

// WithRequestID returns a context carrying the run's request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// contextAwareTransport copies the request ID from the request context into
// the X-Request-Id header.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := RequestIDFromContext(req.Context()); id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}
