package util

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderRequestID propagates request ids between clients, proxies, and logs.
const HeaderRequestID = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID tags every request with an id: the caller's when the header
// is present, otherwise a fresh one. The id is echoed on the response, stored
// in the request context, and attached to a context logger (see
// LoggerFromContext) so downstream log lines correlate.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = NewID()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = ContextWithLogger(ctx, slog.Default().With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id, or "" when the context
// carries none.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDFromRequest returns the request id from the request context.
func RequestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return RequestIDFromContext(r.Context())
}
