package shared

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session attached by the auth middleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*Session)
	return sess, ok && sess != nil
}

// RequestID returns the chi request ID of ctx, or "" outside a request.
func RequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// CorrelationAttrs returns log attributes tying a log line to its request
// and session. Empty values are omitted.
func CorrelationAttrs(ctx context.Context) []any {
	var attrs []any
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if sess, ok := SessionFromContext(ctx); ok {
		attrs = append(attrs, "session_id", sess.ID)
	}
	return attrs
}
