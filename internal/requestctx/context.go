// Package requestctx provides HTTP-independent context accessors for
// request-scoped values, trimmed from the teacher's
// pkg/requestcontext/context.go to the fields this service actually needs:
// request id, request time, and correlation id. The teacher's auth/session/
// device identity keys (UserID, SessionID, ClientID, DeviceFingerprint,
// ClientIP, UserAgent) are dropped — this service has no caller-identity
// concept of its own, since caller authentication is explicitly out of
// scope.
package requestctx

import (
	"context"
	"time"
)

type (
	requestIDKey     struct{}
	requestTimeKey   struct{}
	correlationIDKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
	ContextKeyCorrelationID = correlationIDKey{}
)

// RequestID retrieves the request ID from the context, or "" if unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// CorrelationID retrieves the caller-supplied correlation ID used to tie a
// bulk-ingested batch or a buffered event back to its originating request.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// WithCorrelationID injects a correlation ID into the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// Now retrieves the request-scoped time from context, falling back to
// time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context, useful for tests and
// workers that need a consistent time within one batch operation.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
