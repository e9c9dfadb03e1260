package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type for context keys defined in this
// package, preventing collisions with keys from other packages.
type contextKey int

const (
	identityContextKey contextKey = iota
)

// ContextWithIdentity returns a copy of ctx carrying the resolved
// caller identity. Handlers attach the identity once resolution
// succeeds so downstream code can retrieve it without re-threading it
// through every call.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the caller identity from ctx. The
// second return value reports whether an identity was attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// TraceIDFromContext returns the current trace ID as a hex string, or
// the empty string if the context carries no recording span. Useful for
// correlating log lines with traces.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// SpanIDFromContext returns the current span ID as a hex string, or the
// empty string if the context carries no recording span.
func SpanIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasSpanID() {
		return ""
	}
	return spanCtx.SpanID().String()
}
