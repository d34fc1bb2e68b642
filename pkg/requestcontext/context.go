// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import (
	"context"
	"time"
)

// Actor identifies who performs a write operation. Every write path carries
// one; the gateway applies the system-actor default explicitly, the core
// never infers it.
type Actor struct {
	ID   string
	Role string
}

// SystemActor is the explicit default for unauthenticated admin tooling.
var SystemActor = Actor{ID: "ADMIN", Role: "admin"}

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyActor       = actorKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ActorFrom retrieves the acting identity from the context, falling back to
// the system actor. The fallback lives here, at the edge of the transport
// layer, so core packages receive a concrete actor and never guess.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(ContextKeyActor).(Actor); ok && a.ID != "" {
		return a
	}
	return SystemActor
}

// WithActor injects an acting identity into the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need one consistent time across a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
