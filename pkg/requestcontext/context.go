// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and stores read them without
// importing net/http.
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"
)

// Principal identifies who is calling. The zero value is an anonymous caller.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAnonymous reports whether no subject was authenticated.
func (p Principal) IsAnonymous() bool {
	return p.Subject == ""
}

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActor       = actorKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Actor retrieves the calling principal. Returns the anonymous principal if not set.
func Actor(ctx context.Context) Principal {
	if p, ok := ctx.Value(ContextKeyActor).(Principal); ok {
		return p
	}
	return Principal{}
}

// WithActor injects the calling principal into the context.
func WithActor(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ContextKeyActor, p)
}

// RequestID retrieves the HTTP request ID from the context.
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

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (oracle dispatcher, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Client describes the network peer and user agent behind a request.
type Client struct {
	IP      string
	Browser string
	OS      string
	Bot     bool
}

type clientKey struct{}

// ContextKeyClient is exported for tests that need context.WithValue.
var ContextKeyClient = clientKey{}

// ClientInfo retrieves the request's client metadata. Returns the zero Client if not set.
func ClientInfo(ctx context.Context) Client {
	if c, ok := ctx.Value(ContextKeyClient).(Client); ok {
		return c
	}
	return Client{}
}

// WithClient injects client metadata into the context.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, ContextKeyClient, c)
}
