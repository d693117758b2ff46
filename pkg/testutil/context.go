package testutil

import (
	"net/http"
	"time"

	"taxlens/pkg/requestcontext"
)

// WithActor adds an authenticated principal to the request context, as the
// authentication middleware does for bearer requests.
func WithActor(req *http.Request, subject string, roles ...string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Principal{Subject: subject, Roles: roles})
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
