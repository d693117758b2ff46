// Package authz is the authorization hook in front of analysis requests.
//
// The default policy allows every caller. Deployments that need a real
// advisor gate install RoleAuthorizer and authenticate callers with
// TokenService.
package authz

import (
	"context"

	dErrors "taxlens/pkg/domain-errors"
	"taxlens/pkg/requestcontext"
)

// Action names a guarded operation.
type Action string

const (
	ActionRequestAnalysis Action = "request_analysis"
)

// Authorizer decides whether the caller in ctx may perform action on
// resource. A nil return allows the call.
type Authorizer interface {
	Authorize(ctx context.Context, action Action, resource string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, action Action, resource string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, action Action, resource string) error {
	return f(ctx, action, resource)
}

// AllowAll is the permissive default.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Action, string) error { return nil }

// RoleAuthorizer requires the caller to carry Role for every action.
type RoleAuthorizer struct {
	Role string
}

func NewRoleAuthorizer(role string) *RoleAuthorizer {
	return &RoleAuthorizer{Role: role}
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, action Action, _ string) error {
	actor := requestcontext.Actor(ctx)
	if actor.IsAnonymous() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.HasRole(a.Role) {
		return dErrors.New(dErrors.CodeForbidden, "caller may not "+string(action))
	}
	return nil
}
