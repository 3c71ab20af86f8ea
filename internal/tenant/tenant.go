// Package tenant carries the authenticated actor, organization and role of one operation.
//
// A Context is created once per request, right after the caller's identity is
// resolved, and travels inside the request's context.Context. It is never
// cached or shared between operations.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

var (
	// ErrNoContext means a scoped operation ran without a Tenant Context. This is a wiring bug.
	ErrNoContext = errors.New("tenant: no tenant context in operation")
	// ErrMissingOrganization means the role requires an organization but none was resolved.
	ErrMissingOrganization = errors.New("tenant: organization required for role")
	// ErrInvalidRole means the role is not one of the known roles.
	ErrInvalidRole = errors.New("tenant: invalid role")
	// ErrInvalidActor means the actor id is the zero UUID.
	ErrInvalidActor = errors.New("tenant: invalid actor")
	// ErrAlreadyAttached means a Tenant Context was attached twice to the same operation.
	ErrAlreadyAttached = errors.New("tenant: context already attached")
)

type ctxKey struct{}

// Context is the immutable identity of the caller of one operation.
type Context struct {
	actorID        uuid.UUID
	organizationID uuid.UUID
	hasOrg         bool
	role           models.Role
}

// New validates and builds a Context. HR and EMPLOYEE actors must carry an organization.
func New(actorID uuid.UUID, role models.Role, organizationID *uuid.UUID) (Context, error) {
	if actorID == uuid.Nil {
		return Context{}, ErrInvalidActor
	}
	if !role.Valid() {
		return Context{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	tc := Context{actorID: actorID, role: role}
	if organizationID != nil && *organizationID != uuid.Nil {
		tc.organizationID = *organizationID
		tc.hasOrg = true
	}
	if role.RequiresOrganization() && !tc.hasOrg {
		return Context{}, fmt.Errorf("%w: %s", ErrMissingOrganization, role)
	}
	return tc, nil
}

// ActorID returns the id of the user performing the operation.
func (c Context) ActorID() uuid.UUID { return c.actorID }

// Role returns the actor's role.
func (c Context) Role() models.Role { return c.role }

// OrganizationID returns the actor's organization and whether one is set.
func (c Context) OrganizationID() (uuid.UUID, bool) { return c.organizationID, c.hasOrg }

// IsAdmin reports whether the actor has global visibility.
func (c Context) IsAdmin() bool { return c.role == models.RoleAdmin }

// String is used in log fields.
func (c Context) String() string {
	if c.hasOrg {
		return fmt.Sprintf("%s:%s@%s", c.role, c.actorID, c.organizationID)
	}
	return fmt.Sprintf("%s:%s", c.role, c.actorID)
}

// WithContext attaches tc to ctx. A context may carry only one Tenant Context.
func WithContext(ctx context.Context, tc Context) (context.Context, error) {
	if _, ok := FromContext(ctx); ok {
		return ctx, ErrAlreadyAttached
	}
	if tc.actorID == uuid.Nil {
		return ctx, ErrInvalidActor
	}
	return context.WithValue(ctx, ctxKey{}, tc), nil
}

// FromContext returns the Tenant Context carried by ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// Require returns the Tenant Context carried by ctx or ErrNoContext.
func Require(ctx context.Context) (Context, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return Context{}, ErrNoContext
	}
	return tc, nil
}
