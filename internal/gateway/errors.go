package gateway

import (
	"errors"

	"github.com/ledgerwise/coaching-backend/internal/tenant"
)

var (
	// ErrNoTenantContext is returned when a scoped call runs without a Tenant Context.
	ErrNoTenantContext = tenant.ErrNoContext
	// ErrMissingOrganization is returned when the actor's role needs an organization it does not have.
	ErrMissingOrganization = tenant.ErrMissingOrganization
	// ErrForbidden is returned when the actor's role may not perform the operation on the entity.
	ErrForbidden = errors.New("gateway: role forbidden for entity")
	// ErrUnknownEntity is returned for an entity type that has no registered table.
	ErrUnknownEntity = errors.New("gateway: unknown entity")
	// ErrUnknownColumn is returned when a filter or payload names a column outside the allow-list.
	ErrUnknownColumn = errors.New("gateway: unknown column")
	// ErrImmutableColumn is returned when an update tries to move a row between tenants or owners.
	ErrImmutableColumn = errors.New("gateway: column is immutable")
	// ErrDisallowedWrite is returned when a scoped write sets a column or value its role may not.
	ErrDisallowedWrite = errors.New("gateway: write not permitted for this scope")
	// ErrEmptyFilter is returned for update/delete calls without a caller filter.
	ErrEmptyFilter = errors.New("gateway: update and delete require a filter")
	// ErrEmptyPayload is returned for create/update calls without columns.
	ErrEmptyPayload = errors.New("gateway: empty payload")
	// ErrNotFound is returned by single-row lookups that match nothing inside the caller's scope.
	ErrNotFound = errors.New("gateway: not found")
)

// IsSecurityViolation reports whether err should abort the request as a possible spoofing attempt.
func IsSecurityViolation(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrMissingOrganization) || errors.Is(err, ErrDisallowedWrite)
}
