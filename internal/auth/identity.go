package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

var (
	ErrUnknownUser          = errors.New("unknown user")
	ErrInactiveUser         = errors.New("user is deactivated")
	ErrInactiveOrganization = errors.New("organization is deactivated")
)

// Identity is the authoritative role and organization of an authenticated user.
type Identity struct {
	UserID         uuid.UUID
	Role           models.Role
	OrganizationID *uuid.UUID
}

// RowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository resolves identities. It runs before any tenant context exists, so it reads
// users directly and returns only the three fields needed to build one.
type Repository struct {
	db RowQuerier
}

// NewRepository creates an identity repository.
func NewRepository(db RowQuerier) *Repository {
	return &Repository{db: db}
}

const identityQuery = `SELECT u.id, u.role, u.organization_id, u.active, COALESCE(o.active, TRUE)
	FROM users u LEFT JOIN organizations o ON o.id = u.organization_id
	WHERE u.id = $1`

// Resolve loads the user and rejects deactivated users and organizations.
func (r *Repository) Resolve(ctx context.Context, userID uuid.UUID) (Identity, error) {
	var (
		id        Identity
		role      string
		active    bool
		orgActive bool
	)
	err := r.db.QueryRow(ctx, identityQuery, userID).Scan(&id.UserID, &role, &id.OrganizationID, &active, &orgActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrUnknownUser
	}
	if err != nil {
		return Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	id.Role = models.Role(role)
	switch {
	case !active:
		return Identity{}, ErrInactiveUser
	case !orgActive:
		return Identity{}, ErrInactiveOrganization
	}
	return id, nil
}
