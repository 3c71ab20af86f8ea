// Package gateway is the only path to tenant-owned rows. Every statement it
// runs is compiled from a Scope derived from the caller's Tenant Context.
package gateway

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/internal/tenant"
	"github.com/ledgerwise/coaching-backend/pkg/metrics"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway wraps the database client with tenant scoping and role capability checks.
type Gateway struct {
	db      Querier
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a gateway over db.
func New(db Querier, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, logger: logger, metrics: m}
}

// WithQuerier returns a gateway that runs its statements on q, typically an open transaction.
func (g *Gateway) WithQuerier(q Querier) *Gateway {
	return &Gateway{db: q, logger: g.logger, metrics: g.metrics}
}

// Authorize resolves the Scope for op on entity from the Tenant Context in ctx.
// It performs no I/O.
func (g *Gateway) Authorize(ctx context.Context, entity Entity, op Op) (Scope, error) {
	if _, ok := entitySpecs[entity]; !ok {
		return Scope{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	tc, err := tenant.Require(ctx)
	if err != nil {
		g.logger.Error("scoped call without tenant context",
			zap.String("entity", string(entity)),
			zap.String("op", op.String()),
		)
		g.metrics.GatewayDenied(string(entity), "no_context")
		return Scope{}, err
	}

	mode := modeFor(entity, tc.Role(), op)
	if mode == ModeDenied {
		g.securityViolation(tc, entity, op, "role_forbidden")
		return Scope{}, fmt.Errorf("%w: %s may not %s %s", ErrForbidden, tc.Role(), op, entity)
	}

	scope := Scope{Entity: entity, Op: op, Mode: mode, ActorID: tc.ActorID()}
	if mode.needsOrganization() {
		orgID, ok := tc.OrganizationID()
		if !ok {
			g.securityViolation(tc, entity, op, "missing_organization")
			return Scope{}, fmt.Errorf("%w: %s", ErrMissingOrganization, tc.Role())
		}
		scope.OrganizationID = orgID
	}
	return scope, nil
}

func (g *Gateway) securityViolation(tc tenant.Context, entity Entity, op Op, reason string) {
	g.logger.Warn("gateway access denied",
		zap.String("event", "security_violation"),
		zap.String("reason", reason),
		zap.String("entity", string(entity)),
		zap.String("op", op.String()),
		zap.Stringer("actor", tc),
	)
	g.metrics.GatewayDenied(string(entity), reason)
}

// Read returns the rows of entity matching filter inside the caller's scope.
func (g *Gateway) Read(ctx context.Context, entity Entity, filter Filter) ([]Row, error) {
	scope, err := g.Authorize(ctx, entity, OpRead)
	if err != nil {
		return nil, err
	}
	stmt, err := compileSelect(scope, filter, selectOptions{})
	if err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entity, err)
	}
	return pgx.CollectRows(rows, rowToRow)
}

// Create inserts payload with its tenancy columns taken from the Tenant Context.
func (g *Gateway) Create(ctx context.Context, entity Entity, payload Row) (Row, error) {
	scope, err := g.Authorize(ctx, entity, OpCreate)
	if err != nil {
		return nil, err
	}
	stmt, err := compileInsert(scope, payload)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entity, err)
	}
	created, err := pgx.CollectRows(rows, rowToRow)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", entity, err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create %s: no row returned", entity)
	}
	return created[0], nil
}

// Update applies changes to the rows matching filter inside the caller's scope.
func (g *Gateway) Update(ctx context.Context, entity Entity, filter Filter, changes Row) (int64, error) {
	scope, err := g.Authorize(ctx, entity, OpUpdate)
	if err != nil {
		return 0, err
	}
	stmt, err := compileUpdate(scope, filter, changes)
	if err != nil {
		return 0, err
	}
	tag, err := g.db.Exec(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes the rows matching filter inside the caller's scope.
func (g *Gateway) Delete(ctx context.Context, entity Entity, filter Filter) (int64, error) {
	scope, err := g.Authorize(ctx, entity, OpDelete)
	if err != nil {
		return 0, err
	}
	stmt, err := compileDelete(scope, filter)
	if err != nil {
		return 0, err
	}
	tag, err := g.db.Exec(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

func rowToRow(r pgx.CollectableRow) (Row, error) {
	m, err := pgx.RowToMap(r)
	if err != nil {
		return nil, err
	}
	return Row(m), nil
}
