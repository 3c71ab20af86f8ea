package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerwise/coaching-backend/internal/gateway"
	"github.com/ledgerwise/coaching-backend/internal/models"
)

const slotColumns = `id, coach_id, slot_date, start_time, end_time, status, created_at, updated_at`

// PostgreSQL error codes treated as retryable. Serialization codes are
// retried by the transactor before they reach a caller.
var (
	serializationCodes = map[string]bool{
		"40001": true, // serialization_failure
		"40P01": true, // deadlock_detected
	}
	transientCodes = map[string]bool{
		"55P03": true, // lock_not_available
		"57014": true, // query_canceled
	}
)

// PostgresStore runs booking transactions at SERIALIZABLE isolation. Bookings
// are tenant-owned and always go through the gateway; slots are not.
type PostgresStore struct {
	pool *pgxpool.Pool
	gw   *gateway.Gateway
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool, gw *gateway.Gateway) *PostgresStore {
	return &PostgresStore{pool: pool, gw: gw}
}

// Begin implements Store.
func (s *PostgresStore) Begin(ctx context.Context, opts TxOptions) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, pgError("begin", err)
	}
	const q = `SELECT set_config('lock_timeout', $1, true), set_config('statement_timeout', $2, true)`
	if _, err := tx.Exec(ctx, q, pgDuration(opts.LockTimeout), pgDuration(opts.StatementTimeout)); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, pgError("set timeouts", err)
	}
	return &pgTx{tx: tx, gw: s.gw.WithQuerier(tx)}, nil
}

// GetSlot implements Store.
func (s *PostgresStore) GetSlot(ctx context.Context, id uuid.UUID) (*models.CoachSlot, error) {
	return getSlot(ctx, s.pool, `SELECT `+slotColumns+` FROM coach_slots WHERE id = $1`, id)
}

// ListSlots implements Store.
func (s *PostgresStore) ListSlots(ctx context.Context, q SlotQuery) ([]models.CoachSlot, error) {
	return listSlots(ctx, s.pool, q)
}

type pgTx struct {
	tx pgx.Tx
	gw *gateway.Gateway
}

func (t *pgTx) LockCoach(ctx context.Context, coachID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "coach_slots:"+coachID.String()); err != nil {
		return pgError("lock coach", err)
	}
	return nil
}

func (t *pgTx) LockSlot(ctx context.Context, id uuid.UUID) (*models.CoachSlot, error) {
	return getSlot(ctx, t.tx, `SELECT `+slotColumns+` FROM coach_slots WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) FindBooking(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error) {
	b, err := t.gw.Bookings().Get(ctx, id)
	if err != nil {
		return nil, gatewayError("find booking", err)
	}
	return b, nil
}

func (t *pgTx) LockBooking(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error) {
	b, err := t.gw.Bookings().Lock(ctx, id)
	if err != nil {
		return nil, gatewayError("lock booking", err)
	}
	return b, nil
}

func (t *pgTx) ListSlots(ctx context.Context, q SlotQuery) ([]models.CoachSlot, error) {
	return listSlots(ctx, t.tx, q)
}

func (t *pgTx) InsertSlot(ctx context.Context, slot *models.CoachSlot) error {
	const q = `INSERT INTO coach_slots (` + slotColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.tx.Exec(ctx, q, slot.ID, slot.CoachID, slot.Date, slot.StartTime, slot.EndTime, string(slot.Status), slot.CreatedAt, slot.UpdatedAt)
	if err != nil {
		if pgCode(err) == "23P01" {
			return ErrSlotOverlap
		}
		return pgError("insert slot", err)
	}
	return nil
}

func (t *pgTx) SetSlotStatus(ctx context.Context, id uuid.UUID, status models.SlotStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE coach_slots SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return pgError("update slot", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM coach_slots WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == "23503" {
			return ErrSlotHasHistory
		}
		return pgError("delete slot", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgTx) InsertBooking(ctx context.Context, b *models.ConsultationBooking) error {
	created, err := t.gw.Bookings().Create(ctx, *b)
	if err != nil {
		if pgCode(err) == "23505" {
			return ErrSlotNotAvailable
		}
		return gatewayError("insert booking", err)
	}
	*b = *created
	return nil
}

func (t *pgTx) CancelBooking(ctx context.Context, id, by uuid.UUID, at time.Time, reason string) error {
	n, err := t.gw.Bookings().MarkCancelled(ctx, id, by, at, reason)
	if err != nil {
		return gatewayError("cancel booking", err)
	}
	if n == 0 {
		return ErrBookingNotActive
	}
	return nil
}

func (t *pgTx) CompleteBooking(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := t.gw.Bookings().MarkCompleted(ctx, id, at)
	if err != nil {
		return gatewayError("complete booking", err)
	}
	if n == 0 {
		return ErrBookingNotActive
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return pgError("commit", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

type slotQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getSlot(ctx context.Context, db slotQuerier, q string, id uuid.UUID) (*models.CoachSlot, error) {
	rows, err := db.Query(ctx, q, id)
	if err != nil {
		return nil, pgError("get slot", err)
	}
	slot, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.CoachSlot])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, pgError("get slot", err)
	}
	return &slot, nil
}

func listSlots(ctx context.Context, db slotQuerier, q SlotQuery) ([]models.CoachSlot, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.CoachID != uuid.Nil {
		add("coach_id = $%d", q.CoachID)
	}
	if !q.From.IsZero() {
		add("start_time >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("start_time < $%d", q.To)
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	sql := `SELECT ` + slotColumns + ` FROM coach_slots`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY start_time ASC`

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, pgError("list slots", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CoachSlot])
	if err != nil {
		return nil, pgError("list slots", err)
	}
	return list, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// pgError marks lock waits, serialization failures, deadlocks and timeouts as transient.
func pgError(op string, err error) error {
	if serializationCodes[pgCode(err)] {
		return serialization(op, err)
	}
	if transientCodes[pgCode(err)] || errors.Is(err, context.DeadlineExceeded) {
		return transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// gatewayError maps gateway failures onto booking errors.
func gatewayError(op string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return ErrBookingNotFound
	case gateway.IsSecurityViolation(err):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case errors.Is(err, gateway.ErrNoTenantContext):
		return err
	}
	return pgError(op, err)
}

// pgDuration renders d for set_config. Zero disables the timeout.
func pgDuration(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

var _ Store = (*PostgresStore)(nil)
