// Package booking moves coach slots through their booking lifecycle. Every
// transition runs in one serializable transaction that locks the slot row first.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/internal/meeting"
	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/internal/tenant"
	"github.com/ledgerwise/coaching-backend/pkg/metrics"
	"github.com/ledgerwise/coaching-backend/pkg/queue"
)

const (
	opCreateSlot = "create_slot"
	opBlockSlot  = "block_slot"
	opDeleteSlot = "delete_slot"
	opBook       = "book"
	opCancel     = "cancel"
	opComplete   = "complete"
)

// Config bounds transactor waits.
type Config struct {
	LockTimeout   time.Duration
	TxTimeout     time.Duration
	NotifyTimeout time.Duration
	SlotLength    time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LockTimeout:   5 * time.Second,
		TxTimeout:     10 * time.Second,
		NotifyTimeout: 3 * time.Second,
		SlotLength:    time.Hour,
	}
}

// Publisher hands committed booking events to the notification relay.
type Publisher interface {
	EnqueueBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

// BookingResult is returned by a successful BookSlot.
type BookingResult struct {
	Booking     models.ConsultationBooking `json:"booking"`
	Slot        models.CoachSlot           `json:"slot"`
	Reservation meeting.Reservation        `json:"reservation"`
}

// CancelResult is returned by a successful CancelBooking.
type CancelResult struct {
	Booking models.ConsultationBooking `json:"booking"`
	Slot    models.CoachSlot           `json:"slot"`
}

// Transactor runs slot and booking transitions.
type Transactor struct {
	store   Store
	rooms   meeting.Reserver
	events  Publisher
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customizes a Transactor.
type Option func(*Transactor)

// WithClock replaces the wall clock used for slot time checks.
func WithClock(now func() time.Time) Option {
	return func(t *Transactor) { t.now = now }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transactor) { t.metrics = m }
}

// NewTransactor creates a transactor. rooms and events may be nil.
func NewTransactor(store Store, rooms meeting.Reserver, events Publisher, cfg Config, logger *zap.Logger, opts ...Option) *Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rooms == nil {
		rooms = meeting.Noop{}
	}
	def := DefaultConfig()
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = def.TxTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = def.NotifyTimeout
	}
	if cfg.SlotLength <= 0 {
		cfg.SlotLength = def.SlotLength
	}
	t := &Transactor{store: store, rooms: rooms, events: events, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateSlot offers a new slot for coachID starting at start. end may be zero;
// otherwise it must be exactly one slot length after start.
func (t *Transactor) CreateSlot(ctx context.Context, coachID uuid.UUID, start, end time.Time) (*models.CoachSlot, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !tc.IsAdmin() && !(tc.Role() == models.RoleCoach && tc.ActorID() == coachID) {
		return nil, fmt.Errorf("%w: only the coach may offer slots", ErrForbidden)
	}
	if end.IsZero() {
		end = start.Add(t.cfg.SlotLength)
	}
	if !end.Equal(start.Add(t.cfg.SlotLength)) {
		return nil, fmt.Errorf("%w: slot must last %s", ErrInvalidSlot, t.cfg.SlotLength)
	}
	now := t.now()
	if !start.After(now) {
		return nil, ErrSlotInPast
	}
	start, end = start.UTC(), end.UTC()
	slot := models.CoachSlot{
		ID:        uuid.New(),
		CoachID:   coachID,
		Date:      time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		StartTime: start,
		EndTime:   end,
		Status:    models.SlotAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = t.run(ctx, opCreateSlot, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCoach(ctx, coachID); err != nil {
			return err
		}
		existing, err := tx.ListSlots(ctx, SlotQuery{CoachID: coachID, From: start.Add(-t.cfg.SlotLength), To: end})
		if err != nil {
			return err
		}
		for _, s := range existing {
			if s.StartTime.Before(end) && s.EndTime.After(start) {
				return ErrSlotOverlap
			}
		}
		return tx.InsertSlot(ctx, &slot)
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// BlockSlot withdraws an AVAILABLE slot for good.
func (t *Transactor) BlockSlot(ctx context.Context, slotID uuid.UUID) (*models.CoachSlot, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var out models.CoachSlot
	err = t.run(ctx, opBlockSlot, func(ctx context.Context, tx Tx) error {
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if err := ownsSlot(tc, slot); err != nil {
			return err
		}
		switch slot.Status {
		case models.SlotAvailable:
		case models.SlotBooked:
			return ErrSlotBooked
		default:
			return ErrSlotNotAvailable
		}
		now := t.now()
		if err := tx.SetSlotStatus(ctx, slot.ID, models.SlotBlocked, now); err != nil {
			return err
		}
		slot.Status, slot.UpdatedAt = models.SlotBlocked, now
		out = *slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSlot removes an AVAILABLE slot that has not started.
func (t *Transactor) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return t.run(ctx, opDeleteSlot, func(ctx context.Context, tx Tx) error {
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if err := ownsSlot(tc, slot); err != nil {
			return err
		}
		if slot.Status == models.SlotBooked {
			return ErrSlotBooked
		}
		if !slot.StartTime.After(t.now()) {
			return ErrSlotInPast
		}
		if slot.Status != models.SlotAvailable {
			return ErrSlotNotAvailable
		}
		return tx.DeleteSlot(ctx, slot.ID)
	})
}

// BookSlot books slotID for the employee requesterID, who must be the caller.
func (t *Transactor) BookSlot(ctx context.Context, slotID, requesterID uuid.UUID) (*BookingResult, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if tc.Role() != models.RoleEmployee || tc.ActorID() != requesterID {
		return nil, fmt.Errorf("%w: only the requesting employee may book", ErrForbidden)
	}
	orgID, _ := tc.OrganizationID()

	var (
		res      BookingResult
		reserved bool
	)
	err = t.run(ctx, opBook, func(ctx context.Context, tx Tx) error {
		if reserved {
			t.release(ctx, res.Reservation.RoomID)
			reserved, res = false, BookingResult{}
		}
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		now := t.now()
		if !slot.StartTime.After(now) {
			return ErrSlotInPast
		}
		if slot.Status != models.SlotAvailable {
			return ErrSlotNotAvailable
		}

		b := models.ConsultationBooking{
			ID:             uuid.New(),
			SlotID:         slot.ID,
			CoachID:        slot.CoachID,
			EmployeeID:     requesterID,
			OrganizationID: orgID,
			Status:         models.BookingConfirmed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		room, err := t.rooms.Reserve(ctx, meeting.Request{
			BookingID:  b.ID,
			CoachID:    b.CoachID,
			EmployeeID: b.EmployeeID,
			StartsAt:   slot.StartTime,
			EndsAt:     slot.EndTime,
		})
		if err != nil {
			return fmt.Errorf("reserve meeting room: %w", err)
		}
		reserved = true
		res.Reservation = room
		b.MeetingRoomID = room.RoomID

		if err := tx.InsertBooking(ctx, &b); err != nil {
			return err
		}
		if err := tx.SetSlotStatus(ctx, slot.ID, models.SlotBooked, now); err != nil {
			return err
		}
		slot.Status, slot.UpdatedAt = models.SlotBooked, now
		res.Booking, res.Slot = b, *slot
		return nil
	})
	if err != nil {
		if reserved {
			t.release(ctx, res.Reservation.RoomID)
		}
		return nil, err
	}

	t.publish(ctx, queue.BookingEvent{
		Type:           queue.JobTypeBookingConfirmed,
		BookingID:      res.Booking.ID,
		SlotID:         res.Slot.ID,
		CoachID:        res.Booking.CoachID,
		EmployeeID:     res.Booking.EmployeeID,
		OrganizationID: res.Booking.OrganizationID,
		StartsAt:       res.Slot.StartTime,
		EndsAt:         res.Slot.EndTime,
		MeetingRoomID:  res.Booking.MeetingRoomID,
		ActorID:        requesterID,
		OccurredAt:     res.Booking.CreatedAt,
	})
	return &res, nil
}

// CancelBooking cancels a CONFIRMED booking before its session starts and frees the slot.
// requesterID must be the caller and either the booking's employee or its coach.
func (t *Transactor) CancelBooking(ctx context.Context, bookingID, requesterID uuid.UUID, reason string) (*CancelResult, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if tc.ActorID() != requesterID {
		return nil, ErrNotBookingOwner
	}

	var res CancelResult
	err = t.run(ctx, opCancel, func(ctx context.Context, tx Tx) error {
		slot, b, err := lockBookingAndSlot(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.EmployeeID != requesterID && b.CoachID != requesterID {
			return ErrNotBookingOwner
		}
		switch b.Status {
		case models.BookingConfirmed:
		case models.BookingCancelled:
			return ErrAlreadyCancelled
		default:
			return ErrBookingNotActive
		}
		now := t.now()
		if !slot.StartTime.After(now) {
			return ErrSessionStarted
		}
		if err := tx.CancelBooking(ctx, b.ID, requesterID, now, reason); err != nil {
			return err
		}
		if err := tx.SetSlotStatus(ctx, slot.ID, models.SlotAvailable, now); err != nil {
			return err
		}
		by := requesterID
		b.Status, b.CancelledBy, b.CancelledAt, b.UpdatedAt = models.BookingCancelled, &by, &now, now
		b.CancellationReason = &reason
		slot.Status, slot.UpdatedAt = models.SlotAvailable, now
		res.Booking, res.Slot = *b, *slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.publish(ctx, queue.BookingEvent{
		Type:           queue.JobTypeBookingCancelled,
		BookingID:      res.Booking.ID,
		SlotID:         res.Slot.ID,
		CoachID:        res.Booking.CoachID,
		EmployeeID:     res.Booking.EmployeeID,
		OrganizationID: res.Booking.OrganizationID,
		StartsAt:       res.Slot.StartTime,
		EndsAt:         res.Slot.EndTime,
		MeetingRoomID:  res.Booking.MeetingRoomID,
		ActorID:        requesterID,
		Reason:         reason,
		OccurredAt:     *res.Booking.CancelledAt,
		CancelledBy:    res.Booking.CancelledBy,
	})
	return &res, nil
}

// CompleteBooking marks a CONFIRMED booking COMPLETED once its slot has ended.
// The slot stays BOOKED. Only the booking's coach or an ADMIN may complete it.
func (t *Transactor) CompleteBooking(ctx context.Context, bookingID uuid.UUID) (*models.ConsultationBooking, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !tc.IsAdmin() && tc.Role() != models.RoleCoach {
		return nil, fmt.Errorf("%w: only the coach may complete a session", ErrForbidden)
	}

	var (
		out  models.ConsultationBooking
		slot models.CoachSlot
	)
	err = t.run(ctx, opComplete, func(ctx context.Context, tx Tx) error {
		s, b, err := lockBookingAndSlot(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !tc.IsAdmin() && b.CoachID != tc.ActorID() {
			return ErrNotBookingOwner
		}
		switch b.Status {
		case models.BookingConfirmed:
		case models.BookingCancelled:
			return ErrAlreadyCancelled
		default:
			return ErrBookingNotActive
		}
		now := t.now()
		if now.Before(s.EndTime) {
			return ErrNotCompletable
		}
		if err := tx.CompleteBooking(ctx, b.ID, now); err != nil {
			return err
		}
		b.Status, b.CompletedAt, b.UpdatedAt = models.BookingCompleted, &now, now
		out, slot = *b, *s
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.publish(ctx, queue.BookingEvent{
		Type:           queue.JobTypeBookingCompleted,
		BookingID:      out.ID,
		SlotID:         slot.ID,
		CoachID:        out.CoachID,
		EmployeeID:     out.EmployeeID,
		OrganizationID: out.OrganizationID,
		StartsAt:       slot.StartTime,
		EndsAt:         slot.EndTime,
		ActorID:        tc.ActorID(),
		OccurredAt:     *out.CompletedAt,
	})
	return &out, nil
}

// GetSlot returns one slot.
func (t *Transactor) GetSlot(ctx context.Context, id uuid.UUID) (*models.CoachSlot, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	return t.store.GetSlot(ctx, id)
}

// ListSlots returns a coach's slots starting in [from, to), earliest first.
func (t *Transactor) ListSlots(ctx context.Context, coachID uuid.UUID, from, to time.Time) ([]models.CoachSlot, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidSlot)
	}
	return t.store.ListSlots(ctx, SlotQuery{CoachID: coachID, From: from, To: to})
}

// lockBookingAndSlot locks the booking's slot before the booking itself.
func lockBookingAndSlot(ctx context.Context, tx Tx, bookingID uuid.UUID) (*models.CoachSlot, *models.ConsultationBooking, error) {
	pre, err := tx.FindBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	slot, err := tx.LockSlot(ctx, pre.SlotID)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	return slot, b, nil
}

func ownsSlot(tc tenant.Context, slot *models.CoachSlot) error {
	if tc.IsAdmin() || (tc.Role() == models.RoleCoach && tc.ActorID() == slot.CoachID) {
		return nil
	}
	return fmt.Errorf("%w: slot belongs to another coach", ErrForbidden)
}

// maxTxAttempts bounds how often run restarts a transaction after a serialization failure.
const maxTxAttempts = 3

// run executes fn in one transaction bounded by TxTimeout and commits it. A
// serialization failure restarts fn on a fresh snapshot, so a request that lost
// a race re-reads the winner's committed state and fails its own checks.
func (t *Transactor) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) (err error) {
	start := time.Now()
	defer func() { t.observe(ctx, op, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.TxTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err = t.attempt(ctx, op, fn)
		if !errors.Is(err, ErrSerialization) || attempt >= maxTxAttempts || ctx.Err() != nil {
			return err
		}
		t.logger.Debug("booking transaction restarted",
			zap.String("operation", op), zap.Int("attempt", attempt), zap.Error(err))
	}
}

func (t *Transactor) attempt(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := t.store.Begin(ctx, TxOptions{LockTimeout: t.cfg.LockTimeout, StatementTimeout: t.cfg.TxTimeout})
	if err != nil {
		return classify(ctx, "begin", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, tx); err != nil {
		return classify(ctx, op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(ctx, "commit", err)
	}
	return nil
}

// classify turns deadline expiry into ErrTransient and leaves typed errors alone.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return transient(op, err)
	}
	return err
}

func (t *Transactor) observe(ctx context.Context, op string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	fields := []zap.Field{zap.String("operation", op), zap.Duration("took", time.Since(start))}
	if tc, ok := tenant.FromContext(ctx); ok {
		fields = append(fields, zap.Stringer("actor", tc))
	}
	switch {
	case err == nil:
		t.logger.Info("booking operation committed", fields...)
	case errors.Is(err, ErrConflict):
		outcome = metrics.OutcomeConflict
		t.logger.Info("booking operation conflicted", append(fields, zap.Error(err))...)
	case errors.Is(err, ErrTransient):
		outcome = metrics.OutcomeTransient
		t.logger.Warn("booking operation aborted, retryable", append(fields, zap.Error(err))...)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidSlot),
		errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrBookingNotFound):
		outcome = metrics.OutcomeRejected
		t.logger.Info("booking operation rejected", append(fields, zap.Error(err))...)
	default:
		outcome = metrics.OutcomeError
		t.logger.Error("booking operation failed", append(fields, zap.Error(err))...)
	}
	t.metrics.BookingDone(op, outcome, start)
}

func (t *Transactor) release(ctx context.Context, roomID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.NotifyTimeout)
	defer cancel()
	if err := t.rooms.Release(ctx, roomID); err != nil {
		t.logger.Warn("meeting room release failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// publish is best effort. A committed change is never undone by a failed enqueue.
func (t *Transactor) publish(ctx context.Context, ev queue.BookingEvent) {
	if t.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.NotifyTimeout)
	defer cancel()
	if err := t.events.EnqueueBookingEvent(ctx, ev); err != nil {
		t.logger.Warn("booking event not published",
			zap.String("type", string(ev.Type)),
			zap.String("booking_id", ev.BookingID.String()),
			zap.Error(err),
		)
	}
}
