package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerwise/coaching-backend/internal/models"
)

var errTxDone = errors.New("booking: transaction already finished")

// rowLock is an exclusive row lock. done is closed on release.
type rowLock struct {
	owner *memTx
	done  chan struct{}
}

// MemoryStore is an in-process Store with row locks held until commit.
// Writes are buffered per transaction and applied atomically on Commit.
type MemoryStore struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]models.CoachSlot
	bookings map[uuid.UUID]models.ConsultationBooking
	locks    map[string]*rowLock
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:    map[uuid.UUID]models.CoachSlot{},
		bookings: map[uuid.UUID]models.ConsultationBooking{},
		locks:    map[string]*rowLock{},
	}
}

// PutSlot seeds a slot outside any transaction.
func (s *MemoryStore) PutSlot(slot models.CoachSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = slot
}

// PutBooking seeds a booking outside any transaction.
func (s *MemoryStore) PutBooking(b models.ConsultationBooking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// Bookings returns all committed bookings of a slot.
func (s *MemoryStore) Bookings(slotID uuid.UUID) []models.ConsultationBooking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConsultationBooking
	for _, b := range s.bookings {
		if b.SlotID == slotID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetSlot implements Store.
func (s *MemoryStore) GetSlot(_ context.Context, id uuid.UUID) (*models.CoachSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &slot, nil
}

// ListSlots implements Store.
func (s *MemoryStore) ListSlots(_ context.Context, q SlotQuery) ([]models.CoachSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterSlots(s.slots, nil, q), nil
}

// Begin implements Store.
func (s *MemoryStore) Begin(ctx context.Context, opts TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{
		store:    s,
		opts:     opts,
		slots:    map[uuid.UUID]*models.CoachSlot{},
		bookings: map[uuid.UUID]models.ConsultationBooking{},
	}, nil
}

// memTx buffers writes. A nil entry in slots marks a deletion.
type memTx struct {
	store    *MemoryStore
	opts     TxOptions
	held     []string
	slots    map[uuid.UUID]*models.CoachSlot
	bookings map[uuid.UUID]models.ConsultationBooking
	done     bool
}

func (tx *memTx) acquire(ctx context.Context, key string) error {
	if tx.done {
		return errTxDone
	}
	if tx.opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tx.opts.LockTimeout)
		defer cancel()
	}
	s := tx.store
	for {
		s.mu.Lock()
		l, ok := s.locks[key]
		if !ok {
			s.locks[key] = &rowLock{owner: tx, done: make(chan struct{})}
			s.mu.Unlock()
			tx.held = append(tx.held, key)
			return nil
		}
		if l.owner == tx {
			s.mu.Unlock()
			return nil
		}
		wait := l.done
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return transient("lock "+key, ctx.Err())
		}
	}
}

// releaseLocked must run with store.mu held.
func (tx *memTx) releaseLocked() {
	for _, key := range tx.held {
		if l, ok := tx.store.locks[key]; ok && l.owner == tx {
			delete(tx.store.locks, key)
			close(l.done)
		}
	}
	tx.held = nil
	tx.done = true
}

func (tx *memTx) slot(id uuid.UUID) (*models.CoachSlot, bool) {
	if s, ok := tx.slots[id]; ok {
		if s == nil {
			return nil, false
		}
		cp := *s
		return &cp, true
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	s, ok := tx.store.slots[id]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (tx *memTx) booking(id uuid.UUID) (*models.ConsultationBooking, bool) {
	if b, ok := tx.bookings[id]; ok {
		return &b, true
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	b, ok := tx.store.bookings[id]
	if !ok {
		return nil, false
	}
	return &b, true
}

func (tx *memTx) LockCoach(ctx context.Context, coachID uuid.UUID) error {
	return tx.acquire(ctx, "coach:"+coachID.String())
}

func (tx *memTx) LockSlot(ctx context.Context, id uuid.UUID) (*models.CoachSlot, error) {
	if err := tx.acquire(ctx, "slot:"+id.String()); err != nil {
		return nil, err
	}
	s, ok := tx.slot(id)
	if !ok {
		return nil, ErrSlotNotFound
	}
	return s, nil
}

func (tx *memTx) FindBooking(_ context.Context, id uuid.UUID) (*models.ConsultationBooking, error) {
	if tx.done {
		return nil, errTxDone
	}
	b, ok := tx.booking(id)
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (tx *memTx) LockBooking(ctx context.Context, id uuid.UUID) (*models.ConsultationBooking, error) {
	if err := tx.acquire(ctx, "booking:"+id.String()); err != nil {
		return nil, err
	}
	b, ok := tx.booking(id)
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (tx *memTx) ListSlots(_ context.Context, q SlotQuery) ([]models.CoachSlot, error) {
	if tx.done {
		return nil, errTxDone
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return filterSlots(tx.store.slots, tx.slots, q), nil
}

func (tx *memTx) InsertSlot(_ context.Context, slot *models.CoachSlot) error {
	if tx.done {
		return errTxDone
	}
	cp := *slot
	tx.slots[slot.ID] = &cp
	return nil
}

func (tx *memTx) SetSlotStatus(_ context.Context, id uuid.UUID, status models.SlotStatus, at time.Time) error {
	if tx.done {
		return errTxDone
	}
	s, ok := tx.slot(id)
	if !ok {
		return ErrSlotNotFound
	}
	s.Status, s.UpdatedAt = status, at
	tx.slots[id] = s
	return nil
}

func (tx *memTx) DeleteSlot(_ context.Context, id uuid.UUID) error {
	if tx.done {
		return errTxDone
	}
	if _, ok := tx.slot(id); !ok {
		return ErrSlotNotFound
	}
	tx.store.mu.Lock()
	for _, b := range tx.store.bookings {
		if b.SlotID == id {
			tx.store.mu.Unlock()
			return ErrSlotHasHistory
		}
	}
	tx.store.mu.Unlock()
	tx.slots[id] = nil
	return nil
}

func (tx *memTx) InsertBooking(_ context.Context, b *models.ConsultationBooking) error {
	if tx.done {
		return errTxDone
	}
	live := func(other models.ConsultationBooking) bool {
		return other.SlotID == b.SlotID && other.Status != models.BookingCancelled
	}
	for _, other := range tx.bookings {
		if live(other) {
			return ErrSlotNotAvailable
		}
	}
	tx.store.mu.Lock()
	for id, other := range tx.store.bookings {
		if _, shadowed := tx.bookings[id]; !shadowed && live(other) {
			tx.store.mu.Unlock()
			return ErrSlotNotAvailable
		}
	}
	tx.store.mu.Unlock()
	tx.bookings[b.ID] = *b
	return nil
}

func (tx *memTx) CancelBooking(_ context.Context, id, by uuid.UUID, at time.Time, reason string) error {
	if tx.done {
		return errTxDone
	}
	b, ok := tx.booking(id)
	if !ok || b.Status != models.BookingConfirmed {
		return ErrBookingNotActive
	}
	b.Status, b.CancelledBy, b.CancelledAt, b.CancellationReason, b.UpdatedAt = models.BookingCancelled, &by, &at, &reason, at
	tx.bookings[id] = *b
	return nil
}

func (tx *memTx) CompleteBooking(_ context.Context, id uuid.UUID, at time.Time) error {
	if tx.done {
		return errTxDone
	}
	b, ok := tx.booking(id)
	if !ok || b.Status != models.BookingConfirmed {
		return ErrBookingNotActive
	}
	b.Status, b.CompletedAt, b.UpdatedAt = models.BookingCompleted, &at, at
	tx.bookings[id] = *b
	return nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return errTxDone
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		tx.releaseLocked()
		return transient("commit", err)
	}
	for id, slot := range tx.slots {
		if slot == nil {
			delete(s.slots, id)
			continue
		}
		s.slots[id] = *slot
	}
	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	tx.releaseLocked()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.releaseLocked()
	return nil
}

// filterSlots merges committed slots with a transaction overlay and applies q.
func filterSlots(base map[uuid.UUID]models.CoachSlot, overlay map[uuid.UUID]*models.CoachSlot, q SlotQuery) []models.CoachSlot {
	merged := make(map[uuid.UUID]models.CoachSlot, len(base)+len(overlay))
	for id, s := range base {
		merged[id] = s
	}
	for id, s := range overlay {
		if s == nil {
			delete(merged, id)
			continue
		}
		merged[id] = *s
	}
	out := make([]models.CoachSlot, 0)
	for _, s := range merged {
		if q.CoachID != uuid.Nil && s.CoachID != q.CoachID {
			continue
		}
		if !q.From.IsZero() && s.StartTime.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !s.StartTime.Before(q.To) {
			continue
		}
		if q.Status != "" && s.Status != q.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

var _ Store = (*MemoryStore)(nil)
