package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ledgerwise/coaching-backend/pkg/metrics"
	"github.com/ledgerwise/coaching-backend/pkg/queue"
)

type recorder struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (r *recorder) Notify(_ context.Context, ev queue.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestRelay(t *testing.T, n Notifier) (*Relay, *queue.Queue, *metrics.Metrics) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.NewQueue(client, nil)
	m := metrics.New("test")
	r := NewRelay(q, n, m, nil)
	r.pollTimeout = 50 * time.Millisecond
	r.backoff = time.Millisecond
	return r, q, m
}

func event(typ queue.JobType) queue.BookingEvent {
	return queue.BookingEvent{
		Type:       typ,
		BookingID:  uuid.New(),
		SlotID:     uuid.New(),
		CoachID:    uuid.New(),
		EmployeeID: uuid.New(),
		StartsAt:   time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:     time.Date(2030, 5, 1, 11, 0, 0, 0, time.UTC),
	}
}

func relayCount(t *testing.T, m *metrics.Metrics, jobType, status string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "test_notification_jobs_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["type"] == jobType && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRelay_DeliversEvent(t *testing.T) {
	n := &recorder{}
	r, q, m := newTestRelay(t, n)
	ctx := context.Background()

	ev := event(queue.JobTypeBookingConfirmed)
	require.NoError(t, q.EnqueueBookingEvent(ctx, ev))

	took, err := r.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	require.Equal(t, 1, n.count())
	assert.Equal(t, ev.BookingID, n.events[0].BookingID)
	assert.Equal(t, float64(1), relayCount(t, m, string(queue.JobTypeBookingConfirmed), statusDelivered))
}

func TestRelay_EmptyQueue(t *testing.T) {
	r, _, _ := newTestRelay(t, &recorder{})
	took, err := r.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, took)
}

func TestRelay_FailingNotifierEndsInDLQ(t *testing.T) {
	n := &recorder{err: errors.New("smtp down")}
	r, q, m := newTestRelay(t, n)
	ctx := context.Background()
	require.NoError(t, q.EnqueueBookingEvent(ctx, event(queue.JobTypeBookingCancelled)))

	for i := 0; i < queue.MaxRetries; i++ {
		took, err := r.ProcessNext(ctx)
		assert.True(t, took)
		assert.ErrorContains(t, err, "smtp down")
	}

	pending, err := q.Len(ctx, queue.QueueNotifications)
	require.NoError(t, err)
	assert.Zero(t, pending)
	dead, err := q.Len(ctx, queue.QueueDLQ)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
	typ := string(queue.JobTypeBookingCancelled)
	assert.Equal(t, float64(queue.MaxRetries-1), relayCount(t, m, typ, statusRetried))
	assert.Equal(t, float64(1), relayCount(t, m, typ, statusDead))
}

func TestRelay_UnknownJobType(t *testing.T) {
	r, _, _ := newTestRelay(t, &recorder{})
	err := r.Process(context.Background(), &queue.Job{ID: "x", Type: "slot.reminder"})
	assert.ErrorContains(t, err, "unknown job type")
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	n := &recorder{}
	r, q, _ := newTestRelay(t, n)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	require.NoError(t, q.EnqueueBookingEvent(ctx, event(queue.JobTypeBookingCompleted)))
	require.NoError(t, q.EnqueueBookingEvent(ctx, event(queue.JobTypeBookingConfirmed)))

	assert.Eventually(t, func() bool { return n.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	ev := event(queue.JobTypeBookingConfirmed)
	ev.MeetingRoomID = "consult-abc"
	require.NoError(t, n.Notify(context.Background(), ev))

	entries := logs.FilterMessage("booking notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "consult-abc", entries[0].ContextMap()["meeting_room_id"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, ev), context.Canceled)
}
