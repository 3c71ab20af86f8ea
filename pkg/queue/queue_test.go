package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueBookingEvent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	ev := BookingEvent{
		Type:           JobTypeBookingConfirmed,
		BookingID:      uuid.New(),
		SlotID:         uuid.New(),
		CoachID:        uuid.New(),
		EmployeeID:     uuid.New(),
		OrganizationID: uuid.New(),
		StartsAt:       time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:         time.Date(2030, 5, 1, 11, 0, 0, 0, time.UTC),
		MeetingRoomID:  "consult-1",
	}
	require.NoError(t, q.EnqueueBookingEvent(ctx, ev))

	n, err := q.Len(ctx, QueueNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeBookingConfirmed, job.Type)
	assert.Equal(t, 0, job.Attempt)

	got, err := DecodeBookingEvent(job)
	require.NoError(t, err)
	assert.Equal(t, ev.BookingID, got.BookingID)
	assert.True(t, ev.StartsAt.Equal(got.StartsAt))
	assert.Equal(t, "consult-1", got.MeetingRoomID)
}

func TestEnqueueRejectsUntypedEvent(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.Error(t, q.EnqueueBookingEvent(context.Background(), BookingEvent{BookingID: uuid.New()}))
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	job := &Job{ID: "job-1", Type: JobTypeBookingCancelled}

	for i := 1; i < MaxRetries; i++ {
		dead, err := q.Retry(ctx, job)
		require.NoError(t, err)
		assert.False(t, dead)
		assert.Equal(t, i, job.Attempt)
	}
	dead, err := q.Retry(ctx, job)
	require.NoError(t, err)
	assert.True(t, dead)

	pending, err := q.Len(ctx, QueueNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxRetries-1), pending)
	dlq, err := q.Len(ctx, QueueDLQ)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlq)
}

func TestDequeueMalformedEntryGoesToDLQ(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	_, err := mr.Lpush(QueueNotifications, "{not json")
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)

	dlq, err := q.Len(ctx, QueueDLQ)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlq)
}
