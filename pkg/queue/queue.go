package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueNotifications is the Redis list key for booking notification jobs.
	QueueNotifications = "worker:notifications"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeBookingConfirmed JobType = "booking.confirmed"
	JobTypeBookingCancelled JobType = "booking.cancelled"
	JobTypeBookingCompleted JobType = "booking.completed"
)

// BookingEvent is the payload of every booking notification job.
type BookingEvent struct {
	Type           JobType    `json:"type"`
	BookingID      uuid.UUID  `json:"booking_id"`
	SlotID         uuid.UUID  `json:"slot_id"`
	CoachID        uuid.UUID  `json:"coach_id"`
	EmployeeID     uuid.UUID  `json:"employee_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	MeetingRoomID  string     `json:"meeting_room_id,omitempty"`
	ActorID        uuid.UUID  `json:"actor_id"`
	Reason         string     `json:"reason,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
	CancelledBy    *uuid.UUID `json:"cancelled_by,omitempty"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueBookingEvent enqueues a notification job for a committed booking change.
func (q *Queue) EnqueueBookingEvent(ctx context.Context, ev BookingEvent) error {
	if ev.Type == "" {
		return errors.New("queue: booking event without type")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      ev.Type,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueNotifications, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued booking event",
		zap.String("job_id", job.ID),
		zap.String("type", string(ev.Type)),
		zap.String("booking_id", ev.BookingID.String()),
	)
	return nil
}

// Dequeue blocks up to timeout for a job. A nil job with a nil error means nothing arrived
// or the entry was malformed.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueNotifications).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		if dlqErr := q.client.RPush(ctx, QueueDLQ, result[1]).Err(); dlqErr != nil {
			q.logger.Error("dlq push failed", zap.Error(dlqErr))
		}
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
// It reports whether the job went to the DLQ.
func (q *Queue) Retry(ctx context.Context, job *Job) (bool, error) {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return false, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.client.RPush(ctx, QueueNotifications, raw).Err(); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}

// Len returns the number of pending jobs in key.
func (q *Queue) Len(ctx context.Context, key string) (int64, error) {
	return q.client.LLen(ctx, key).Result()
}

// DecodeBookingEvent unmarshals the payload of a booking job.
func DecodeBookingEvent(job *Job) (BookingEvent, error) {
	var ev BookingEvent
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		return BookingEvent{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return ev, nil
}
