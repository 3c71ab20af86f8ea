package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/pkg/metrics"
	"github.com/ledgerwise/coaching-backend/pkg/queue"
)

// Job statuses recorded per processed job.
const (
	statusDelivered = "delivered"
	statusRetried   = "retried"
	statusDead      = "dead"
	statusSkipped   = "skipped"
)

// Relay consumes booking events from the notification queue and hands them to a Notifier.
// Delivery is best effort: a failed job is retried up to queue.MaxRetries times and then
// parked in the DLQ. Booking state is never touched here.
type Relay struct {
	queue    *queue.Queue
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewRelay creates a notification relay.
func NewRelay(q *queue.Queue, n Notifier, m *metrics.Metrics, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = NewLogNotifier(logger)
	}
	return &Relay{
		queue:       q,
		notifier:    n,
		metrics:     m,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process executes one notification job.
func (r *Relay) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeBookingConfirmed, queue.JobTypeBookingCancelled, queue.JobTypeBookingCompleted:
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	ev, err := queue.DecodeBookingEvent(job)
	if err != nil {
		return err
	}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		return fmt.Errorf("notify %s: %w", ev.BookingID, err)
	}
	return nil
}

// ProcessNext waits for one job and processes it. It reports whether a job was taken off the queue.
func (r *Relay) ProcessNext(ctx context.Context) (bool, error) {
	job, err := r.queue.Dequeue(ctx, r.pollTimeout)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}

	r.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	perr := r.Process(ctx, job)
	if perr == nil {
		r.metrics.RelayJob(string(job.Type), statusDelivered)
		return true, nil
	}

	r.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(perr))
	dead, err := r.queue.Retry(ctx, job)
	switch {
	case err != nil:
		r.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		r.metrics.RelayJob(string(job.Type), statusSkipped)
	case dead:
		r.metrics.RelayJob(string(job.Type), statusDead)
	default:
		r.metrics.RelayJob(string(job.Type), statusRetried)
	}
	return true, perr
}

// Run starts the worker loop until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("notification relay stopping")
			return
		default:
		}

		_, err := r.ProcessNext(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(r.backoff):
		}
	}
}
