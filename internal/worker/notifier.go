package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/pkg/queue"
)

// Notifier delivers one booking event to the participants.
type Notifier interface {
	Notify(ctx context.Context, ev queue.BookingEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev queue.BookingEvent) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev queue.BookingEvent) error { return f(ctx, ev) }

// LogNotifier writes events to the log. It is the default until a mail or push channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, ev queue.BookingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("booking notification",
		zap.String("type", string(ev.Type)),
		zap.String("booking_id", ev.BookingID.String()),
		zap.String("coach_id", ev.CoachID.String()),
		zap.String("employee_id", ev.EmployeeID.String()),
		zap.Time("starts_at", ev.StartsAt),
		zap.String("meeting_room_id", ev.MeetingRoomID),
	)
	return nil
}
