package delivery

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/transfer"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// EnqueuerPort abstracts the job client used for event fan-out.
type EnqueuerPort interface {
	EnqueueDeliveryEvent(ctx context.Context, payload jobs.DeliveryEventPayload) (*asynq.TaskInfo, error)
}

// Sink implements transfer.EventSink by handing events to the job queue.
// Enqueue failures are logged and returned; the caller decides whether the
// already-committed transfer should care.
type Sink struct {
	logger   *slog.Logger
	enqueuer EnqueuerPort
}

// NewSink constructs Sink.
func NewSink(logger *slog.Logger, enqueuer EnqueuerPort) *Sink {
	return &Sink{logger: logger, enqueuer: enqueuer}
}

// Publish enqueues the event for asynchronous persistence.
func (s *Sink) Publish(ctx context.Context, event transfer.Event) error {
	if s.enqueuer == nil {
		return nil
	}
	_, err := s.enqueuer.EnqueueDeliveryEvent(ctx, jobs.DeliveryEventPayload{
		Type:       event.Type,
		TransferID: event.TransferID,
		Number:     event.Number,
		JourneyID:  event.JourneyID,
		Expected:   event.Expected,
		Received:   event.Received,
		Missing:    event.Missing,
		At:         event.At,
	})
	if err != nil {
		s.logger.Warn("enqueue delivery event",
			slog.String("transfer_id", event.TransferID), slog.String("type", event.Type), slog.Any("error", err))
	}
	return err
}
