package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/transfer"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// RepositoryPort abstracts delivery persistence.
type RepositoryPort interface {
	EnsureForTransfer(ctx context.Context, delivery Delivery) (Delivery, error)
	InsertEvent(ctx context.Context, event Event) error
	GetByTransfer(ctx context.Context, transferID string) (Delivery, error)
}

// Service persists transfer status events into the delivery log. It runs on
// the worker side of the queue.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	clock   shared.Clock
	printer *message.Printer
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, clock shared.Clock) *Service {
	return &Service{
		logger:  logger,
		repo:    repo,
		clock:   clock.OrSystem(),
		printer: message.NewPrinter(language.English),
	}
}

// HandleEvent appends one event to the delivery of the transfer, creating
// the delivery on first contact.
func (s *Service) HandleEvent(ctx context.Context, payload jobs.DeliveryEventPayload) error {
	d, err := s.repo.EnsureForTransfer(ctx, Delivery{
		ID:         uuid.NewString(),
		TransferID: payload.TransferID,
		CreatedAt:  s.clock(),
	})
	if err != nil {
		return err
	}

	event := Event{
		ID:         uuid.NewString(),
		DeliveryID: d.ID,
		Type:       payload.Type,
		Message:    s.describe(payload),
		Meta: map[string]any{
			"transfer_id": payload.TransferID,
			"number":      payload.Number,
			"expected":    payload.Expected,
			"received":    payload.Received,
			"missing":     payload.Missing,
		},
		CreatedAt: payload.At,
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock()
	}
	if payload.JourneyID != nil {
		event.Meta["journey_id"] = *payload.JourneyID
	}
	return s.repo.InsertEvent(ctx, event)
}

// TaskHandler adapts HandleEvent to the job queue.
func (s *Service) TaskHandler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := jobs.DecodeDeliveryEvent(t)
		if err != nil {
			s.logger.Error("decode delivery event", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := s.HandleEvent(ctx, payload); err != nil {
			s.logger.Error("persist delivery event",
				slog.String("transfer_id", payload.TransferID), slog.Any("error", err))
			return err
		}
		return nil
	}
}

// GetByTransfer loads the delivery linked to a transfer, with its events.
func (s *Service) GetByTransfer(ctx context.Context, transferID string) (Delivery, error) {
	return s.repo.GetByTransfer(ctx, transferID)
}

func (s *Service) describe(p jobs.DeliveryEventPayload) string {
	switch p.Type {
	case transfer.EventShipped:
		return s.printer.Sprintf("Transfer %s shipped with %d units expected", p.Number, p.Expected)
	case transfer.EventPartiallyReceived:
		return s.printer.Sprintf("Transfer %s partially received: %d of %d units, %d outstanding", p.Number, p.Received, p.Expected, p.Missing)
	case transfer.EventReceived:
		return s.printer.Sprintf("Transfer %s fully received: %d units", p.Number, p.Received)
	default:
		return s.printer.Sprintf("Transfer %s: %s", p.Number, p.Type)
	}
}
