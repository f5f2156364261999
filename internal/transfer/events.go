package transfer

import (
	"context"
	"time"
)

// Event types pushed to the delivery sink on status transitions.
const (
	EventShipped           = "TRANSFER_SHIPPED"
	EventPartiallyReceived = "TRANSFER_PARTIALLY_RECEIVED"
	EventReceived          = "TRANSFER_RECEIVED"
)

// Event is a status-change notification for the delivery linked to a
// transfer. Fire-and-forget: correctness never depends on delivery.
type Event struct {
	Type       string    `json:"type"`
	TransferID string    `json:"transfer_id"`
	Number     string    `json:"number"`
	JourneyID  *string   `json:"journey_id,omitempty"`
	Expected   int64     `json:"expected"`
	Received   int64     `json:"received"`
	Missing    int64     `json:"missing"`
	At         time.Time `json:"at"`
}

// EventSink receives transfer status events. Implemented by the delivery
// module.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}
