package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDeliveryEvent is the task type for transfer status fan-out.
	TaskDeliveryEvent = "delivery:event"
)

// DeliveryEventPayload carries one transfer status event to the worker.
type DeliveryEventPayload struct {
	Type       string    `json:"type"`
	TransferID string    `json:"transfer_id"`
	Number     string    `json:"number"`
	JourneyID  *string   `json:"journey_id,omitempty"`
	Expected   int64     `json:"expected"`
	Received   int64     `json:"received"`
	Missing    int64     `json:"missing"`
	At         time.Time `json:"at"`
}

// NewDeliveryEventTask constructs an Asynq task.
func NewDeliveryEventTask(payload DeliveryEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliveryEvent, data), nil
}

// DecodeDeliveryEvent parses a delivery-event task payload.
func DecodeDeliveryEvent(t *asynq.Task) (DeliveryEventPayload, error) {
	var payload DeliveryEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return DeliveryEventPayload{}, err
	}
	return payload, nil
}
