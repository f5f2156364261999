package delivery

import "time"

// Delivery is the dispatch document linked 1:1 to a transfer. Trip and stop
// planning belong to an external dispatcher; the core only keeps the event
// log it pushes status changes into.
type Delivery struct {
	ID         string    `json:"id"`
	TransferID string    `json:"transfer_id"`
	CreatedAt  time.Time `json:"created_at"`
	Events     []Event   `json:"events"`
}

// Event is one logged status change, with a human-readable message and the
// structured totals it was rendered from.
type Event struct {
	ID         string         `json:"id"`
	DeliveryID string         `json:"delivery_id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
