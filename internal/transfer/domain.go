package transfer

import (
	"time"
)

// Status enumerates transfer lifecycle states. Status only moves forward;
// RECEIVED and CANCELLED are terminal.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusShipped           Status = "SHIPPED"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
	StatusCancelled         Status = "CANCELLED"
)

// CanShip reports whether a ship is allowed from this status.
func (s Status) CanShip() bool { return s == StatusDraft }

// CanReceive reports whether a receive is allowed from this status.
func (s Status) CanReceive() bool {
	return s == StatusShipped || s == StatusPartiallyReceived
}

// CanCancel reports whether the transfer may still be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusShipped || s == StatusPartiallyReceived
}

// Transfer moves stock between two warehouses. A journey is two transfers
// sharing a journey id, routed through the transit waypoint.
type Transfer struct {
	ID              string     `json:"id"`
	Number          string     `json:"number"`
	Status          Status     `json:"status"`
	FromWarehouseID string     `json:"from_warehouse_id"`
	ToWarehouseID   string     `json:"to_warehouse_id"`
	JourneyID       *string    `json:"journey_id,omitempty"`
	Purpose         string     `json:"purpose,omitempty"`
	Note            string     `json:"note,omitempty"`
	ShippedAt       *time.Time `json:"shipped_at,omitempty"`
	ReceivedAt      *time.Time `json:"received_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Lines           []Line     `json:"lines"`
}

// Line is one product position on a transfer. QtyReceived accumulates across
// partial receipts and never exceeds Qty.
type Line struct {
	ID          string `json:"id"`
	TransferID  string `json:"transfer_id"`
	ProductID   string `json:"product_id"`
	Qty         int64  `json:"qty"`
	QtyReceived int64  `json:"qty_received"`
	Note        string `json:"note,omitempty"`
}

// Remaining returns the quantity still expected on the line.
func (l Line) Remaining() int64 { return l.Qty - l.QtyReceived }

// FullyReceived reports whether every line has been received in full.
func (t Transfer) FullyReceived() bool {
	for _, l := range t.Lines {
		if l.QtyReceived < l.Qty {
			return false
		}
	}
	return len(t.Lines) > 0
}

// Totals sums expected and received quantities across all lines.
func (t Transfer) Totals() (expected, received int64) {
	for _, l := range t.Lines {
		expected += l.Qty
		received += l.QtyReceived
	}
	return expected, received
}

// CreateInput describes a requested transfer draft.
type CreateInput struct {
	FromWarehouseID string
	ToWarehouseID   string
	Purpose         string
	Note            string
	Lines           []LineInput
	ActorID         string
}

// LineInput is one requested line.
type LineInput struct {
	ProductID string
	Qty       int64
	Note      string
}

// ReceiveInput carries the received quantities of one receipt.
type ReceiveInput struct {
	Lines   []ReceiptLine
	Note    string
	ActorID string
}

// ReceiptLine reports how many units of one product arrived.
type ReceiptLine struct {
	ProductID   string
	QtyReceived int64
}

// Journey pairs the two legs created by CreateJourney.
type Journey struct {
	JourneyID string   `json:"journey_id"`
	Outbound  Transfer `json:"outbound"`
	Inbound   Transfer `json:"inbound"`
}

// Filter narrows transfer listings.
type Filter struct {
	Status      Status
	WarehouseID string
	JourneyID   string
	Limit       int
}
