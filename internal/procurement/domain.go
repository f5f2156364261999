package procurement

import "time"

// Status enumerates purchase order states.
type Status string

const (
	StatusOrdered           Status = "ORDERED"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
	StatusCancelled         Status = "CANCELLED"
)

// CanReceive reports whether goods may still be booked in.
func (s Status) CanReceive() bool {
	return s == StatusOrdered || s == StatusPartiallyReceived
}

// PurchaseOrder tracks goods expected from a supplier. Supplier identity and
// pricing live with external collaborators.
type PurchaseOrder struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Status      Status     `json:"status"`
	WarehouseID string     `json:"warehouse_id"`
	SupplierRef string     `json:"supplier_ref,omitempty"`
	Note        string     `json:"note,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Lines       []Line     `json:"lines"`
}

// Line is one ordered product position. QtyReceived accumulates across
// partial receipts and never exceeds QtyOrdered.
type Line struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	QtyOrdered  int64  `json:"qty_ordered"`
	QtyReceived int64  `json:"qty_received"`
}

// Remaining returns the quantity still expected on the line.
func (l Line) Remaining() int64 { return l.QtyOrdered - l.QtyReceived }

// FullyReceived reports whether every line arrived in full.
func (p PurchaseOrder) FullyReceived() bool {
	for _, l := range p.Lines {
		if l.QtyReceived < l.QtyOrdered {
			return false
		}
	}
	return len(p.Lines) > 0
}

// CreateInput describes a requested purchase order.
type CreateInput struct {
	WarehouseID string
	SupplierRef string
	Note        string
	Lines       []LineInput
	ActorID     string
}

// LineInput is one requested line.
type LineInput struct {
	ProductID string
	Qty       int64
}

// ReceiveInput carries the quantities of one goods receipt.
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

// Filter narrows purchase order listings.
type Filter struct {
	Status      Status
	WarehouseID string
	Limit       int
}
