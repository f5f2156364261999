package stock

import (
	"fmt"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// MoveKind enumerates ledger entry kinds.
type MoveKind string

const (
	// KindIn represents an inbound movement; qty delta must be positive.
	KindIn MoveKind = "IN"
	// KindOut represents an outbound movement; qty delta must be negative.
	KindOut MoveKind = "OUT"
	// KindAdjust represents a reconciliation; qty delta may have either sign.
	KindAdjust MoveKind = "ADJUST"
)

// AllowsDelta checks the sign convention for the kind.
func (k MoveKind) AllowsDelta(delta int64) bool {
	switch k {
	case KindIn:
		return delta > 0
	case KindOut:
		return delta < 0
	case KindAdjust:
		return delta != 0
	default:
		return false
	}
}

// Reference tags carried on ledger entries. The column is free-form; these
// are the values the core itself writes or applies policy to.
const (
	RefSale            = "SALE"
	RefPurchaseReceipt = "PURCHASE_RECEIPT"
	RefCorrection      = "CORRECTION"
	RefReturn          = "RETURN"
	RefLoss            = "LOSS"
	RefInventory       = "INVENTORY"
	RefTransfer        = "TRANSFER"
)

// StockMove is one append-only ledger entry. Rows are never updated or
// deleted; the balance for a key always equals the sum of its deltas.
type StockMove struct {
	ID          string    `json:"id"`
	Kind        MoveKind  `json:"kind"`
	WarehouseID string    `json:"warehouse_id"`
	ProductID   string    `json:"product_id"`
	QtyDelta    int64     `json:"qty_delta"`
	RefType     string    `json:"ref_type"`
	RefID       *string   `json:"ref_id,omitempty"`
	TransferID  *string   `json:"transfer_id,omitempty"`
	InventoryID *string   `json:"inventory_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Balance is the materialized on-hand quantity for one (warehouse, product)
// key. Created lazily on first movement, never deleted.
type Balance struct {
	WarehouseID string    `json:"warehouse_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MovementInput describes a requested ledger entry. Target turns an ADJUST
// into an absolute set: the delta is computed against the locked balance
// inside the transaction, and a zero delta records no move.
type MovementInput struct {
	Kind        MoveKind
	WarehouseID string
	ProductID   string
	QtyDelta    int64
	Target      *int64
	RefType     string
	RefID       *string
	TransferID  *string
	InventoryID *string
	Note        string
	ActorID     string
}

// ReturnInput describes a customer return flowing back into stock.
type ReturnInput struct {
	WarehouseID string
	ProductID   string
	Qty         int64
	RefID       *string
	Note        string
	ActorID     string
}

// LossInput describes written-off stock.
type LossInput struct {
	WarehouseID string
	ProductID   string
	Qty         int64
	Note        string
	ActorID     string
}

// MoveFilter filters ledger listings.
type MoveFilter struct {
	WarehouseID string
	ProductID   string
	RefType     string
	TransferID  string
	InventoryID string
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInvalidMovement flags kind/sign mismatches and ref types that are not
// allowed at the target warehouse. It matches shared.ErrValidation.
var ErrInvalidMovement = fmt.Errorf("%w: invalid movement", shared.ErrValidation)

// depotOnlyRefTypes may not be recorded at STORE warehouses.
var depotOnlyRefTypes = map[string]bool{
	RefPurchaseReceipt: true,
}

// tradeRefTypes may never be recorded at the TRANSIT waypoint.
var tradeRefTypes = map[string]bool{
	RefSale:            true,
	RefPurchaseReceipt: true,
}
