package stocktake

import "time"

// Status enumerates stocktake document states. POSTED and CANCELLED are
// terminal; DRAFT is the only editable state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Mode determines how counting lines are scoped.
type Mode string

const (
	// ModeFull counts every active product in the warehouse.
	ModeFull Mode = "FULL"
	// ModeCategory counts the active products of one category.
	ModeCategory Mode = "CATEGORY"
	// ModeFree counts an ad-hoc set of products added line by line.
	ModeFree Mode = "FREE"
)

// IsValid checks the mode value.
func (m Mode) IsValid() bool {
	switch m {
	case ModeFull, ModeCategory, ModeFree:
		return true
	default:
		return false
	}
}

// LineStatus tracks the counting progress of one line.
type LineStatus string

const (
	LinePending LineStatus = "PENDING"
	LineCounted LineStatus = "COUNTED"
	LineSkipped LineStatus = "SKIPPED"
)

// Inventory is one stocktake document. Lines are generated once; posting is
// a one-shot operation that locks the document.
type Inventory struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Status      Status     `json:"status"`
	Mode        Mode       `json:"mode"`
	WarehouseID string     `json:"warehouse_id"`
	CategoryID  *string    `json:"category_id,omitempty"`
	Note        string     `json:"note,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	PostedBy    string     `json:"posted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Lines       []Line     `json:"lines"`
}

// Line is one product position on a stocktake. ExpectedQty is the balance
// snapshot taken at generation time; the posting delta is resolved against
// the balance locked inside the posting transaction.
type Line struct {
	ID          string     `json:"id"`
	InventoryID string     `json:"inventory_id"`
	ProductID   string     `json:"product_id"`
	ExpectedQty int64      `json:"expected_qty"`
	CountedQty  *int64     `json:"counted_qty,omitempty"`
	Delta       int64      `json:"delta"`
	Status      LineStatus `json:"status"`
	Note        string     `json:"note,omitempty"`
}

// Countable reports whether the line participates in posting.
func (l Line) Countable() bool {
	return l.Status != LineSkipped && l.CountedQty != nil
}

// CreateInput describes a requested stocktake draft.
type CreateInput struct {
	WarehouseID string
	Mode        Mode
	CategoryID  *string
	Note        string
	ActorID     string
}

// GenerateInput optionally re-scopes the document at generation time. Zero
// values keep the scope chosen at creation.
type GenerateInput struct {
	Mode       Mode
	CategoryID *string
}

// UpdateLineInput carries a count or status change for one line.
type UpdateLineInput struct {
	CountedQty *int64
	Status     *LineStatus
	Note       *string
}

// Filter narrows stocktake listings.
type Filter struct {
	Status      Status
	WarehouseID string
	Limit       int
}
