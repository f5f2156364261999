package sales

import "time"

// Status enumerates sale document states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Sale is the document whose posting consumes stock. Pricing, invoicing and
// customer identity live with external collaborators; the core keeps only
// what the stock effect needs.
type Sale struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Status      Status     `json:"status"`
	WarehouseID string     `json:"warehouse_id"`
	ClientRef   string     `json:"client_ref,omitempty"`
	Note        string     `json:"note,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Lines       []Line     `json:"lines"`
}

// Line is one sold product position.
type Line struct {
	ID        string `json:"id"`
	SaleID    string `json:"sale_id"`
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
}

// CreateInput describes a requested sale draft.
type CreateInput struct {
	WarehouseID string
	ClientRef   string
	Note        string
	Lines       []LineInput
	ActorID     string
}

// LineInput is one requested line.
type LineInput struct {
	ProductID string
	Qty       int64
}

// ReturnInput brings sold units back into stock.
type ReturnInput struct {
	Lines   []LineInput
	Note    string
	ActorID string
}

// Filter narrows sale listings.
type Filter struct {
	Status      Status
	WarehouseID string
	Limit       int
}
