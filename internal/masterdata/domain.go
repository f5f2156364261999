package masterdata

import "time"

// WarehouseKind distinguishes stock-holding sites from the routing waypoint.
type WarehouseKind string

const (
	// KindDepot is a distribution warehouse.
	KindDepot WarehouseKind = "DEPOT"
	// KindStore is a retail location holding sellable stock.
	KindStore WarehouseKind = "STORE"
	// KindTransit is the singleton routing waypoint for two-leg transfers.
	KindTransit WarehouseKind = "TRANSIT"
)

// IsValid checks the kind value.
func (k WarehouseKind) IsValid() bool {
	switch k {
	case KindDepot, KindStore, KindTransit:
		return true
	default:
		return false
	}
}

// Stocking reports whether the kind can be a transfer endpoint.
func (k WarehouseKind) Stocking() bool {
	return k == KindDepot || k == KindStore
}

// TransitCode is the code of the singleton transit warehouse.
const TransitCode = "TRANSIT"

// Warehouse is a stock location. Owned by an external catalog; the core only
// reads it.
type Warehouse struct {
	ID        string         `json:"id"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Kind      WarehouseKind  `json:"kind"`
	IsActive  bool           `json:"is_active"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Usable reports whether movements may reference this warehouse.
func (w Warehouse) Usable() bool {
	return w.IsActive && w.DeletedAt == nil
}

// Product is a catalog item referenced by id.
type Product struct {
	ID         string     `json:"id"`
	SKU        string     `json:"sku"`
	Name       string     `json:"name"`
	CategoryID *string    `json:"category_id,omitempty"`
	IsActive   bool       `json:"is_active"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Usable reports whether movements may reference this product.
func (p Product) Usable() bool {
	return p.IsActive && p.DeletedAt == nil
}

// Category groups products for category-scoped stocktakes.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
