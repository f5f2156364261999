package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
)

// RepositoryPort abstracts purchase order persistence.
type RepositoryPort interface {
	Create(ctx context.Context, order PurchaseOrder) error
	Get(ctx context.Context, id string) (PurchaseOrder, error)
	List(ctx context.Context, filter Filter) ([]PurchaseOrder, error)
	ApplyReceipt(ctx context.Context, id string, received map[string]int64, status Status, receivedAt *time.Time) error
	MarkCancelled(ctx context.Context, id string) error
}

// CatalogPort exposes warehouse and product lookups.
type CatalogPort interface {
	Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error)
	Product(ctx context.Context, id string) (masterdata.Product, error)
}

// LedgerPort is the stock engine surface used by goods receipts. The status
// write rides in the batch callback so movements and document state commit
// together.
type LedgerPort interface {
	RecordMovements(ctx context.Context, inputs []stock.MovementInput, then func(ctx context.Context, moves []stock.StockMove) error) ([]stock.StockMove, error)
}

// Service runs purchase receiving. Orders target depots; the ledger rejects
// purchase receipts at stores.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	ledger  LedgerPort
	numbers *shared.NumberGenerator
	clock   shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, ledger LedgerPort, numbers *shared.NumberGenerator, clock shared.Clock) *Service {
	return &Service{repo: repo, catalog: catalog, ledger: ledger, numbers: numbers, clock: clock.OrSystem()}
}

// CreateOrder persists a purchase order in ORDERED state.
func (s *Service) CreateOrder(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	warehouse, err := s.catalog.Warehouse(ctx, input.WarehouseID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !warehouse.Usable() {
		return PurchaseOrder{}, shared.NotFoundf("warehouse %s is inactive or deleted", input.WarehouseID)
	}
	if warehouse.Kind != masterdata.KindDepot {
		return PurchaseOrder{}, shared.Validationf("warehouse %s (%s) cannot receive purchases", warehouse.Code, warehouse.Kind)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, shared.Validationf("at least one line required")
	}
	seen := make(map[string]bool, len(input.Lines))
	for _, l := range input.Lines {
		if l.Qty <= 0 {
			return PurchaseOrder{}, shared.Validationf("qty for product %s must be positive", l.ProductID)
		}
		if seen[l.ProductID] {
			return PurchaseOrder{}, shared.Validationf("duplicate product %s", l.ProductID)
		}
		seen[l.ProductID] = true
		product, err := s.catalog.Product(ctx, l.ProductID)
		if err != nil {
			return PurchaseOrder{}, err
		}
		if !product.Usable() {
			return PurchaseOrder{}, shared.NotFoundf("product %s is inactive or deleted", l.ProductID)
		}
	}

	order := PurchaseOrder{
		ID:          uuid.NewString(),
		Status:      StatusOrdered,
		WarehouseID: input.WarehouseID,
		SupplierRef: input.SupplierRef,
		Note:        input.Note,
		CreatedAt:   s.clock(),
	}
	for _, l := range input.Lines {
		order.Lines = append(order.Lines, Line{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			ProductID:  l.ProductID,
			QtyOrdered: l.Qty,
		})
	}
	number, err := s.numbers.WithRetry(ctx, "PO", func(ctx context.Context, number string) error {
		order.Number = number
		return s.repo.Create(ctx, order)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Number = number
	return order, nil
}

// Receive books arrived quantities into stock. Every input line is validated
// against its remaining quantity before the first movement; the status is
// recomputed from cumulative receipts.
func (s *Service) Receive(ctx context.Context, id string, input ReceiveInput) (PurchaseOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !order.Status.CanReceive() {
		return PurchaseOrder{}, shared.Conflictf("purchase order %s is %s, only ORDERED or PARTIALLY_RECEIVED can receive", order.Number, order.Status)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, shared.Validationf("receipt lines required")
	}

	byProduct := make(map[string]*Line, len(order.Lines))
	for i := range order.Lines {
		byProduct[order.Lines[i].ProductID] = &order.Lines[i]
	}

	var total int64
	received := make(map[string]int64, len(input.Lines))
	for _, rl := range input.Lines {
		line, ok := byProduct[rl.ProductID]
		if !ok {
			return PurchaseOrder{}, shared.Validationf("product %s is not on purchase order %s", rl.ProductID, order.Number)
		}
		if rl.QtyReceived < 0 {
			return PurchaseOrder{}, shared.Validationf("received qty for product %s must not be negative", rl.ProductID)
		}
		if _, dup := received[rl.ProductID]; dup {
			return PurchaseOrder{}, shared.Validationf("duplicate receipt line for product %s", rl.ProductID)
		}
		if remaining := line.Remaining(); rl.QtyReceived > remaining {
			return PurchaseOrder{}, shared.Validationf("received qty %d for product %s exceeds remaining %d", rl.QtyReceived, rl.ProductID, remaining)
		}
		received[rl.ProductID] = rl.QtyReceived
		total += rl.QtyReceived
	}
	if total == 0 {
		return PurchaseOrder{}, shared.Validationf("nothing received")
	}

	inputs := make([]stock.MovementInput, 0, len(received))
	for _, l := range order.Lines {
		qty := received[l.ProductID]
		if qty == 0 {
			continue
		}
		inputs = append(inputs, stock.MovementInput{
			Kind:        stock.KindIn,
			WarehouseID: order.WarehouseID,
			ProductID:   l.ProductID,
			QtyDelta:    qty,
			RefType:     stock.RefPurchaseReceipt,
			RefID:       &order.ID,
			Note:        input.Note,
			ActorID:     input.ActorID,
		})
	}

	for productID, qty := range received {
		byProduct[productID].QtyReceived += qty
	}
	status := StatusPartiallyReceived
	var receivedAt *time.Time
	if order.FullyReceived() {
		status = StatusReceived
		now := s.clock()
		receivedAt = &now
	}
	_, err = s.ledger.RecordMovements(ctx, inputs, func(ctx context.Context, _ []stock.StockMove) error {
		return s.repo.ApplyReceipt(ctx, order.ID, received, status, receivedAt)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Status = status
	order.ReceivedAt = receivedAt
	return order, nil
}

// Cancel terminates an order that has not received any goods yet.
func (s *Service) Cancel(ctx context.Context, id string) (PurchaseOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if order.Status != StatusOrdered {
		return PurchaseOrder{}, shared.Conflictf("purchase order %s is %s and cannot be cancelled", order.Number, order.Status)
	}
	if err := s.repo.MarkCancelled(ctx, order.ID); err != nil {
		return PurchaseOrder{}, err
	}
	order.Status = StatusCancelled
	return order, nil
}

// Get loads one purchase order with its lines.
func (s *Service) Get(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List lists purchase orders matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]PurchaseOrder, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}
