package sales

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
)

// RepositoryPort abstracts sale persistence.
type RepositoryPort interface {
	Create(ctx context.Context, sale Sale) error
	Get(ctx context.Context, id string) (Sale, error)
	List(ctx context.Context, filter Filter) ([]Sale, error)
	MarkPosted(ctx context.Context, id string, postedAt time.Time) error
	MarkCancelled(ctx context.Context, id string) error
}

// CatalogPort exposes warehouse and product lookups.
type CatalogPort interface {
	Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error)
	Product(ctx context.Context, id string) (masterdata.Product, error)
}

// LedgerPort is the stock engine surface used by posting and returns. The
// status write rides in the batch callback so movements and document state
// commit together.
type LedgerPort interface {
	RecordMovements(ctx context.Context, inputs []stock.MovementInput, then func(ctx context.Context, moves []stock.StockMove) error) ([]stock.StockMove, error)
	GetBalancesBatch(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error)
}

// Service hosts the stock side effects of the sale lifecycle.
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

// CreateSale persists a DRAFT sale. Stock is untouched until PostSale.
func (s *Service) CreateSale(ctx context.Context, input CreateInput) (Sale, error) {
	warehouse, err := s.catalog.Warehouse(ctx, input.WarehouseID)
	if err != nil {
		return Sale{}, err
	}
	if !warehouse.Usable() {
		return Sale{}, shared.NotFoundf("warehouse %s is inactive or deleted", input.WarehouseID)
	}
	if !warehouse.Kind.Stocking() {
		return Sale{}, shared.Validationf("warehouse %s (%s) cannot sell", warehouse.Code, warehouse.Kind)
	}
	if len(input.Lines) == 0 {
		return Sale{}, shared.Validationf("at least one line required")
	}
	seen := make(map[string]bool, len(input.Lines))
	for _, l := range input.Lines {
		if l.Qty <= 0 {
			return Sale{}, shared.Validationf("qty for product %s must be positive", l.ProductID)
		}
		if seen[l.ProductID] {
			return Sale{}, shared.Validationf("duplicate product %s", l.ProductID)
		}
		seen[l.ProductID] = true
		product, err := s.catalog.Product(ctx, l.ProductID)
		if err != nil {
			return Sale{}, err
		}
		if !product.Usable() {
			return Sale{}, shared.NotFoundf("product %s is inactive or deleted", l.ProductID)
		}
	}

	sale := Sale{
		ID:          uuid.NewString(),
		Status:      StatusDraft,
		WarehouseID: input.WarehouseID,
		ClientRef:   input.ClientRef,
		Note:        input.Note,
		CreatedAt:   s.clock(),
	}
	for _, l := range input.Lines {
		sale.Lines = append(sale.Lines, Line{
			ID:        uuid.NewString(),
			SaleID:    sale.ID,
			ProductID: l.ProductID,
			Qty:       l.Qty,
		})
	}
	number, err := s.numbers.WithRetry(ctx, "SAL", func(ctx context.Context, number string) error {
		sale.Number = number
		return s.repo.Create(ctx, sale)
	})
	if err != nil {
		return Sale{}, err
	}
	sale.Number = number
	return sale, nil
}

// PostSale consumes stock for every line. Availability is dry-run checked
// across the whole sale before the first movement; a single short line fails
// the whole transition.
func (s *Service) PostSale(ctx context.Context, id, actorID string) (Sale, error) {
	sale, err := s.repo.Get(ctx, id)
	if err != nil {
		return Sale{}, err
	}
	if sale.Status != StatusDraft {
		return Sale{}, shared.Conflictf("sale %s is %s, only DRAFT can post", sale.Number, sale.Status)
	}

	productIDs := make([]string, 0, len(sale.Lines))
	for _, l := range sale.Lines {
		productIDs = append(productIDs, l.ProductID)
	}
	available, err := s.ledger.GetBalancesBatch(ctx, sale.WarehouseID, productIDs)
	if err != nil {
		return Sale{}, err
	}
	for _, l := range sale.Lines {
		if available[l.ProductID] < l.Qty {
			return Sale{}, &shared.InsufficientStockError{
				WarehouseID: sale.WarehouseID,
				ProductID:   l.ProductID,
				Available:   available[l.ProductID],
				Requested:   l.Qty,
			}
		}
	}

	inputs := make([]stock.MovementInput, 0, len(sale.Lines))
	for _, l := range sale.Lines {
		inputs = append(inputs, stock.MovementInput{
			Kind:        stock.KindOut,
			WarehouseID: sale.WarehouseID,
			ProductID:   l.ProductID,
			QtyDelta:    -l.Qty,
			RefType:     stock.RefSale,
			RefID:       &sale.ID,
			ActorID:     actorID,
		})
	}

	now := s.clock()
	_, err = s.ledger.RecordMovements(ctx, inputs, func(ctx context.Context, _ []stock.StockMove) error {
		return s.repo.MarkPosted(ctx, sale.ID, now)
	})
	if err != nil {
		return Sale{}, err
	}
	sale.Status = StatusPosted
	sale.PostedAt = &now
	return sale, nil
}

// ReturnSale books returned units of a POSTED sale back into stock. Returned
// quantities may not exceed what the sale shipped per product.
func (s *Service) ReturnSale(ctx context.Context, id string, input ReturnInput) (Sale, error) {
	sale, err := s.repo.Get(ctx, id)
	if err != nil {
		return Sale{}, err
	}
	if sale.Status != StatusPosted {
		return Sale{}, shared.Conflictf("sale %s is %s, only POSTED can take returns", sale.Number, sale.Status)
	}
	if len(input.Lines) == 0 {
		return Sale{}, shared.Validationf("return lines required")
	}
	sold := make(map[string]int64, len(sale.Lines))
	for _, l := range sale.Lines {
		sold[l.ProductID] = l.Qty
	}
	for _, l := range input.Lines {
		if l.Qty <= 0 {
			return Sale{}, shared.Validationf("return qty for product %s must be positive", l.ProductID)
		}
		if l.Qty > sold[l.ProductID] {
			return Sale{}, shared.Validationf("return qty %d for product %s exceeds sold qty %d", l.Qty, l.ProductID, sold[l.ProductID])
		}
	}

	inputs := make([]stock.MovementInput, 0, len(input.Lines))
	for _, l := range input.Lines {
		inputs = append(inputs, stock.MovementInput{
			Kind:        stock.KindIn,
			WarehouseID: sale.WarehouseID,
			ProductID:   l.ProductID,
			QtyDelta:    l.Qty,
			RefType:     stock.RefReturn,
			RefID:       &sale.ID,
			Note:        input.Note,
			ActorID:     input.ActorID,
		})
	}
	if _, err := s.ledger.RecordMovements(ctx, inputs, nil); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// Cancel terminates a DRAFT sale.
func (s *Service) Cancel(ctx context.Context, id string) (Sale, error) {
	sale, err := s.repo.Get(ctx, id)
	if err != nil {
		return Sale{}, err
	}
	if sale.Status != StatusDraft {
		return Sale{}, shared.Conflictf("sale %s is %s and cannot be cancelled", sale.Number, sale.Status)
	}
	if err := s.repo.MarkCancelled(ctx, sale.ID); err != nil {
		return Sale{}, err
	}
	sale.Status = StatusCancelled
	return sale, nil
}

// Get loads one sale with its lines.
func (s *Service) Get(ctx context.Context, id string) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// List lists sales matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Sale, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}
