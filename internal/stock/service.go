package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, warehouseID, productID string) (Balance, error)
	GetBalances(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error)
	ListMoves(ctx context.Context, filter MoveFilter) ([]StockMove, error)
}

// CatalogPort exposes the warehouse/product lookups the ledger validates
// against. Owned by masterdata.
type CatalogPort interface {
	Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error)
	Product(ctx context.Context, id string) (masterdata.Product, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the ledger engine: the single writer of balances. Every
// stock-affecting workflow funnels through RecordMovements.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	audit   AuditPort
	clock   shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditPort, clock shared.Clock) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, clock: clock.OrSystem()}
}

// RecordMovement validates and appends one ledger entry, upserting the
// balance in the same transaction. Either both writes commit or neither does.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (StockMove, error) {
	moves, err := s.RecordMovements(ctx, []MovementInput{input}, nil)
	if err != nil {
		return StockMove{}, err
	}
	if len(moves) == 0 {
		return StockMove{}, shared.Conflictf("balance already at target quantity")
	}
	return moves[0], nil
}

// RecordMovements validates and appends a batch of ledger entries in one
// transaction. A failing movement rolls back the whole batch. When then is
// non-nil it runs inside the same transaction after the movements, receiving
// the recorded moves; document status writes go there so a workflow and its
// stock effects commit together.
func (s *Service) RecordMovements(ctx context.Context, inputs []MovementInput, then func(ctx context.Context, moves []StockMove) error) ([]StockMove, error) {
	if len(inputs) == 0 {
		return nil, shared.Validationf("at least one movement required")
	}
	for _, input := range inputs {
		if err := s.validateMovement(ctx, input); err != nil {
			return nil, err
		}
	}

	var moves []StockMove
	var actors []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		moves, actors = moves[:0], actors[:0]
		for _, input := range inputs {
			move, recorded, err := s.applyMovement(ctx, tx, input)
			if err != nil {
				return err
			}
			if recorded {
				moves = append(moves, move)
				actors = append(actors, input.ActorID)
			}
		}
		if then != nil {
			return then(ctx, moves)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		for i, move := range moves {
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID:  actors[i],
				Action:   fmt.Sprintf("stock:%s", move.Kind),
				Entity:   "stock_move",
				EntityID: move.ID,
				Meta: map[string]any{
					"warehouse_id": move.WarehouseID,
					"product_id":   move.ProductID,
					"qty_delta":    move.QtyDelta,
					"ref_type":     move.RefType,
				},
			})
		}
	}
	return moves, nil
}

func (s *Service) validateMovement(ctx context.Context, input MovementInput) error {
	if input.WarehouseID == "" || input.ProductID == "" {
		return shared.Validationf("warehouse and product required")
	}
	if input.Target != nil {
		if input.Kind != KindAdjust {
			return fmt.Errorf("%w: absolute targets require kind %s", ErrInvalidMovement, KindAdjust)
		}
		if *input.Target < 0 {
			return shared.Validationf("target quantity must not be negative")
		}
	} else {
		if input.QtyDelta == 0 {
			return shared.Validationf("qty delta must be non-zero")
		}
		if !input.Kind.AllowsDelta(input.QtyDelta) {
			return fmt.Errorf("%w: kind %s does not allow delta %d", ErrInvalidMovement, input.Kind, input.QtyDelta)
		}
	}

	warehouse, err := s.catalog.Warehouse(ctx, input.WarehouseID)
	if err != nil {
		return err
	}
	if !warehouse.Usable() {
		return shared.NotFoundf("warehouse %s is inactive or deleted", input.WarehouseID)
	}
	if warehouse.Kind == masterdata.KindStore && depotOnlyRefTypes[input.RefType] {
		return fmt.Errorf("%w: ref type %s is depot-only, warehouse %s is a store", ErrInvalidMovement, input.RefType, warehouse.Code)
	}
	if warehouse.Kind == masterdata.KindTransit && tradeRefTypes[input.RefType] {
		return fmt.Errorf("%w: ref type %s not allowed at the transit waypoint", ErrInvalidMovement, input.RefType)
	}
	if input.RefType == RefCorrection && strings.TrimSpace(input.Note) == "" {
		return shared.Validationf("manual corrections require a note")
	}

	product, err := s.catalog.Product(ctx, input.ProductID)
	if err != nil {
		return err
	}
	if !product.Usable() {
		return shared.NotFoundf("product %s is inactive or deleted", input.ProductID)
	}
	return nil
}

// applyMovement locks the balance row, resolves the delta and writes both
// rows. An absolute-target input whose locked balance already matches records
// nothing and reports recorded=false.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, input MovementInput) (StockMove, bool, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, input.WarehouseID, input.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return StockMove{}, false, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{WarehouseID: input.WarehouseID, ProductID: input.ProductID}
	}

	delta := input.QtyDelta
	if input.Target != nil {
		delta = *input.Target - balance.Quantity
		if delta == 0 {
			return StockMove{}, false, nil
		}
	}
	next := balance.Quantity + delta
	if next < 0 {
		return StockMove{}, false, &shared.InsufficientStockError{
			WarehouseID: input.WarehouseID,
			ProductID:   input.ProductID,
			Available:   balance.Quantity,
			Requested:   -delta,
		}
	}

	move := StockMove{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		WarehouseID: input.WarehouseID,
		ProductID:   input.ProductID,
		QtyDelta:    delta,
		RefType:     input.RefType,
		RefID:       input.RefID,
		TransferID:  input.TransferID,
		InventoryID: input.InventoryID,
		Note:        input.Note,
		CreatedAt:   s.clock(),
	}
	balance.Quantity = next
	balance.UpdatedAt = move.CreatedAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return StockMove{}, false, err
	}
	if err := tx.InsertMove(ctx, move); err != nil {
		return StockMove{}, false, err
	}
	return move, true, nil
}

// CreateReturn records a customer return as an inbound movement.
func (s *Service) CreateReturn(ctx context.Context, input ReturnInput) (StockMove, error) {
	if input.Qty <= 0 {
		return StockMove{}, shared.Validationf("return qty must be positive")
	}
	return s.RecordMovement(ctx, MovementInput{
		Kind:        KindIn,
		WarehouseID: input.WarehouseID,
		ProductID:   input.ProductID,
		QtyDelta:    input.Qty,
		RefType:     RefReturn,
		RefID:       input.RefID,
		Note:        input.Note,
		ActorID:     input.ActorID,
	})
}

// CreateLoss writes off stock. A note is mandatory: losses are audited.
func (s *Service) CreateLoss(ctx context.Context, input LossInput) (StockMove, error) {
	if input.Qty <= 0 {
		return StockMove{}, shared.Validationf("loss qty must be positive")
	}
	if strings.TrimSpace(input.Note) == "" {
		return StockMove{}, shared.Validationf("losses require a note")
	}
	return s.RecordMovement(ctx, MovementInput{
		Kind:        KindOut,
		WarehouseID: input.WarehouseID,
		ProductID:   input.ProductID,
		QtyDelta:    -input.Qty,
		RefType:     RefLoss,
		Note:        input.Note,
		ActorID:     input.ActorID,
	})
}

// SetLevel forces a balance to an absolute quantity via one correcting ADJUST
// movement. The delta is resolved against the locked balance, so the final
// quantity is exactly target even under concurrent writers. Legacy surface
// kept for ad-hoc fixes; stocktakes are the audited path to reconciliation.
func (s *Service) SetLevel(ctx context.Context, warehouseID, productID string, target int64, note, actorID string) (StockMove, error) {
	moves, err := s.RecordMovements(ctx, []MovementInput{{
		Kind:        KindAdjust,
		WarehouseID: warehouseID,
		ProductID:   productID,
		Target:      &target,
		RefType:     RefCorrection,
		Note:        note,
		ActorID:     actorID,
	}}, nil)
	if err != nil {
		return StockMove{}, err
	}
	if len(moves) == 0 {
		return StockMove{}, shared.Conflictf("balance already at %d", target)
	}
	return moves[0], nil
}

// GetBalance returns the on-hand quantity, zero when no movement touched the
// key yet.
func (s *Service) GetBalance(ctx context.Context, warehouseID, productID string) (int64, error) {
	if warehouseID == "" || productID == "" {
		return 0, shared.Validationf("warehouse and product required")
	}
	balance, err := s.repo.GetBalance(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Quantity, nil
}

// GetBalancesBatch returns quantities for many products in one warehouse.
// Missing keys map to zero.
func (s *Service) GetBalancesBatch(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error) {
	if warehouseID == "" {
		return nil, shared.Validationf("warehouse required")
	}
	if len(productIDs) == 0 {
		return map[string]int64{}, nil
	}
	balances, err := s.repo.GetBalances(ctx, warehouseID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range productIDs {
		if _, ok := balances[id]; !ok {
			balances[id] = 0
		}
	}
	return balances, nil
}

// ListMovements lists ledger entries matching the filter.
func (s *Service) ListMovements(ctx context.Context, filter MoveFilter) ([]StockMove, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.repo.ListMoves(ctx, filter)
}
