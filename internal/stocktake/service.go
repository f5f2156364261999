package stocktake

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
)

// RepositoryPort abstracts stocktake persistence.
type RepositoryPort interface {
	Create(ctx context.Context, inv Inventory) error
	Get(ctx context.Context, id string) (Inventory, error)
	List(ctx context.Context, filter Filter) ([]Inventory, error)
	UpdateScope(ctx context.Context, id string, mode Mode, categoryID *string) error
	InsertLines(ctx context.Context, inventoryID string, lines []Line) error
	UpdateLine(ctx context.Context, line Line) error
	MarkPosted(ctx context.Context, id string, postedAt time.Time, postedBy, note string, deltas map[string]int64) error
	MarkCancelled(ctx context.Context, id string) error
}

// CatalogPort exposes warehouse, category and product lookups.
type CatalogPort interface {
	Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error)
	Product(ctx context.Context, id string) (masterdata.Product, error)
	EnsureCategory(ctx context.Context, id string) error
	ActiveProducts(ctx context.Context, categoryID *string) ([]masterdata.Product, error)
}

// LedgerPort is the stock engine surface used by snapshotting and posting.
// Posting hands the ledger absolute targets; the ADJUST deltas are resolved
// against the locked balances and the document lock rides in the batch
// callback, so counts, moves and status commit together.
type LedgerPort interface {
	RecordMovements(ctx context.Context, inputs []stock.MovementInput, then func(ctx context.Context, moves []stock.StockMove) error) ([]stock.StockMove, error)
	GetBalance(ctx context.Context, warehouseID, productID string) (int64, error)
	GetBalancesBatch(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the stocktake workflow: snapshot expectations, collect
// counts, reconcile into the ledger on posting.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	ledger  LedgerPort
	audit   AuditPort
	numbers *shared.NumberGenerator
	clock   shared.Clock
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, catalog CatalogPort, ledger LedgerPort, audit AuditPort, numbers *shared.NumberGenerator, clock shared.Clock) *Service {
	return &Service{repo: repo, catalog: catalog, ledger: ledger, audit: audit, numbers: numbers, clock: clock.OrSystem()}
}

// CreateDraft opens a stocktake document without lines.
func (s *Service) CreateDraft(ctx context.Context, input CreateInput) (Inventory, error) {
	if !input.Mode.IsValid() {
		return Inventory{}, shared.Validationf("unknown stocktake mode %q", input.Mode)
	}
	warehouse, err := s.catalog.Warehouse(ctx, input.WarehouseID)
	if err != nil {
		return Inventory{}, err
	}
	if !warehouse.Usable() {
		return Inventory{}, shared.NotFoundf("warehouse %s is inactive or deleted", input.WarehouseID)
	}
	if input.Mode == ModeCategory {
		if input.CategoryID == nil || *input.CategoryID == "" {
			return Inventory{}, shared.Validationf("category required for CATEGORY mode")
		}
		if err := s.catalog.EnsureCategory(ctx, *input.CategoryID); err != nil {
			return Inventory{}, err
		}
	} else if input.CategoryID != nil {
		return Inventory{}, shared.Validationf("category only allowed in CATEGORY mode")
	}

	inv := Inventory{
		ID:          uuid.NewString(),
		Status:      StatusDraft,
		Mode:        input.Mode,
		WarehouseID: input.WarehouseID,
		CategoryID:  input.CategoryID,
		Note:        input.Note,
		CreatedAt:   s.clock(),
	}
	number, err := s.numbers.WithRetry(ctx, "INV", func(ctx context.Context, number string) error {
		inv.Number = number
		return s.repo.Create(ctx, inv)
	})
	if err != nil {
		return Inventory{}, err
	}
	inv.Number = number

	s.recordAudit(ctx, "stocktake:create", inv.ID, input.ActorID)
	return inv, nil
}

// GenerateLines snapshots the current balances of the scoped products into
// PENDING lines. The scope defaults to what the draft was created with and
// may be overridden here; it is fixed once generated. FREE mode builds its
// scope via AddLine instead.
func (s *Service) GenerateLines(ctx context.Context, id string, scope GenerateInput) (Inventory, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Inventory{}, err
	}
	if inv.Status != StatusDraft {
		return Inventory{}, shared.Conflictf("stocktake %s is %s, only DRAFT can generate lines", inv.Number, inv.Status)
	}
	if len(inv.Lines) > 0 {
		return Inventory{}, shared.Conflictf("stocktake %s already has lines", inv.Number)
	}

	mode := inv.Mode
	if scope.Mode != "" {
		if !scope.Mode.IsValid() {
			return Inventory{}, shared.Validationf("unknown stocktake mode %q", scope.Mode)
		}
		mode = scope.Mode
	}
	category := inv.CategoryID
	if scope.CategoryID != nil {
		category = scope.CategoryID
	}
	if mode == ModeFree {
		return Inventory{}, shared.Validationf("FREE stocktakes build their scope line by line")
	}
	if mode == ModeCategory {
		if category == nil || *category == "" {
			return Inventory{}, shared.Validationf("category required for CATEGORY mode")
		}
		if err := s.catalog.EnsureCategory(ctx, *category); err != nil {
			return Inventory{}, err
		}
	} else if scope.CategoryID != nil {
		return Inventory{}, shared.Validationf("category only allowed in CATEGORY mode")
	}
	if scope.Mode != "" || scope.CategoryID != nil {
		if mode != ModeCategory {
			category = nil
		}
		if err := s.repo.UpdateScope(ctx, inv.ID, mode, category); err != nil {
			return Inventory{}, err
		}
		inv.Mode = mode
		inv.CategoryID = category
	}

	var categoryID *string
	if mode == ModeCategory {
		categoryID = category
	}
	products, err := s.catalog.ActiveProducts(ctx, categoryID)
	if err != nil {
		return Inventory{}, err
	}
	if len(products) == 0 {
		return Inventory{}, shared.Validationf("no active products in scope")
	}

	productIDs := make([]string, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ID)
	}
	balances, err := s.ledger.GetBalancesBatch(ctx, inv.WarehouseID, productIDs)
	if err != nil {
		return Inventory{}, err
	}

	lines := make([]Line, 0, len(products))
	for _, p := range products {
		lines = append(lines, Line{
			ID:          uuid.NewString(),
			InventoryID: inv.ID,
			ProductID:   p.ID,
			ExpectedQty: balances[p.ID],
			Status:      LinePending,
		})
	}
	if err := s.repo.InsertLines(ctx, inv.ID, lines); err != nil {
		return Inventory{}, err
	}
	inv.Lines = lines
	return inv, nil
}

// AddLine appends one product to a FREE stocktake, snapshotting its balance
// as the expectation.
func (s *Service) AddLine(ctx context.Context, id, productID string) (Line, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Line{}, err
	}
	if inv.Status != StatusDraft {
		return Line{}, shared.Conflictf("stocktake %s is %s, only DRAFT can add lines", inv.Number, inv.Status)
	}
	if inv.Mode != ModeFree {
		return Line{}, shared.Validationf("lines can only be added to FREE stocktakes")
	}
	for _, l := range inv.Lines {
		if l.ProductID == productID {
			return Line{}, shared.Conflictf("product %s is already on stocktake %s", productID, inv.Number)
		}
	}
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return Line{}, err
	}
	if !product.Usable() {
		return Line{}, shared.NotFoundf("product %s is inactive or deleted", productID)
	}
	balance, err := s.ledger.GetBalance(ctx, inv.WarehouseID, productID)
	if err != nil {
		return Line{}, err
	}

	line := Line{
		ID:          uuid.NewString(),
		InventoryID: inv.ID,
		ProductID:   productID,
		ExpectedQty: balance,
		Status:      LinePending,
	}
	if err := s.repo.InsertLines(ctx, inv.ID, []Line{line}); err != nil {
		return Line{}, err
	}
	return line, nil
}

// UpdateLine records a count, a skip, or a note on one line. Repeatable
// while the parent stays DRAFT.
func (s *Service) UpdateLine(ctx context.Context, inventoryID, lineID string, input UpdateLineInput) (Line, error) {
	inv, err := s.repo.Get(ctx, inventoryID)
	if err != nil {
		return Line{}, err
	}
	if inv.Status != StatusDraft {
		return Line{}, shared.Conflictf("stocktake %s is %s, only DRAFT lines can change", inv.Number, inv.Status)
	}
	var line *Line
	for i := range inv.Lines {
		if inv.Lines[i].ID == lineID {
			line = &inv.Lines[i]
			break
		}
	}
	if line == nil {
		return Line{}, shared.NotFoundf("line %s on stocktake %s", lineID, inv.Number)
	}

	if input.CountedQty != nil {
		if *input.CountedQty < 0 {
			return Line{}, shared.Validationf("counted qty must not be negative")
		}
		line.CountedQty = input.CountedQty
	}
	if input.Note != nil {
		line.Note = *input.Note
	}
	switch {
	case input.Status != nil:
		switch *input.Status {
		case LinePending, LineCounted, LineSkipped:
			line.Status = *input.Status
		default:
			return Line{}, shared.Validationf("unknown line status %q", *input.Status)
		}
	case line.CountedQty != nil:
		line.Status = LineCounted
	}
	if line.CountedQty != nil {
		line.Delta = *line.CountedQty - line.ExpectedQty
	} else {
		line.Delta = 0
	}

	if err := s.repo.UpdateLine(ctx, *line); err != nil {
		return Line{}, err
	}
	return *line, nil
}

// Post reconciles the counted quantities into the ledger and locks the
// document. Every counted line becomes an absolute-target ADJUST, so the
// final balance is exactly the counted quantity even when ledger activity
// during the physical count moved it; unchanged balances record no move.
func (s *Service) Post(ctx context.Context, id, note, postedBy string) (Inventory, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Inventory{}, err
	}
	if inv.Status != StatusDraft {
		return Inventory{}, shared.Conflictf("stocktake %s is %s, only DRAFT can post", inv.Number, inv.Status)
	}
	if len(inv.Lines) == 0 {
		return Inventory{}, shared.Validationf("stocktake %s has no lines", inv.Number)
	}

	inputs := make([]stock.MovementInput, 0, len(inv.Lines))
	for i := range inv.Lines {
		line := &inv.Lines[i]
		if !line.Countable() {
			continue
		}
		moveNote := note
		if moveNote == "" {
			moveNote = "stocktake " + inv.Number
		}
		if strings.TrimSpace(line.Note) != "" {
			moveNote = moveNote + ": " + line.Note
		}
		inputs = append(inputs, stock.MovementInput{
			Kind:        stock.KindAdjust,
			WarehouseID: inv.WarehouseID,
			ProductID:   line.ProductID,
			Target:      line.CountedQty,
			RefType:     stock.RefInventory,
			RefID:       &inv.ID,
			InventoryID: &inv.ID,
			Note:        moveNote,
			ActorID:     postedBy,
		})
	}
	if len(inputs) == 0 {
		return Inventory{}, shared.Validationf("nothing counted on stocktake %s", inv.Number)
	}

	now := s.clock()
	_, err = s.ledger.RecordMovements(ctx, inputs, func(ctx context.Context, moves []stock.StockMove) error {
		applied := make(map[string]int64, len(moves))
		for _, mv := range moves {
			applied[mv.ProductID] = mv.QtyDelta
		}
		deltas := make(map[string]int64, len(inputs))
		for i := range inv.Lines {
			line := &inv.Lines[i]
			if !line.Countable() {
				continue
			}
			line.Delta = applied[line.ProductID]
			deltas[line.ID] = line.Delta
		}
		return s.repo.MarkPosted(ctx, inv.ID, now, postedBy, note, deltas)
	})
	if err != nil {
		return Inventory{}, err
	}
	inv.Status = StatusPosted
	inv.PostedAt = &now
	inv.PostedBy = postedBy

	s.recordAudit(ctx, "stocktake:post", inv.ID, postedBy)
	return inv, nil
}

// Cancel terminates a DRAFT stocktake without touching the ledger.
func (s *Service) Cancel(ctx context.Context, id, actorID string) (Inventory, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Inventory{}, err
	}
	if inv.Status != StatusDraft {
		return Inventory{}, shared.Conflictf("stocktake %s is %s and cannot be cancelled", inv.Number, inv.Status)
	}
	if err := s.repo.MarkCancelled(ctx, inv.ID); err != nil {
		return Inventory{}, err
	}
	inv.Status = StatusCancelled
	s.recordAudit(ctx, "stocktake:cancel", inv.ID, actorID)
	return inv, nil
}

// Get loads one stocktake with its lines.
func (s *Service) Get(ctx context.Context, id string) (Inventory, error) {
	return s.repo.Get(ctx, id)
}

// List lists stocktakes matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Inventory, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action, inventoryID, actorID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_inventory",
		EntityID: inventoryID,
	})
}
