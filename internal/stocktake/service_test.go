package stocktake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
)

type memoryRepo struct {
	inventories map[string]*Inventory
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{inventories: map[string]*Inventory{}}
}

func (m *memoryRepo) Create(ctx context.Context, inv Inventory) error {
	copied := inv
	m.inventories[inv.ID] = &copied
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (Inventory, error) {
	inv, ok := m.inventories[id]
	if !ok {
		return Inventory{}, shared.NotFoundf("stocktake %s", id)
	}
	copied := *inv
	copied.Lines = append([]Line(nil), inv.Lines...)
	return copied, nil
}

func (m *memoryRepo) List(ctx context.Context, filter Filter) ([]Inventory, error) {
	out := []Inventory{}
	for _, inv := range m.inventories {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (m *memoryRepo) InsertLines(ctx context.Context, inventoryID string, lines []Line) error {
	inv := m.inventories[inventoryID]
	inv.Lines = append(inv.Lines, lines...)
	return nil
}

func (m *memoryRepo) UpdateLine(ctx context.Context, line Line) error {
	inv := m.inventories[line.InventoryID]
	for i := range inv.Lines {
		if inv.Lines[i].ID == line.ID {
			inv.Lines[i] = line
			return nil
		}
	}
	return shared.NotFoundf("line %s", line.ID)
}

func (m *memoryRepo) UpdateScope(ctx context.Context, id string, mode Mode, categoryID *string) error {
	inv := m.inventories[id]
	if inv.Status != StatusDraft {
		return shared.Conflictf("stocktake %s is not in DRAFT", id)
	}
	inv.Mode = mode
	inv.CategoryID = categoryID
	return nil
}

func (m *memoryRepo) MarkPosted(ctx context.Context, id string, postedAt time.Time, postedBy, note string, deltas map[string]int64) error {
	inv := m.inventories[id]
	if inv.Status != StatusDraft {
		return shared.Conflictf("stocktake %s is not in DRAFT", id)
	}
	inv.Status = StatusPosted
	inv.PostedAt = &postedAt
	inv.PostedBy = postedBy
	for i := range inv.Lines {
		if delta, ok := deltas[inv.Lines[i].ID]; ok {
			inv.Lines[i].Delta = delta
		}
	}
	return nil
}

func (m *memoryRepo) MarkCancelled(ctx context.Context, id string) error {
	inv := m.inventories[id]
	if inv.Status != StatusDraft {
		return shared.Conflictf("stocktake %s cannot be cancelled", id)
	}
	inv.Status = StatusCancelled
	return nil
}

type fakeCatalog struct {
	warehouses map[string]masterdata.Warehouse
	products   []masterdata.Product
	categories map[string]bool
}

func newFakeCatalog() *fakeCatalog {
	catFood := "cat-food"
	return &fakeCatalog{
		warehouses: map[string]masterdata.Warehouse{
			"wh-depot": {ID: "wh-depot", Code: "DEPOT-1", Kind: masterdata.KindDepot, IsActive: true},
		},
		products: []masterdata.Product{
			{ID: "prod-1", SKU: "SKU-1", CategoryID: &catFood, IsActive: true},
			{ID: "prod-2", SKU: "SKU-2", IsActive: true},
		},
		categories: map[string]bool{"cat-food": true},
	}
}

func (f *fakeCatalog) Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error) {
	w, ok := f.warehouses[id]
	if !ok {
		return masterdata.Warehouse{}, shared.NotFoundf("warehouse %s", id)
	}
	return w, nil
}

func (f *fakeCatalog) Product(ctx context.Context, id string) (masterdata.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return masterdata.Product{}, shared.NotFoundf("product %s", id)
}

func (f *fakeCatalog) EnsureCategory(ctx context.Context, id string) error {
	if !f.categories[id] {
		return shared.NotFoundf("category %s", id)
	}
	return nil
}

func (f *fakeCatalog) ActiveProducts(ctx context.Context, categoryID *string) ([]masterdata.Product, error) {
	out := []masterdata.Product{}
	for _, p := range f.products {
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type memoryLedger struct {
	balances map[string]int64
	moves    []stock.MovementInput
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: map[string]int64{}}
}

func (m *memoryLedger) key(warehouseID, productID string) string {
	return warehouseID + "/" + productID
}

// RecordMovements mirrors the real engine: absolute targets resolve to a
// delta against the current balance, zero deltas record nothing, and the
// whole batch is discarded when a movement or the callback fails.
func (m *memoryLedger) RecordMovements(ctx context.Context, inputs []stock.MovementInput, then func(ctx context.Context, moves []stock.StockMove) error) ([]stock.StockMove, error) {
	staged := make(map[string]int64, len(m.balances))
	for k, v := range m.balances {
		staged[k] = v
	}
	applied := []stock.MovementInput{}
	moves := []stock.StockMove{}
	for _, input := range inputs {
		k := m.key(input.WarehouseID, input.ProductID)
		delta := input.QtyDelta
		if input.Target != nil {
			delta = *input.Target - staged[k]
			if delta == 0 {
				continue
			}
		}
		next := staged[k] + delta
		if next < 0 {
			return nil, &shared.InsufficientStockError{
				WarehouseID: input.WarehouseID,
				ProductID:   input.ProductID,
				Available:   staged[k],
				Requested:   -delta,
			}
		}
		staged[k] = next
		recorded := input
		recorded.QtyDelta = delta
		applied = append(applied, recorded)
		moves = append(moves, stock.StockMove{
			Kind:        input.Kind,
			WarehouseID: input.WarehouseID,
			ProductID:   input.ProductID,
			QtyDelta:    delta,
		})
	}
	if then != nil {
		if err := then(ctx, moves); err != nil {
			return nil, err
		}
	}
	m.balances = staged
	m.moves = append(m.moves, applied...)
	return moves, nil
}

func (m *memoryLedger) GetBalance(ctx context.Context, warehouseID, productID string) (int64, error) {
	return m.balances[m.key(warehouseID, productID)], nil
}

func (m *memoryLedger) GetBalancesBatch(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, id := range productIDs {
		out[id] = m.balances[m.key(warehouseID, id)]
	}
	return out, nil
}

type fixture struct {
	service *Service
	repo    *memoryRepo
	ledger  *memoryLedger
	catalog *fakeCatalog
}

func newFixture() *fixture {
	clock := shared.Clock(func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	f := &fixture{
		repo:    newMemoryRepo(),
		ledger:  newMemoryLedger(),
		catalog: newFakeCatalog(),
	}
	f.service = NewService(f.repo, f.catalog, f.ledger, nil, shared.NewNumberGenerator(clock), clock)
	return f
}

func int64p(v int64) *int64 { return &v }

func TestCreateDraftValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: "WEEKLY"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-nope", Mode: ModeFull})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeCategory})
	require.ErrorIs(t, err, shared.ErrValidation)

	unknown := "cat-nope"
	_, err = f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeCategory, CategoryID: &unknown})
	require.ErrorIs(t, err, shared.ErrNotFound)

	cat := "cat-food"
	_, err = f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull, CategoryID: &cat})
	require.ErrorIs(t, err, shared.ErrValidation)

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, inv.Status)
	require.Regexp(t, `^INV-20250301-[0-9A-Z]{5}$`, inv.Number)
}

func TestGenerateLinesSnapshotsBalances(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)

	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)
	require.Len(t, inv.Lines, 2)

	byProduct := map[string]Line{}
	for _, l := range inv.Lines {
		byProduct[l.ProductID] = l
		require.Equal(t, LinePending, l.Status)
	}
	require.EqualValues(t, 10, byProduct["prod-1"].ExpectedQty)
	require.EqualValues(t, 0, byProduct["prod-2"].ExpectedQty)

	// Scope is fixed once generated.
	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestGenerateLinesCategoryScope(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cat := "cat-food"

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeCategory, CategoryID: &cat})
	require.NoError(t, err)

	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)
	require.Len(t, inv.Lines, 1)
	require.Equal(t, "prod-1", inv.Lines[0].ProductID)
}

func TestGenerateLinesScopeOverride(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cat := "cat-food"

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)

	// A category override at generation time narrows the scope and sticks.
	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{Mode: ModeCategory, CategoryID: &cat})
	require.NoError(t, err)
	require.Len(t, inv.Lines, 1)
	require.Equal(t, "prod-1", inv.Lines[0].ProductID)
	require.Equal(t, ModeCategory, inv.Mode)
	require.Equal(t, &cat, inv.CategoryID)

	stored := f.repo.inventories[inv.ID]
	require.Equal(t, ModeCategory, stored.Mode)
	require.Equal(t, &cat, stored.CategoryID)
}

func TestGenerateLinesScopeOverrideValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cat := "cat-food"
	unknown := "cat-nope"

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)

	// A category without CATEGORY mode is as invalid here as at creation.
	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{CategoryID: &cat})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{Mode: ModeCategory})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{Mode: ModeCategory, CategoryID: &unknown})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{Mode: ModeFree})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestFreeModeBuildsScopeLineByLine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-2"] = 4

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFree})
	require.NoError(t, err)

	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	line, err := f.service.AddLine(ctx, inv.ID, "prod-2")
	require.NoError(t, err)
	require.EqualValues(t, 4, line.ExpectedQty)

	_, err = f.service.AddLine(ctx, inv.ID, "prod-2")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateLine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)
	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)

	var lineID string
	for _, l := range inv.Lines {
		if l.ProductID == "prod-1" {
			lineID = l.ID
		}
	}

	line, err := f.service.UpdateLine(ctx, inv.ID, lineID, UpdateLineInput{CountedQty: int64p(8)})
	require.NoError(t, err)
	require.Equal(t, LineCounted, line.Status)
	require.EqualValues(t, -2, line.Delta)

	// Counts are repeatable while DRAFT.
	line, err = f.service.UpdateLine(ctx, inv.ID, lineID, UpdateLineInput{CountedQty: int64p(12)})
	require.NoError(t, err)
	require.EqualValues(t, 2, line.Delta)

	skipped := LineSkipped
	line, err = f.service.UpdateLine(ctx, inv.ID, lineID, UpdateLineInput{Status: &skipped})
	require.NoError(t, err)
	require.Equal(t, LineSkipped, line.Status)

	_, err = f.service.UpdateLine(ctx, inv.ID, lineID, UpdateLineInput{CountedQty: int64p(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.UpdateLine(ctx, inv.ID, "line-nope", UpdateLineInput{CountedQty: int64p(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostRecomputesAgainstLiveBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)
	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)

	var prod1Line, prod2Line string
	for _, l := range inv.Lines {
		switch l.ProductID {
		case "prod-1":
			prod1Line = l.ID
		case "prod-2":
			prod2Line = l.ID
		}
	}

	// A sale during the physical count drops the live balance to 7.
	f.ledger.balances["wh-depot/prod-1"] = 7

	_, err = f.service.UpdateLine(ctx, inv.ID, prod1Line, UpdateLineInput{CountedQty: int64p(7)})
	require.NoError(t, err)
	_, err = f.service.UpdateLine(ctx, inv.ID, prod2Line, UpdateLineInput{CountedQty: int64p(3)})
	require.NoError(t, err)

	posted, err := f.service.Post(ctx, inv.ID, "monthly count", "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)

	// prod-1 counted what was really there: no movement. prod-2 got one
	// ADJUST of +3.
	require.Len(t, f.ledger.moves, 1)
	require.Equal(t, stock.KindAdjust, f.ledger.moves[0].Kind)
	require.Equal(t, "prod-2", f.ledger.moves[0].ProductID)
	require.EqualValues(t, 3, f.ledger.moves[0].QtyDelta)
	require.Equal(t, stock.RefInventory, f.ledger.moves[0].RefType)
	require.EqualValues(t, 7, f.ledger.balances["wh-depot/prod-1"])
	require.EqualValues(t, 3, f.ledger.balances["wh-depot/prod-2"])

	for _, l := range posted.Lines {
		if l.ID == prod1Line {
			require.EqualValues(t, 0, l.Delta)
		}
	}
}

func TestPostLandsOnCountedQuantityExactly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)
	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)

	var prod1Line string
	for _, l := range inv.Lines {
		if l.ProductID == "prod-1" {
			prod1Line = l.ID
		}
	}
	_, err = f.service.UpdateLine(ctx, inv.ID, prod1Line, UpdateLineInput{CountedQty: int64p(7)})
	require.NoError(t, err)

	// A receipt lands after the count was entered; posting still settles
	// the balance on the counted 7, not on a delta from a stale read.
	f.ledger.balances["wh-depot/prod-1"] = 12

	posted, err := f.service.Post(ctx, inv.ID, "", "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.EqualValues(t, 7, f.ledger.balances["wh-depot/prod-1"])

	require.Len(t, f.ledger.moves, 1)
	require.EqualValues(t, -5, f.ledger.moves[0].QtyDelta)

	for _, l := range posted.Lines {
		if l.ID == prod1Line {
			require.EqualValues(t, -5, l.Delta)
		}
	}
}

func TestPostGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)

	// No lines yet.
	_, err = f.service.Post(ctx, inv.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrValidation)

	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)

	// Lines exist but nothing was counted.
	_, err = f.service.Post(ctx, inv.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.UpdateLine(ctx, inv.ID, inv.Lines[0].ID, UpdateLineInput{CountedQty: int64p(5)})
	require.NoError(t, err)

	_, err = f.service.Post(ctx, inv.ID, "", "user-1")
	require.NoError(t, err)

	// Terminal: no second post, no line edits, no cancel.
	_, err = f.service.Post(ctx, inv.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.service.UpdateLine(ctx, inv.ID, inv.Lines[0].ID, UpdateLineInput{CountedQty: int64p(6)})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.service.Cancel(ctx, inv.ID, "user-1")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSkippedLinesAreIgnoredOnPost(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)
	inv, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.NoError(t, err)

	var prod1Line, prod2Line string
	for _, l := range inv.Lines {
		switch l.ProductID {
		case "prod-1":
			prod1Line = l.ID
		case "prod-2":
			prod2Line = l.ID
		}
	}

	// A counted line that is later skipped stays out of the posting.
	_, err = f.service.UpdateLine(ctx, inv.ID, prod1Line, UpdateLineInput{CountedQty: int64p(0)})
	require.NoError(t, err)
	skipped := LineSkipped
	_, err = f.service.UpdateLine(ctx, inv.ID, prod1Line, UpdateLineInput{Status: &skipped})
	require.NoError(t, err)
	_, err = f.service.UpdateLine(ctx, inv.ID, prod2Line, UpdateLineInput{CountedQty: int64p(2)})
	require.NoError(t, err)

	_, err = f.service.Post(ctx, inv.ID, "", "user-1")
	require.NoError(t, err)

	require.Len(t, f.ledger.moves, 1)
	require.Equal(t, "prod-2", f.ledger.moves[0].ProductID)
	require.EqualValues(t, 10, f.ledger.balances["wh-depot/prod-1"])
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	inv, err := f.service.CreateDraft(ctx, CreateInput{WarehouseID: "wh-depot", Mode: ModeFull})
	require.NoError(t, err)

	got, err := f.service.Cancel(ctx, inv.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	_, err = f.service.GenerateLines(ctx, inv.ID, GenerateInput{})
	require.ErrorIs(t, err, shared.ErrConflict)
}
