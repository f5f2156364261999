package transfer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
)

type memoryRepo struct {
	transfers map[string]*Transfer
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transfers: map[string]*Transfer{}}
}

func (m *memoryRepo) Create(ctx context.Context, t Transfer) error {
	copied := t
	copied.Lines = append([]Line(nil), t.Lines...)
	m.transfers[t.ID] = &copied
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (Transfer, error) {
	t, ok := m.transfers[id]
	if !ok {
		return Transfer{}, shared.NotFoundf("transfer %s", id)
	}
	copied := *t
	copied.Lines = append([]Line(nil), t.Lines...)
	return copied, nil
}

func (m *memoryRepo) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	out := []Transfer{}
	for _, t := range m.transfers {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.JourneyID != "" && (t.JourneyID == nil || *t.JourneyID != filter.JourneyID) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *memoryRepo) MarkShipped(ctx context.Context, id string, shippedAt time.Time, note string) error {
	t := m.transfers[id]
	if t.Status != StatusDraft {
		return shared.Conflictf("transfer %s is not in DRAFT", id)
	}
	t.Status = StatusShipped
	t.ShippedAt = &shippedAt
	return nil
}

func (m *memoryRepo) ApplyReceipt(ctx context.Context, id string, received map[string]int64, status Status, receivedAt *time.Time) error {
	t := m.transfers[id]
	for i := range t.Lines {
		t.Lines[i].QtyReceived += received[t.Lines[i].ProductID]
	}
	t.Status = status
	if receivedAt != nil {
		t.ReceivedAt = receivedAt
	}
	return nil
}

func (m *memoryRepo) MarkCancelled(ctx context.Context, id string) error {
	t := m.transfers[id]
	if !t.Status.CanCancel() {
		return shared.Conflictf("transfer %s cannot be cancelled", id)
	}
	t.Status = StatusCancelled
	return nil
}

type fakeCatalog struct {
	warehouses map[string]masterdata.Warehouse
	products   map[string]masterdata.Product
	noTransit  bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		warehouses: map[string]masterdata.Warehouse{
			"wh-depot": {ID: "wh-depot", Code: "DEPOT-1", Kind: masterdata.KindDepot, IsActive: true},
			"wh-store": {ID: "wh-store", Code: "STORE-1", Kind: masterdata.KindStore, IsActive: true},
			"wh-trans": {ID: "wh-trans", Code: masterdata.TransitCode, Kind: masterdata.KindTransit, IsActive: true},
		},
		products: map[string]masterdata.Product{
			"prod-1": {ID: "prod-1", SKU: "SKU-1", IsActive: true},
			"prod-2": {ID: "prod-2", SKU: "SKU-2", IsActive: true},
		},
	}
}

func (f *fakeCatalog) Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error) {
	w, ok := f.warehouses[id]
	if !ok {
		return masterdata.Warehouse{}, shared.NotFoundf("warehouse %s", id)
	}
	return w, nil
}

func (f *fakeCatalog) TransitWarehouse(ctx context.Context) (masterdata.Warehouse, error) {
	if f.noTransit {
		return masterdata.Warehouse{}, shared.ErrConfiguration
	}
	return f.warehouses["wh-trans"], nil
}

func (f *fakeCatalog) Product(ctx context.Context, id string) (masterdata.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return masterdata.Product{}, shared.NotFoundf("product %s", id)
	}
	return p, nil
}

// memoryLedger applies movement batches to an in-memory balance map with the
// same non-negativity and all-or-nothing rules as the real engine.
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

func (m *memoryLedger) RecordMovements(ctx context.Context, inputs []stock.MovementInput, then func(ctx context.Context, moves []stock.StockMove) error) ([]stock.StockMove, error) {
	staged := make(map[string]int64, len(m.balances))
	for k, v := range m.balances {
		staged[k] = v
	}
	moves := make([]stock.StockMove, 0, len(inputs))
	for _, input := range inputs {
		k := m.key(input.WarehouseID, input.ProductID)
		next := staged[k] + input.QtyDelta
		if next < 0 {
			return nil, &shared.InsufficientStockError{
				WarehouseID: input.WarehouseID,
				ProductID:   input.ProductID,
				Available:   staged[k],
				Requested:   -input.QtyDelta,
			}
		}
		staged[k] = next
		moves = append(moves, stock.StockMove{
			WarehouseID: input.WarehouseID,
			ProductID:   input.ProductID,
			QtyDelta:    input.QtyDelta,
		})
	}
	if then != nil {
		if err := then(ctx, moves); err != nil {
			return nil, err
		}
	}
	m.balances = staged
	m.moves = append(m.moves, inputs...)
	return moves, nil
}

func (m *memoryLedger) GetBalancesBatch(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, id := range productIDs {
		out[id] = m.balances[m.key(warehouseID, id)]
	}
	return out, nil
}

type captureSink struct {
	events []Event
}

func (c *captureSink) Publish(ctx context.Context, event Event) error {
	c.events = append(c.events, event)
	return nil
}

type memoryIdem struct {
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

type fixture struct {
	service *Service
	repo    *memoryRepo
	ledger  *memoryLedger
	sink    *captureSink
	idem    *memoryIdem
	catalog *fakeCatalog
}

func newFixture() *fixture {
	clock := shared.Clock(func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	f := &fixture{
		repo:    newMemoryRepo(),
		ledger:  newMemoryLedger(),
		sink:    &captureSink{},
		idem:    &memoryIdem{},
		catalog: newFakeCatalog(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(logger, f.repo, f.catalog, f.ledger, f.sink, f.idem, nil,
		shared.NewNumberGenerator(clock), clock)
	return f
}

func TestCreateDraftValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{
			"same endpoints",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-depot", Lines: []LineInput{{ProductID: "prod-1", Qty: 1}}},
			shared.ErrValidation,
		},
		{
			"transit endpoint",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-trans", Lines: []LineInput{{ProductID: "prod-1", Qty: 1}}},
			shared.ErrValidation,
		},
		{
			"unknown warehouse",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-nope", Lines: []LineInput{{ProductID: "prod-1", Qty: 1}}},
			shared.ErrNotFound,
		},
		{
			"no lines",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-store"},
			shared.ErrValidation,
		},
		{
			"zero qty",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-store", Lines: []LineInput{{ProductID: "prod-1", Qty: 0}}},
			shared.ErrValidation,
		},
		{
			"duplicate product",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-store", Lines: []LineInput{{ProductID: "prod-1", Qty: 1}, {ProductID: "prod-1", Qty: 2}}},
			shared.ErrValidation,
		},
		{
			"unknown product",
			CreateInput{FromWarehouseID: "wh-depot", ToWarehouseID: "wh-store", Lines: []LineInput{{ProductID: "prod-nope", Qty: 1}}},
			shared.ErrNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.CreateDraft(ctx, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateDraftNumbersDocument(t *testing.T) {
	f := newFixture()
	transfer, err := f.service.CreateDraft(context.Background(), CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, transfer.Status)
	require.Regexp(t, `^TRF-20250301-[0-9A-Z]{5}$`, transfer.Number)
	require.Empty(t, f.ledger.moves)
}

func TestShipRequiresDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	transfer, err := f.service.CreateDraft(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)

	_, err = f.service.Ship(ctx, transfer.ID, "", "user-1")
	require.NoError(t, err)

	_, err = f.service.Ship(ctx, transfer.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestShipInsufficientStockIsDryRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10
	f.ledger.balances["wh-depot/prod-2"] = 1

	transfer, err := f.service.CreateDraft(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines: []LineInput{
			{ProductID: "prod-1", Qty: 5},
			{ProductID: "prod-2", Qty: 3},
		},
	})
	require.NoError(t, err)

	_, err = f.service.Ship(ctx, transfer.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// The short second line blocked the whole ship.
	require.Empty(t, f.ledger.moves)
	require.EqualValues(t, 10, f.ledger.balances["wh-depot/prod-1"])

	got, err := f.service.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestJourneyLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 20

	journey, err := f.service.CreateJourney(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, journey.JourneyID)
	require.Equal(t, journey.Outbound.JourneyID, journey.Inbound.JourneyID)
	require.Equal(t, "wh-trans", journey.Outbound.ToWarehouseID)
	require.Equal(t, "wh-trans", journey.Inbound.FromWarehouseID)

	// Leg 1 ship: depot down 5, transit up 5.
	_, err = f.service.Ship(ctx, journey.Outbound.ID, "", "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 15, f.ledger.balances["wh-depot/prod-1"])
	require.EqualValues(t, 5, f.ledger.balances["wh-trans/prod-1"])

	// Leg 2 ship checks transit stock but does not move it; the goods stay
	// at the waypoint until they are received.
	movesBefore := len(f.ledger.moves)
	_, err = f.service.Ship(ctx, journey.Inbound.ID, "", "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 5, f.ledger.balances["wh-trans/prod-1"])
	require.Len(t, f.ledger.moves, movesBefore)

	// Partial receive of 3 drains transit into the store.
	got, err := f.service.Receive(ctx, journey.Inbound.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReceived, got.Status)
	require.Nil(t, got.ReceivedAt)
	require.EqualValues(t, 2, f.ledger.balances["wh-trans/prod-1"])
	require.EqualValues(t, 3, f.ledger.balances["wh-store/prod-1"])

	// Remainder completes the transfer.
	got, err = f.service.Receive(ctx, journey.Inbound.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.NotNil(t, got.ReceivedAt)
	require.EqualValues(t, 0, f.ledger.balances["wh-trans/prod-1"])
	require.EqualValues(t, 5, f.ledger.balances["wh-store/prod-1"])
}

func TestJourneyInboundShipChecksTransitStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 20

	journey, err := f.service.CreateJourney(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)

	// Nothing has arrived at transit yet, so the inbound leg cannot ship.
	_, err = f.service.Ship(ctx, journey.Inbound.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, f.ledger.moves)

	got, err := f.service.Get(ctx, journey.Inbound.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestJourneyRequiresTransitWarehouse(t *testing.T) {
	f := newFixture()
	f.catalog.noTransit = true

	_, err := f.service.CreateJourney(context.Background(), CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestReceiveValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	transfer, err := f.service.CreateDraft(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)

	// DRAFT cannot receive.
	_, err = f.service.Receive(ctx, transfer.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 5}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.service.Ship(ctx, transfer.ID, "", "user-1")
	require.NoError(t, err)

	cases := []struct {
		name  string
		lines []ReceiptLine
	}{
		{"exceeds remaining", []ReceiptLine{{ProductID: "prod-1", QtyReceived: 6}}},
		{"negative qty", []ReceiptLine{{ProductID: "prod-1", QtyReceived: -1}}},
		{"unknown product", []ReceiptLine{{ProductID: "prod-2", QtyReceived: 1}}},
		{"nothing received", []ReceiptLine{{ProductID: "prod-1", QtyReceived: 0}}},
		{"no lines", nil},
		{"duplicate line", []ReceiptLine{{ProductID: "prod-1", QtyReceived: 1}, {ProductID: "prod-1", QtyReceived: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Receive(ctx, transfer.ID, ReceiveInput{Lines: tc.lines})
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	// Cumulative receipts never exceed the requested qty.
	_, err = f.service.Receive(ctx, transfer.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 4}},
	})
	require.NoError(t, err)
	_, err = f.service.Receive(ctx, transfer.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 2}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEventsCarryTotals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.balances["wh-depot/prod-1"] = 10

	transfer, err := f.service.CreateDraft(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)

	_, err = f.service.Ship(ctx, transfer.ID, "", "user-1")
	require.NoError(t, err)
	_, err = f.service.Receive(ctx, transfer.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 3}},
	})
	require.NoError(t, err)
	_, err = f.service.Receive(ctx, transfer.ID, ReceiveInput{
		Lines: []ReceiptLine{{ProductID: "prod-1", QtyReceived: 2}},
	})
	require.NoError(t, err)

	require.Len(t, f.sink.events, 3)
	require.Equal(t, EventShipped, f.sink.events[0].Type)

	partial := f.sink.events[1]
	require.Equal(t, EventPartiallyReceived, partial.Type)
	require.EqualValues(t, 5, partial.Expected)
	require.EqualValues(t, 3, partial.Received)
	require.EqualValues(t, 2, partial.Missing)

	final := f.sink.events[2]
	require.Equal(t, EventReceived, final.Type)
	require.EqualValues(t, 5, final.Received)
	require.EqualValues(t, 0, final.Missing)
}

func TestEventEmissionIsIdempotent(t *testing.T) {
	f := newFixture()
	transfer := Transfer{
		ID:     "t-1",
		Number: "TRF-1",
		Status: StatusShipped,
		Lines:  []Line{{ProductID: "prod-1", Qty: 5}},
	}

	f.service.emit(context.Background(), EventShipped, transfer)
	f.service.emit(context.Background(), EventShipped, transfer)
	require.Len(t, f.sink.events, 1)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	transfer, err := f.service.CreateDraft(ctx, CreateInput{
		FromWarehouseID: "wh-depot",
		ToWarehouseID:   "wh-store",
		Lines:           []LineInput{{ProductID: "prod-1", Qty: 5}},
	})
	require.NoError(t, err)

	got, err := f.service.Cancel(ctx, transfer.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	_, err = f.service.Cancel(ctx, transfer.ID, "user-1")
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.service.Ship(ctx, transfer.ID, "", "user-1")
	require.ErrorIs(t, err, shared.ErrConflict)
}
