package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
)

// RepositoryPort abstracts transfer persistence.
type RepositoryPort interface {
	Create(ctx context.Context, t Transfer) error
	Get(ctx context.Context, id string) (Transfer, error)
	List(ctx context.Context, filter Filter) ([]Transfer, error)
	MarkShipped(ctx context.Context, id string, shippedAt time.Time, note string) error
	ApplyReceipt(ctx context.Context, id string, received map[string]int64, status Status, receivedAt *time.Time) error
	MarkCancelled(ctx context.Context, id string) error
}

// CatalogPort exposes the warehouse/product lookups the workflow needs.
type CatalogPort interface {
	Warehouse(ctx context.Context, id string) (masterdata.Warehouse, error)
	TransitWarehouse(ctx context.Context) (masterdata.Warehouse, error)
	Product(ctx context.Context, id string) (masterdata.Product, error)
}

// LedgerPort is the stock engine surface used by ship and receive. Every
// stock effect funnels through it; the status write rides in the batch
// callback so movements and document state commit together.
type LedgerPort interface {
	RecordMovements(ctx context.Context, inputs []stock.MovementInput, then func(ctx context.Context, moves []stock.StockMove) error) ([]stock.StockMove, error)
	GetBalancesBatch(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error)
}

// IdempotencyPort guards delivery-event emission on retried transitions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the transfer lifecycle. Stock never moves outside
// Ship and Receive, and always through the ledger.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	catalog CatalogPort
	ledger  LedgerPort
	sink    EventSink
	idem    IdempotencyPort
	audit   AuditPort
	numbers *shared.NumberGenerator
	clock   shared.Clock
}

// NewService builds Service. sink, idem and audit may be nil.
func NewService(logger *slog.Logger, repo RepositoryPort, catalog CatalogPort, ledger LedgerPort, sink EventSink, idem IdempotencyPort, audit AuditPort, numbers *shared.NumberGenerator, clock shared.Clock) *Service {
	return &Service{
		logger:  logger,
		repo:    repo,
		catalog: catalog,
		ledger:  ledger,
		sink:    sink,
		idem:    idem,
		audit:   audit,
		numbers: numbers,
		clock:   clock.OrSystem(),
	}
}

// CreateDraft persists a DRAFT transfer between two stocking warehouses. The
// ledger is untouched until Ship.
func (s *Service) CreateDraft(ctx context.Context, input CreateInput) (Transfer, error) {
	if err := s.validateEndpoints(ctx, input.FromWarehouseID, input.ToWarehouseID); err != nil {
		return Transfer{}, err
	}
	return s.create(ctx, input, nil)
}

// CreateJourney creates the two legs of a routed transfer: source to the
// transit waypoint, waypoint to destination. Both legs share one journey id
// and carry the same lines, so a single logical movement stays auditable per
// hop.
func (s *Service) CreateJourney(ctx context.Context, input CreateInput) (Journey, error) {
	if err := s.validateEndpoints(ctx, input.FromWarehouseID, input.ToWarehouseID); err != nil {
		return Journey{}, err
	}
	transit, err := s.catalog.TransitWarehouse(ctx)
	if err != nil {
		return Journey{}, err
	}

	journeyID := uuid.NewString()

	leg1 := input
	leg1.ToWarehouseID = transit.ID
	outbound, err := s.create(ctx, leg1, &journeyID)
	if err != nil {
		return Journey{}, err
	}

	leg2 := input
	leg2.FromWarehouseID = transit.ID
	inbound, err := s.create(ctx, leg2, &journeyID)
	if err != nil {
		// Best effort: do not leave a half journey behind.
		if cancelErr := s.repo.MarkCancelled(ctx, outbound.ID); cancelErr != nil {
			s.logger.Error("cancel orphaned journey leg",
				slog.String("transfer_id", outbound.ID), slog.Any("error", cancelErr))
		}
		return Journey{}, err
	}

	return Journey{JourneyID: journeyID, Outbound: outbound, Inbound: inbound}, nil
}

// Ship moves a DRAFT transfer to SHIPPED. Availability is checked for every
// line before the first movement is recorded; a short line fails the whole
// ship. On the outbound leg of a journey the shipped quantity also lands as
// on-hand at the transit waypoint. The inbound leg ships without moving
// stock: the waypoint already holds it, and it leaves only at receive time.
func (s *Service) Ship(ctx context.Context, id, note, actorID string) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if !t.Status.CanShip() {
		return Transfer{}, shared.Conflictf("transfer %s is %s, only DRAFT can ship", t.Number, t.Status)
	}

	source, err := s.catalog.Warehouse(ctx, t.FromWarehouseID)
	if err != nil {
		return Transfer{}, err
	}
	destination, err := s.catalog.Warehouse(ctx, t.ToWarehouseID)
	if err != nil {
		return Transfer{}, err
	}

	productIDs := make([]string, 0, len(t.Lines))
	for _, l := range t.Lines {
		productIDs = append(productIDs, l.ProductID)
	}
	available, err := s.ledger.GetBalancesBatch(ctx, t.FromWarehouseID, productIDs)
	if err != nil {
		return Transfer{}, err
	}
	for _, l := range t.Lines {
		if available[l.ProductID] < l.Qty {
			return Transfer{}, &shared.InsufficientStockError{
				WarehouseID: t.FromWarehouseID,
				ProductID:   l.ProductID,
				Available:   available[l.ProductID],
				Requested:   l.Qty,
			}
		}
	}

	now := s.clock()
	if source.Kind == masterdata.KindTransit {
		if err := s.repo.MarkShipped(ctx, t.ID, now, note); err != nil {
			return Transfer{}, err
		}
	} else {
		inputs := make([]stock.MovementInput, 0, 2*len(t.Lines))
		for _, l := range t.Lines {
			inputs = append(inputs, stock.MovementInput{
				Kind:        stock.KindOut,
				WarehouseID: t.FromWarehouseID,
				ProductID:   l.ProductID,
				QtyDelta:    -l.Qty,
				RefType:     stock.RefTransfer,
				RefID:       &t.ID,
				TransferID:  &t.ID,
				Note:        note,
				ActorID:     actorID,
			})
			if destination.Kind == masterdata.KindTransit {
				inputs = append(inputs, stock.MovementInput{
					Kind:        stock.KindIn,
					WarehouseID: t.ToWarehouseID,
					ProductID:   l.ProductID,
					QtyDelta:    l.Qty,
					RefType:     stock.RefTransfer,
					RefID:       &t.ID,
					TransferID:  &t.ID,
					Note:        note,
					ActorID:     actorID,
				})
			}
		}
		_, err = s.ledger.RecordMovements(ctx, inputs, func(ctx context.Context, _ []stock.StockMove) error {
			return s.repo.MarkShipped(ctx, t.ID, now, note)
		})
		if err != nil {
			return Transfer{}, err
		}
	}
	t.Status = StatusShipped
	t.ShippedAt = &now

	s.emit(ctx, EventShipped, t)
	s.recordAudit(ctx, "transfer:ship", t.ID, actorID)
	return t, nil
}

// Receive books arrived quantities against a SHIPPED or PARTIALLY_RECEIVED
// transfer. Every input line is validated against its remaining quantity
// before any stock moves. On the inbound leg of a journey the received
// quantity first leaves the transit waypoint.
func (s *Service) Receive(ctx context.Context, id string, input ReceiveInput) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if !t.Status.CanReceive() {
		return Transfer{}, shared.Conflictf("transfer %s is %s, only SHIPPED or PARTIALLY_RECEIVED can receive", t.Number, t.Status)
	}
	if len(input.Lines) == 0 {
		return Transfer{}, shared.Validationf("receipt lines required")
	}

	byProduct := make(map[string]*Line, len(t.Lines))
	for i := range t.Lines {
		byProduct[t.Lines[i].ProductID] = &t.Lines[i]
	}

	var totalReceived int64
	received := make(map[string]int64, len(input.Lines))
	for _, rl := range input.Lines {
		line, ok := byProduct[rl.ProductID]
		if !ok {
			return Transfer{}, shared.Validationf("product %s is not on transfer %s", rl.ProductID, t.Number)
		}
		if rl.QtyReceived < 0 {
			return Transfer{}, shared.Validationf("received qty for product %s must not be negative", rl.ProductID)
		}
		if _, dup := received[rl.ProductID]; dup {
			return Transfer{}, shared.Validationf("duplicate receipt line for product %s", rl.ProductID)
		}
		if remaining := line.Remaining(); rl.QtyReceived > remaining {
			return Transfer{}, shared.Validationf("received qty %d for product %s exceeds remaining %d", rl.QtyReceived, rl.ProductID, remaining)
		}
		received[rl.ProductID] = rl.QtyReceived
		totalReceived += rl.QtyReceived
	}
	if totalReceived == 0 {
		return Transfer{}, shared.Validationf("nothing received")
	}

	source, err := s.catalog.Warehouse(ctx, t.FromWarehouseID)
	if err != nil {
		return Transfer{}, err
	}

	inputs := make([]stock.MovementInput, 0, 2*len(received))
	for _, l := range t.Lines {
		qty := received[l.ProductID]
		if qty == 0 {
			continue
		}
		if source.Kind == masterdata.KindTransit {
			inputs = append(inputs, stock.MovementInput{
				Kind:        stock.KindOut,
				WarehouseID: t.FromWarehouseID,
				ProductID:   l.ProductID,
				QtyDelta:    -qty,
				RefType:     stock.RefTransfer,
				RefID:       &t.ID,
				TransferID:  &t.ID,
				Note:        input.Note,
				ActorID:     input.ActorID,
			})
		}
		inputs = append(inputs, stock.MovementInput{
			Kind:        stock.KindIn,
			WarehouseID: t.ToWarehouseID,
			ProductID:   l.ProductID,
			QtyDelta:    qty,
			RefType:     stock.RefTransfer,
			RefID:       &t.ID,
			TransferID:  &t.ID,
			Note:        input.Note,
			ActorID:     input.ActorID,
		})
	}

	for productID, qty := range received {
		byProduct[productID].QtyReceived += qty
	}
	status := StatusPartiallyReceived
	var receivedAt *time.Time
	if t.FullyReceived() {
		status = StatusReceived
		now := s.clock()
		receivedAt = &now
	}
	_, err = s.ledger.RecordMovements(ctx, inputs, func(ctx context.Context, _ []stock.StockMove) error {
		return s.repo.ApplyReceipt(ctx, t.ID, received, status, receivedAt)
	})
	if err != nil {
		return Transfer{}, err
	}
	t.Status = status
	t.ReceivedAt = receivedAt

	eventType := EventPartiallyReceived
	if status == StatusReceived {
		eventType = EventReceived
	}
	s.emit(ctx, eventType, t)
	s.recordAudit(ctx, "transfer:receive", t.ID, input.ActorID)
	return t, nil
}

// Cancel terminates a non-terminal transfer. Stock already shipped stays
// where the ledger last put it; reconciliation is a stocktake concern.
func (s *Service) Cancel(ctx context.Context, id, actorID string) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if !t.Status.CanCancel() {
		return Transfer{}, shared.Conflictf("transfer %s is %s and cannot be cancelled", t.Number, t.Status)
	}
	if err := s.repo.MarkCancelled(ctx, t.ID); err != nil {
		return Transfer{}, err
	}
	t.Status = StatusCancelled
	s.recordAudit(ctx, "transfer:cancel", t.ID, actorID)
	return t, nil
}

// Get loads one transfer with its lines.
func (s *Service) Get(ctx context.Context, id string) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// List lists transfers matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) validateEndpoints(ctx context.Context, fromID, toID string) error {
	if fromID == "" || toID == "" {
		return shared.Validationf("source and destination warehouses required")
	}
	if fromID == toID {
		return shared.Validationf("source and destination must differ")
	}
	for _, id := range []string{fromID, toID} {
		w, err := s.catalog.Warehouse(ctx, id)
		if err != nil {
			return err
		}
		if !w.Usable() {
			return shared.NotFoundf("warehouse %s is inactive or deleted", id)
		}
		if !w.Kind.Stocking() {
			return shared.Validationf("warehouse %s (%s) cannot be a transfer endpoint", w.Code, w.Kind)
		}
	}
	return nil
}

// create validates lines, numbers the document and persists it. Endpoint
// checks are the caller's responsibility: journey legs touch the transit
// waypoint, which validateEndpoints rejects.
func (s *Service) create(ctx context.Context, input CreateInput, journeyID *string) (Transfer, error) {
	if len(input.Lines) == 0 {
		return Transfer{}, shared.Validationf("at least one line required")
	}
	seen := make(map[string]bool, len(input.Lines))
	for _, l := range input.Lines {
		if l.Qty <= 0 {
			return Transfer{}, shared.Validationf("qty for product %s must be positive", l.ProductID)
		}
		if seen[l.ProductID] {
			return Transfer{}, shared.Validationf("duplicate product %s", l.ProductID)
		}
		seen[l.ProductID] = true
		product, err := s.catalog.Product(ctx, l.ProductID)
		if err != nil {
			return Transfer{}, err
		}
		if !product.Usable() {
			return Transfer{}, shared.NotFoundf("product %s is inactive or deleted", l.ProductID)
		}
	}

	t := Transfer{
		ID:              uuid.NewString(),
		Status:          StatusDraft,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		JourneyID:       journeyID,
		Purpose:         input.Purpose,
		Note:            input.Note,
		CreatedAt:       s.clock(),
	}
	for _, l := range input.Lines {
		t.Lines = append(t.Lines, Line{
			ID:         uuid.NewString(),
			TransferID: t.ID,
			ProductID:  l.ProductID,
			Qty:        l.Qty,
			Note:       l.Note,
		})
	}

	number, err := s.numbers.WithRetry(ctx, "TRF", func(ctx context.Context, number string) error {
		t.Number = number
		return s.repo.Create(ctx, t)
	})
	if err != nil {
		return Transfer{}, err
	}
	t.Number = number

	s.recordAudit(ctx, "transfer:create", t.ID, input.ActorID)
	return t, nil
}

// emit pushes a status event to the delivery sink, at most once per
// transition. The event is advisory; failures are logged and swallowed.
func (s *Service) emit(ctx context.Context, eventType string, t Transfer) {
	if s.sink == nil {
		return
	}
	expected, receivedTotal := t.Totals()
	if s.idem != nil {
		key := fmt.Sprintf("transfer:%s:%s:%d", t.ID, eventType, receivedTotal)
		if err := s.idem.CheckAndInsert(ctx, key, "transfer"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return
			}
			s.logger.Warn("idempotency check", slog.String("transfer_id", t.ID), slog.Any("error", err))
		}
	}
	event := Event{
		Type:       eventType,
		TransferID: t.ID,
		Number:     t.Number,
		JourneyID:  t.JourneyID,
		Expected:   expected,
		Received:   receivedTotal,
		Missing:    expected - receivedTotal,
		At:         s.clock(),
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("publish transfer event",
			slog.String("transfer_id", t.ID), slog.String("type", eventType), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, transferID, actorID string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_transfer",
		EntityID: transferID,
	})
}
