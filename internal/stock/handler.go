package stock

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.getBalance)
	r.Post("/balances/query", h.queryBalances)
	r.Get("/moves", h.listMoves)
	r.Post("/movements", h.recordMovement)
	r.Post("/returns", h.createReturn)
	r.Post("/losses", h.createLoss)
}

type movementRequest struct {
	Kind        string  `json:"kind" validate:"required,oneof=IN OUT ADJUST"`
	WarehouseID string  `json:"warehouse_id" validate:"required"`
	ProductID   string  `json:"product_id" validate:"required"`
	QtyDelta    int64   `json:"qty_delta" validate:"required"`
	RefType     string  `json:"ref_type" validate:"required,max=40"`
	RefID       *string `json:"ref_id,omitempty"`
	Note        string  `json:"note,omitempty" validate:"max=500"`
	ActorID     string  `json:"actor_id,omitempty"`
}

type returnRequest struct {
	WarehouseID string  `json:"warehouse_id" validate:"required"`
	ProductID   string  `json:"product_id" validate:"required"`
	Qty         int64   `json:"qty" validate:"required,gt=0"`
	RefID       *string `json:"ref_id,omitempty"`
	Note        string  `json:"note,omitempty" validate:"max=500"`
	ActorID     string  `json:"actor_id,omitempty"`
}

type lossRequest struct {
	WarehouseID string `json:"warehouse_id" validate:"required"`
	ProductID   string `json:"product_id" validate:"required"`
	Qty         int64  `json:"qty" validate:"required,gt=0"`
	Note        string `json:"note" validate:"required,max=500"`
	ActorID     string `json:"actor_id,omitempty"`
}

type balancesQuery struct {
	WarehouseID string   `json:"warehouse_id" validate:"required"`
	ProductIDs  []string `json:"product_ids" validate:"required,min=1,max=500,dive,required"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	warehouseID := r.URL.Query().Get("warehouse_id")
	productID := r.URL.Query().Get("product_id")
	qty, err := h.service.GetBalance(r.Context(), warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouse_id": warehouseID,
		"product_id":   productID,
		"quantity":     qty,
	})
}

func (h *Handler) queryBalances(w http.ResponseWriter, r *http.Request) {
	var req balancesQuery
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balances, err := h.service.GetBalancesBatch(r.Context(), req.WarehouseID, req.ProductIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouse_id": req.WarehouseID,
		"balances":     balances,
	})
}

func (h *Handler) listMoves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MoveFilter{
		WarehouseID: q.Get("warehouse_id"),
		ProductID:   q.Get("product_id"),
		RefType:     q.Get("ref_type"),
		TransferID:  q.Get("transfer_id"),
		InventoryID: q.Get("inventory_id"),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	moves, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock moves", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"moves": moves})
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	move, err := h.service.RecordMovement(r.Context(), MovementInput{
		Kind:        MoveKind(req.Kind),
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		QtyDelta:    req.QtyDelta,
		RefType:     req.RefType,
		RefID:       req.RefID,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.logger.Warn("record movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, move)
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	move, err := h.service.CreateReturn(r.Context(), ReturnInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		RefID:       req.RefID,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, move)
}

func (h *Handler) createLoss(w http.ResponseWriter, r *http.Request) {
	var req lossRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	move, err := h.service.CreateLoss(r.Context(), LossInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, move)
}
