package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for procurement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/cancel", h.cancel)
}

type createRequest struct {
	WarehouseID string        `json:"warehouse_id" validate:"required"`
	SupplierRef string        `json:"supplier_ref,omitempty" validate:"max=120"`
	Note        string        `json:"note,omitempty" validate:"max=500"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
	ActorID     string        `json:"actor_id,omitempty"`
}

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
}

type receiveRequest struct {
	Lines   []receiptLineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
	Note    string               `json:"note,omitempty" validate:"max=500"`
	ActorID string               `json:"actor_id,omitempty"`
}

type receiptLineRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	QtyReceived int64  `json:"qty_received" validate:"gte=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		WarehouseID: req.WarehouseID,
		SupplierRef: req.SupplierRef,
		Note:        req.Note,
		ActorID:     req.ActorID,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Qty: l.Qty})
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiveInput{Note: req.Note, ActorID: req.ActorID}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, ReceiptLine{ProductID: l.ProductID, QtyReceived: l.QtyReceived})
	}
	order, err := h.service.Receive(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.logger.Warn("receive purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.service.List(r.Context(), Filter{
		Status:      Status(q.Get("status")),
		WarehouseID: q.Get("warehouse_id"),
	})
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}
