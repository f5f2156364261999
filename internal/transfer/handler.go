package transfer

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the transfer workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createDraft)
	r.Post("/journeys", h.createJourney)
	r.Get("/{id}", h.get)
	r.Post("/{id}/ship", h.ship)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/cancel", h.cancel)
}

type createRequest struct {
	FromWarehouseID string        `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   string        `json:"to_warehouse_id" validate:"required"`
	Purpose         string        `json:"purpose,omitempty" validate:"max=120"`
	Note            string        `json:"note,omitempty" validate:"max=500"`
	Lines           []lineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
	ActorID         string        `json:"actor_id,omitempty"`
}

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	Note      string `json:"note,omitempty" validate:"max=500"`
}

type shipRequest struct {
	Note    string `json:"note,omitempty" validate:"max=500"`
	ActorID string `json:"actor_id,omitempty"`
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

func (h *Handler) decodeCreate(w http.ResponseWriter, r *http.Request) (CreateInput, bool) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return CreateInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return CreateInput{}, false
	}
	input := CreateInput{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Purpose:         req.Purpose,
		Note:            req.Note,
		ActorID:         req.ActorID,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Qty: l.Qty, Note: l.Note})
	}
	return input, true
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	t, err := h.service.CreateDraft(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) createJourney(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	journey, err := h.service.CreateJourney(r.Context(), input)
	if err != nil {
		h.logger.Warn("create journey", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journey)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	transfers, err := h.service.List(r.Context(), Filter{
		Status:      Status(q.Get("status")),
		WarehouseID: q.Get("warehouse_id"),
		JourneyID:   q.Get("journey_id"),
	})
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	t, err := h.service.Ship(r.Context(), chi.URLParam(r, "id"), req.Note, req.ActorID)
	if err != nil {
		h.logger.Warn("ship transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
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
	t, err := h.service.Receive(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.logger.Warn("receive transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	t, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
