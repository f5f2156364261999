package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/return", h.returnSale)
	r.Post("/{id}/cancel", h.cancel)
}

type createRequest struct {
	WarehouseID string        `json:"warehouse_id" validate:"required"`
	ClientRef   string        `json:"client_ref,omitempty" validate:"max=120"`
	Note        string        `json:"note,omitempty" validate:"max=500"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
	ActorID     string        `json:"actor_id,omitempty"`
}

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
}

type postSaleRequest struct {
	ActorID string `json:"actor_id,omitempty"`
}

type returnRequest struct {
	Lines   []lineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
	Note    string        `json:"note,omitempty" validate:"max=500"`
	ActorID string        `json:"actor_id,omitempty"`
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
		ClientRef:   req.ClientRef,
		Note:        req.Note,
		ActorID:     req.ActorID,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Qty: l.Qty})
	}
	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	sale, err := h.service.PostSale(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.logger.Warn("post sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) returnSale(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReturnInput{Note: req.Note, ActorID: req.ActorID}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Qty: l.Qty})
	}
	sale, err := h.service.ReturnSale(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sales, err := h.service.List(r.Context(), Filter{
		Status:      Status(q.Get("status")),
		WarehouseID: q.Get("warehouse_id"),
	})
	if err != nil {
		h.logger.Error("list sales", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}
