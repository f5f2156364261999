package stocktake

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stocktake workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs stocktake handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stocktake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createDraft)
	r.Get("/{id}", h.get)
	r.Post("/{id}/lines/generate", h.generateLines)
	r.Post("/{id}/lines", h.addLine)
	r.Put("/{id}/lines/{lineID}", h.updateLine)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/cancel", h.cancel)
}

type createRequest struct {
	WarehouseID string  `json:"warehouse_id" validate:"required"`
	Mode        string  `json:"mode" validate:"required,oneof=FULL CATEGORY FREE"`
	CategoryID  *string `json:"category_id,omitempty"`
	Note        string  `json:"note,omitempty" validate:"max=500"`
	ActorID     string  `json:"actor_id,omitempty"`
}

type addLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

type updateLineRequest struct {
	CountedQty *int64  `json:"counted_qty,omitempty"`
	Status     *string `json:"status,omitempty"`
	Note       *string `json:"note,omitempty"`
}

type generateRequest struct {
	Mode       string  `json:"mode,omitempty" validate:"omitempty,oneof=FULL CATEGORY"`
	CategoryID *string `json:"category_id,omitempty"`
}

type postRequest struct {
	Note     string `json:"note,omitempty" validate:"max=500"`
	PostedBy string `json:"posted_by,omitempty"`
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.CreateDraft(r.Context(), CreateInput{
		WarehouseID: req.WarehouseID,
		Mode:        Mode(req.Mode),
		CategoryID:  req.CategoryID,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) generateLines(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	inv, err := h.service.GenerateLines(r.Context(), chi.URLParam(r, "id"), GenerateInput{
		Mode:       Mode(req.Mode),
		CategoryID: req.CategoryID,
	})
	if err != nil {
		h.logger.Warn("generate stocktake lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.AddLine(r.Context(), chi.URLParam(r, "id"), req.ProductID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	input := UpdateLineInput{CountedQty: req.CountedQty, Note: req.Note}
	if req.Status != nil {
		status := LineStatus(*req.Status)
		input.Status = &status
	}
	line, err := h.service.UpdateLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineID"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	inv, err := h.service.Post(r.Context(), chi.URLParam(r, "id"), req.Note, req.PostedBy)
	if err != nil {
		h.logger.Warn("post stocktake", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	inv, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.PostedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	inventories, err := h.service.List(r.Context(), Filter{
		Status:      Status(q.Get("status")),
		WarehouseID: q.Get("warehouse_id"),
	})
	if err != nil {
		h.logger.Error("list stocktakes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stocktakes": inventories})
}
