package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler exposes read-only reference data endpoints. Catalog writes belong
// to the external masterdata owner.
type Handler struct {
	logger *slog.Logger
	lookup *Lookup
}

// NewHandler constructs masterdata handler.
func NewHandler(logger *slog.Logger, lookup *Lookup) *Handler {
	return &Handler{logger: logger, lookup: lookup}
}

// MountRoutes registers masterdata routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses", h.listWarehouses)
	r.Get("/warehouses/{id}", h.getWarehouse)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	var kind *WarehouseKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k := WarehouseKind(raw)
		if !k.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown warehouse kind "+raw)
			return
		}
		kind = &k
	}
	warehouses, err := h.lookup.ListWarehouses(r.Context(), kind)
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": warehouses})
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	warehouse, err := h.lookup.Warehouse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	products, err := h.lookup.SearchProducts(r.Context(), r.URL.Query().Get("search"), limit)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.lookup.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}
