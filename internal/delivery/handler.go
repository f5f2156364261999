package delivery

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler exposes the delivery event log.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs delivery handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/by-transfer/{transferID}", h.getByTransfer)
}

func (h *Handler) getByTransfer(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetByTransfer(r.Context(), chi.URLParam(r, "transferID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}
