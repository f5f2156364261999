package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var short *shared.InsufficientStockError
	switch {
	case errors.As(err, &short):
		ProblemWith(w, http.StatusConflict, "Insufficient Stock", short.Error(), map[string]any{
			"warehouse_id": short.WarehouseID,
			"product_id":   short.ProductID,
			"available":    short.Available,
			"requested":    short.Requested,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrConfiguration):
		Problem(w, http.StatusInternalServerError, "Configuration Error", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
