package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-wms/meridian-wms/internal/delivery"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/procurement"
	"github.com/meridian-wms/meridian-wms/internal/sales"
	"github.com/meridian-wms/meridian-wms/internal/stock"
	"github.com/meridian-wms/meridian-wms/internal/stocktake"
	"github.com/meridian-wms/meridian-wms/internal/transfer"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	MasterDataHandler  *masterdata.Handler
	StockHandler       *stock.Handler
	TransferHandler    *transfer.Handler
	StocktakeHandler   *stocktake.Handler
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	DeliveryHandler    *delivery.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/catalog", params.MasterDataHandler.MountRoutes)
		api.Route("/stock", params.StockHandler.MountRoutes)
		api.Route("/transfers", params.TransferHandler.MountRoutes)
		api.Route("/stocktakes", params.StocktakeHandler.MountRoutes)
		api.Route("/sales", params.SalesHandler.MountRoutes)
		api.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
		api.Route("/deliveries", params.DeliveryHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
