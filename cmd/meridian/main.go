package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/internal/delivery"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/platform/cache"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/procurement"
	"github.com/meridian-wms/meridian-wms/internal/sales"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/internal/stock"
	"github.com/meridian-wms/meridian-wms/internal/stocktake"
	"github.com/meridian-wms/meridian-wms/internal/transfer"
	"github.com/meridian-wms/meridian-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reference cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	numbers := shared.NewNumberGenerator(nil)

	catalogRepo := masterdata.NewRepository(pool)
	catalog := masterdata.NewLookup(catalogRepo, redisClient, cfg.CacheTTL)
	catalogHandler := masterdata.NewHandler(logger, catalog)

	ledgerRepo := stock.NewRepository(pool)
	ledger := stock.NewService(ledgerRepo, catalog, auditLogger, nil)
	stockHandler := stock.NewHandler(logger, ledger)

	deliveryRepo := delivery.NewRepository(pool)
	deliveryService := delivery.NewService(logger, deliveryRepo, nil)
	deliveryHandler := delivery.NewHandler(logger, deliveryService)
	deliverySink := delivery.NewSink(logger, jobClient)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(logger, transferRepo, catalog, ledger, deliverySink, idempotencyStore, auditLogger, numbers, nil)
	transferHandler := transfer.NewHandler(logger, transferService)

	stocktakeRepo := stocktake.NewRepository(pool)
	stocktakeService := stocktake.NewService(stocktakeRepo, catalog, ledger, auditLogger, numbers, nil)
	stocktakeHandler := stocktake.NewHandler(logger, stocktakeService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, catalog, ledger, numbers, nil)
	salesHandler := sales.NewHandler(logger, salesService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, catalog, ledger, numbers, nil)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		MasterDataHandler:  catalogHandler,
		StockHandler:       stockHandler,
		TransferHandler:    transferHandler,
		StocktakeHandler:   stocktakeHandler,
		SalesHandler:       salesHandler,
		ProcurementHandler: procurementHandler,
		DeliveryHandler:    deliveryHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
