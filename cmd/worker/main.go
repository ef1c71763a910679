package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/expenseflow/internal/app"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	jobmetrics "github.com/odyssey-erp/expenseflow/internal/jobs"
	"github.com/odyssey-erp/expenseflow/internal/platform/db"
	"github.com/odyssey-erp/expenseflow/internal/shared"
	"github.com/odyssey-erp/expenseflow/internal/sheets"
	"github.com/odyssey-erp/expenseflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	location := sheets.Moscow(cfg.TZName)
	keys := shared.NewIdempotencyStore(pool)
	metrics := jobmetrics.NewMetrics(nil)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskIdempotencyCleanup, Handler: (&jobs.IdempotencyCleanupJob{Store: keys, Logger: logger, Metrics: metrics}).Handle},
	}
	if cfg.SheetsEnabled() {
		exporter, err := sheets.NewExporter(ctx, sheets.Config{
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			SheetName:       cfg.SheetsSheetName,
			SheetID:         cfg.SheetsSheetID,
			CredentialsFile: cfg.SheetsCredentials,
			Endpoint:        cfg.SheetsEndpoint,
			Location:        location,
		}, logger)
		if err != nil {
			logger.Error("init sheets exporter", slog.Any("error", err))
			os.Exit(1)
		}
		exportJob := jobs.NewSheetExportJob(expense.NewRepository(pool), exporter, keys, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskSheetExport, Handler: exportJob.Handle})
	} else {
		logger.Warn("sheets export disabled, paid expenses stay in the database only")
	}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(time.Duration(cfg.IdempotencyRetHours) * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedis(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    location,
		Handlers:    handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
