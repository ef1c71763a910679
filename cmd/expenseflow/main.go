package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/expenseflow/internal/app"
	"github.com/odyssey-erp/expenseflow/internal/audit"
	audithttp "github.com/odyssey-erp/expenseflow/internal/audit/http"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/notify"
	"github.com/odyssey-erp/expenseflow/internal/observability"
	"github.com/odyssey-erp/expenseflow/internal/platform/cache"
	"github.com/odyssey-erp/expenseflow/internal/platform/db"
	"github.com/odyssey-erp/expenseflow/internal/roles"
	"github.com/odyssey-erp/expenseflow/internal/shared"
	"github.com/odyssey-erp/expenseflow/internal/telegram"
	"github.com/odyssey-erp/expenseflow/internal/workflow"
	"github.com/odyssey-erp/expenseflow/jobs"
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
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("expenseflow stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	directory, err := roles.LoadFile(cfg.RolesFile)
	if err != nil {
		return err
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	workflowMetrics := observability.NewWorkflowMetrics(metrics.Registerer())

	var (
		transport notify.Transport
		api       telegram.API
	)
	if cfg.TelegramToken != "" {
		botAPI, err := telegram.NewAPI(cfg.TelegramToken, cfg.TelegramAPI)
		if err != nil {
			return err
		}
		logger.Info("telegram authorized", slog.String("bot", botAPI.Self.UserName))
		api = botAPI
		transport = telegram.NewTransport(botAPI)
	} else {
		logger.Warn("no telegram token, chat messages go to the log")
		transport = notify.NewLogTransport(logger)
	}

	ledger := notify.NewRedisLedger(redisClient, cfg.LedgerTTL)
	dispatcher := notify.NewDispatcher(transport, ledger, notify.DefaultTemplates(), logger).
		WithFailureRecorder(workflowMetrics)

	jobClient, err := jobs.NewClient(cfg.AsynqRedis())
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	var exports workflow.ExportQueue
	if cfg.SheetsEnabled() {
		exports = jobClient
	}

	service, err := workflow.NewService(workflow.Dependencies{
		Store:     expense.NewRepository(dbpool),
		Directory: directory,
		Notifier:  dispatcher,
		Exports:   exports,
		Approvals: shared.NewApprovalRecorder(dbpool, logger),
		Audit:     shared.NewAuditLogger(dbpool),
		Metrics:   workflowMetrics,
		Locks:     shared.NewRecordLocks(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	auditService := audit.NewService(audit.NewRepository(dbpool), audit.WithActorNames(actorName(directory)))

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ExpenseHandler: workflow.NewHandler(logger, service),
		AuditHandler:   audithttp.NewHandler(logger, auditService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Readiness: []app.ReadinessCheck{
			{Name: "postgres", Check: dbpool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }},
		},
		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	if cfg.BotEnabled && api != nil {
		bot := telegram.NewBot(api, service, directory, telegram.Config{
			DeveloperChatID: cfg.DeveloperChatID,
			Workers:         cfg.BotWorkers,
			PollTimeout:     cfg.BotPollTimeout,
		}, logger)
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	return g.Wait()
}

func actorName(directory *roles.Directory) func(int64) string {
	return func(id int64) string {
		role, ok := directory.RoleOf(id)
		if !ok {
			return ""
		}
		return directory.NicknameOf(role, id)
	}
}
